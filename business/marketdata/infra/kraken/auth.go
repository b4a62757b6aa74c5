package kraken

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fd1az/krakenfeed/internal/apperror"
)

// getWebSocketsTokenResponse mirrors Kraken's REST /0/private/GetWebSocketsToken
// response: a short-lived token that authenticates the private websocket
// channels. The token, not the API key/secret, is what ever reaches the
// socket.
type getWebSocketsTokenResponse struct {
	Error  []string `json:"error"`
	Result struct {
		Token   string `json:"token"`
		Expires int    `json:"expires"`
	} `json:"result"`
}

// GetWebSocketsToken exchanges the configured API key/secret for a
// websocket auth token via Kraken's signed private REST API.
func (r *RestClient) GetWebSocketsToken(ctx context.Context) (string, error) {
	if r.apiKey == "" || r.apiSecret == "" {
		return "", apperror.New(apperror.CodeConnectionAuthRejected,
			apperror.WithMessage("no API credentials configured"))
	}

	const path = "/0/private/GetWebSocketsToken"
	nonce := strconv.FormatInt(time.Now().UnixNano()/int64(time.Millisecond), 10)
	postData := url.Values{"nonce": {nonce}}.Encode()

	sign, err := r.signRequest(path, nonce, postData)
	if err != nil {
		return "", apperror.New(apperror.CodeConnectionAuthRejected, apperror.WithCause(err))
	}

	resp, err := r.http.NewRequest().
		SetHeader("API-Key", r.apiKey).
		SetHeader("API-Sign", sign).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(postData).
		Post(ctx, path)
	if err != nil {
		return "", apperror.New(apperror.CodeConnectionAuthRejected, apperror.WithCause(err))
	}
	if resp.IsError() {
		return "", apperror.New(apperror.CodeConnectionAuthRejected,
			apperror.WithMessage(fmt.Sprintf("GetWebSocketsToken returned status %d", resp.StatusCode)))
	}

	var body getWebSocketsTokenResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", apperror.New(apperror.CodeConnectionAuthRejected, apperror.WithCause(err))
	}
	if len(body.Error) > 0 {
		return "", apperror.New(apperror.CodeConnectionAuthRejected,
			apperror.WithMessage(strings.Join(body.Error, "; ")))
	}
	return body.Result.Token, nil
}

// signRequest implements Kraken's REST signing scheme: API-Sign =
// base64(HMAC-SHA512(secret, path + SHA256(nonce + postData))).
func (r *RestClient) signRequest(path, nonce, postData string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(r.apiSecret)
	if err != nil {
		return "", err
	}

	shaSum := sha256.Sum256([]byte(nonce + postData))

	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(shaSum[:])

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
