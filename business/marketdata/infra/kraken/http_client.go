package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fd1az/krakenfeed/business/marketdata/domain"
	"github.com/fd1az/krakenfeed/internal/apperror"
	"github.com/fd1az/krakenfeed/internal/httpclient"
)

const defaultRestBaseURL = "https://api.kraken.com"

// restDepthResponse mirrors Kraken's REST /0/public/Depth response: a
// result map keyed by the exchange's own pair spelling, one level per
// array entry as [price, volume, time].
type restDepthResponse struct {
	Error  []string                 `json:"error"`
	Result map[string]restDepthBook `json:"result"`
}

type restDepthBook struct {
	Asks [][3]json.RawMessage `json:"asks"`
	Bids [][3]json.RawMessage `json:"bids"`
}

// RestClient fetches full order book snapshots over HTTP. The connection
// orchestrator falls back to this as soon as a book goes Invalid/Resyncing,
// when book.rest_fallback_after is positive, instead of waiting only for the
// next websocket snapshot.
type RestClient struct {
	http      httpclient.Client
	baseURL   string
	apiKey    string
	apiSecret string
}

// SetCredentials enables the private REST endpoints (GetWebSocketsToken).
func (r *RestClient) SetCredentials(apiKey, apiSecret string) {
	r.apiKey = apiKey
	r.apiSecret = apiSecret
}

// NewRestClient builds a RestClient. baseURL empty means Kraken's
// production REST host.
func NewRestClient(baseURL string, opts ...httpclient.ClientOption) (*RestClient, error) {
	if baseURL == "" {
		baseURL = defaultRestBaseURL
	}
	allOpts := append([]httpclient.ClientOption{httpclient.WithBaseURL(baseURL)}, opts...)
	c, err := httpclient.NewInstrumentedClient(allOpts...)
	if err != nil {
		return nil, apperror.New(apperror.CodeOrderbookFetchFail, apperror.WithCause(err))
	}
	return &RestClient{http: c, baseURL: baseURL}, nil
}

// FetchDepth retrieves a full order book snapshot for symbol at the given
// depth. The returned SnapshotUpdate's Sequence is always 0; the caller is
// responsible for assigning a fresh local sequence number the same way it
// would for a websocket snapshot.
func (r *RestClient) FetchDepth(ctx context.Context, symbol domain.Symbol, depth int) (domain.SnapshotUpdate, error) {
	path := fmt.Sprintf("%s/0/public/Depth", r.baseURL)
	resp, err := r.http.NewRequest().
		SetQueryParam("pair", string(symbol)).
		SetQueryParam("count", strconv.Itoa(depth)).
		Get(ctx, path)
	if err != nil {
		return domain.SnapshotUpdate{}, apperror.New(apperror.CodeOrderbookFetchFail, apperror.WithCause(err))
	}
	if resp.IsError() {
		return domain.SnapshotUpdate{}, apperror.New(apperror.CodeOrderbookFetchFail,
			apperror.WithMessage(fmt.Sprintf("kraken REST depth returned status %d", resp.StatusCode)))
	}

	var body restDepthResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return domain.SnapshotUpdate{}, apperror.New(apperror.CodeOrderbookFetchFail, apperror.WithCause(err))
	}
	if len(body.Error) > 0 {
		return domain.SnapshotUpdate{}, apperror.New(apperror.CodeOrderbookFetchFail,
			apperror.WithMessage(strings.Join(body.Error, "; ")))
	}
	for _, book := range body.Result {
		bids, err := restLevels(book.Bids)
		if err != nil {
			return domain.SnapshotUpdate{}, apperror.New(apperror.CodeOrderbookFetchFail, apperror.WithCause(err))
		}
		asks, err := restLevels(book.Asks)
		if err != nil {
			return domain.SnapshotUpdate{}, apperror.New(apperror.CodeOrderbookFetchFail, apperror.WithCause(err))
		}
		return domain.SnapshotUpdate{Bids: bids, Asks: asks}, nil
	}
	return domain.SnapshotUpdate{}, apperror.New(apperror.CodeOrderbookFetchFail,
		apperror.WithMessage("kraken REST depth returned no result for "+string(symbol)))
}

func restLevels(entries [][3]json.RawMessage) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(entries))
	for _, e := range entries {
		price, err := decimalFromRaw(e[0])
		if err != nil {
			return nil, err
		}
		volume, err := decimalFromRaw(e[1])
		if err != nil {
			return nil, err
		}
		ts, err := timeFromRaw(e[2])
		if err != nil {
			return nil, err
		}
		out = append(out, domain.PriceLevel{Price: price, Volume: volume, LevelTimestamp: ts})
	}
	return out, nil
}
