package kraken

import "testing"

func TestSignRequestIsDeterministic(t *testing.T) {
	r := &RestClient{apiSecret: "c2VjcmV0a2V5"} // base64("secretkey")

	sig1, err := r.signRequest("/0/private/GetWebSocketsToken", "1700000000000", "nonce=1700000000000")
	if err != nil {
		t.Fatalf("signRequest: %v", err)
	}
	sig2, err := r.signRequest("/0/private/GetWebSocketsToken", "1700000000000", "nonce=1700000000000")
	if err != nil {
		t.Fatalf("signRequest: %v", err)
	}
	if sig1 != sig2 {
		t.Fatalf("signRequest not deterministic: %q vs %q", sig1, sig2)
	}
}

func TestSignRequestVariesWithPath(t *testing.T) {
	r := &RestClient{apiSecret: "c2VjcmV0a2V5"}

	sigA, err := r.signRequest("/0/private/GetWebSocketsToken", "1", "nonce=1")
	if err != nil {
		t.Fatalf("signRequest: %v", err)
	}
	sigB, err := r.signRequest("/0/private/AddOrder", "1", "nonce=1")
	if err != nil {
		t.Fatalf("signRequest: %v", err)
	}
	if sigA == sigB {
		t.Fatalf("signatures for different paths should differ")
	}
}

func TestSignRequestRejectsInvalidBase64Secret(t *testing.T) {
	r := &RestClient{apiSecret: "not-valid-base64!!"}
	if _, err := r.signRequest("/0/private/GetWebSocketsToken", "1", "nonce=1"); err == nil {
		t.Fatalf("expected an error for a non-base64 secret")
	}
}

func TestGetWebSocketsTokenRequiresCredentials(t *testing.T) {
	r := &RestClient{}
	if _, err := r.GetWebSocketsToken(nil); err == nil {
		t.Fatalf("expected an error when no API credentials are configured")
	}
}
