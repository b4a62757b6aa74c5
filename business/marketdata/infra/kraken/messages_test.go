package kraken

import "testing"

func TestParseArrayMessageExtractsFields(t *testing.T) {
	raw := []byte(`[340, {"a":["100.0"]}, "ticker", "XBT/USD"]`)

	msg, err := ParseArrayMessage(raw)
	if err != nil {
		t.Fatalf("ParseArrayMessage: %v", err)
	}
	if msg.ChannelID != 340 {
		t.Fatalf("ChannelID = %d, want 340", msg.ChannelID)
	}
	if msg.ChannelName != "ticker" {
		t.Fatalf("ChannelName = %q, want ticker", msg.ChannelName)
	}
	if msg.Pair != "XBT/USD" {
		t.Fatalf("Pair = %q, want XBT/USD", msg.Pair)
	}
	if string(msg.Payload) != `{"a":["100.0"]}` {
		t.Fatalf("Payload = %s, want the raw data object", msg.Payload)
	}
}

func TestParseArrayMessageAcceptsFiveElementBookFraming(t *testing.T) {
	// book-N messages interleave a separate bid/ask update as elements 1-2.
	raw := []byte(`[336, {"a":[["100.0","1","123"]]}, {"b":[["99.0","1","123"]]}, "book-10", "XBT/USD"]`)

	msg, err := ParseArrayMessage(raw)
	if err != nil {
		t.Fatalf("ParseArrayMessage: %v", err)
	}
	if msg.ChannelName != "book-10" {
		t.Fatalf("ChannelName = %q, want book-10", msg.ChannelName)
	}
	if msg.Pair != "XBT/USD" {
		t.Fatalf("Pair = %q, want XBT/USD", msg.Pair)
	}
}

func TestParseArrayMessageRejectsTooFewElements(t *testing.T) {
	_, err := ParseArrayMessage([]byte(`[340, {}, "ticker"]`))
	if err == nil {
		t.Fatalf("expected an error for a 3-element array message")
	}
}

func TestParseArrayMessageRejectsMalformedJSON(t *testing.T) {
	_, err := ParseArrayMessage([]byte(`not json`))
	if err == nil {
		t.Fatalf("expected an error for malformed JSON")
	}
}

func TestParseArrayMessageRejectsNonIntChannelID(t *testing.T) {
	_, err := ParseArrayMessage([]byte(`["not-an-id", {}, "ticker", "XBT/USD"]`))
	if err == nil {
		t.Fatalf("expected an error when channelID is not numeric")
	}
}
