package domain

import "testing"

func TestNormalizeUppercasesAndTrims(t *testing.T) {
	if got := Normalize(" btc/usd "); got != Symbol("BTC/USD") {
		t.Fatalf("Normalize = %q, want BTC/USD", got)
	}
}

func TestChannelIsPrivate(t *testing.T) {
	if (Channel{Kind: KindTicker}).IsPrivate() {
		t.Fatalf("ticker channel should not be private")
	}
	if !(Channel{Kind: KindOwnTrades}).IsPrivate() {
		t.Fatalf("ownTrades channel should be private")
	}
}

func TestChannelValidateRequiresSymbolForPublicChannels(t *testing.T) {
	ch := Channel{Kind: KindTicker}
	if err := ch.Validate(false); err == nil {
		t.Fatalf("expected error for a ticker channel with no symbols")
	}
}

func TestChannelValidateBookDepth(t *testing.T) {
	ch := Channel{Kind: KindBook, Symbols: []Symbol{"BTC/USD"}, Depth: 7}
	if err := ch.Validate(false); err == nil {
		t.Fatalf("expected error for an unsupported book depth")
	}
	ch.Depth = 25
	if err := ch.Validate(false); err != nil {
		t.Fatalf("Validate with supported depth: %v", err)
	}
}

func TestChannelValidateOhlcInterval(t *testing.T) {
	ch := Channel{Kind: KindOhlc, Symbols: []Symbol{"BTC/USD"}, Interval: 7}
	if err := ch.Validate(false); err == nil {
		t.Fatalf("expected error for an unsupported ohlc interval")
	}
	ch.Interval = 60
	if err := ch.Validate(false); err != nil {
		t.Fatalf("Validate with supported interval: %v", err)
	}
}

func TestChannelValidatePrivateRequiresCredentials(t *testing.T) {
	ch := Channel{Kind: KindOwnTrades}
	if err := ch.Validate(false); err == nil {
		t.Fatalf("expected error for a private channel without credentials")
	}
	if err := ch.Validate(true); err != nil {
		t.Fatalf("Validate with credentials: %v", err)
	}
}

func TestChannelFingerprintIgnoresSymbolOrder(t *testing.T) {
	a := Channel{Kind: KindTicker, Symbols: []Symbol{"BTC/USD", "ETH/USD"}}
	b := Channel{Kind: KindTicker, Symbols: []Symbol{"ETH/USD", "BTC/USD"}}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("fingerprints differ by symbol order: %q vs %q", a.Fingerprint(), b.Fingerprint())
	}
}

func TestChannelFingerprintDistinguishesDepthAndInterval(t *testing.T) {
	a := Channel{Kind: KindBook, Symbols: []Symbol{"BTC/USD"}, Depth: 10}
	b := Channel{Kind: KindBook, Symbols: []Symbol{"BTC/USD"}, Depth: 25}
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatalf("fingerprints should differ by depth: %q", a.Fingerprint())
	}
}
