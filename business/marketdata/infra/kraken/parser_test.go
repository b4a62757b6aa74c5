package kraken

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseTickerExtractsFirstValueOfEachField(t *testing.T) {
	payload := json.RawMessage(`{
		"a": ["101.5", "1", "1.000"],
		"b": ["100.5", "2", "2.000"],
		"c": ["101.0", "0.5"],
		"v": ["10.0", "20.0"]
	}`)

	sample, err := ParseTicker("BTC/USD", payload)
	if err != nil {
		t.Fatalf("ParseTicker: %v", err)
	}
	if sample.Symbol != "BTC/USD" {
		t.Fatalf("Symbol = %q, want BTC/USD", sample.Symbol)
	}
	if !sample.Bid.Equal(decimal.RequireFromString("100.5")) {
		t.Fatalf("Bid = %v, want 100.5", sample.Bid)
	}
	if !sample.Ask.Equal(decimal.RequireFromString("101.5")) {
		t.Fatalf("Ask = %v, want 101.5", sample.Ask)
	}
	if !sample.LastPrice.Equal(decimal.RequireFromString("101.0")) {
		t.Fatalf("LastPrice = %v, want 101.0", sample.LastPrice)
	}
	if !sample.Volume.Equal(decimal.RequireFromString("10.0")) {
		t.Fatalf("Volume = %v, want 10.0", sample.Volume)
	}
}

func TestParseTickerRejectsEmptyField(t *testing.T) {
	payload := json.RawMessage(`{"a": [], "b": ["1"], "c": ["1"], "v": ["1"]}`)
	if _, err := ParseTicker("BTC/USD", payload); err == nil {
		t.Fatalf("expected an error for an empty ask field")
	}
}

func TestParseTradesDecodesPriceVolumeSideAndTime(t *testing.T) {
	payload := json.RawMessage(`[
		["100.0", "1.5", "1700000000.123456", "b", "m", ""],
		["101.0", "0.5", "1700000001.0", "s", "l", ""]
	]`)

	trades, err := ParseTrades("BTC/USD", payload)
	if err != nil {
		t.Fatalf("ParseTrades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("len(trades) = %d, want 2", len(trades))
	}
	if trades[0].Side != "Buy" {
		t.Fatalf("trades[0].Side = %q, want Buy", trades[0].Side)
	}
	if trades[1].Side != "Sell" {
		t.Fatalf("trades[1].Side = %q, want Sell", trades[1].Side)
	}
	if !trades[0].Price.Equal(decimal.RequireFromString("100.0")) {
		t.Fatalf("trades[0].Price = %v, want 100.0", trades[0].Price)
	}
}

func TestParseBookSnapshotDecodesBidsAndAsks(t *testing.T) {
	payload := json.RawMessage(`{
		"bs": [["100.0", "1.0", "1700000000.0"]],
		"as": [["101.0", "2.0", "1700000000.0"]]
	}`)

	snap, err := ParseBookSnapshot(payload, 42)
	if err != nil {
		t.Fatalf("ParseBookSnapshot: %v", err)
	}
	if snap.Sequence != 42 {
		t.Fatalf("Sequence = %d, want 42", snap.Sequence)
	}
	if len(snap.Bids) != 1 || len(snap.Asks) != 1 {
		t.Fatalf("Bids/Asks = %v / %v, want 1 each", snap.Bids, snap.Asks)
	}
	if !snap.Bids[0].Price.Equal(decimal.RequireFromString("100.0")) {
		t.Fatalf("Bids[0].Price = %v, want 100.0", snap.Bids[0].Price)
	}
}

func TestParseBookDeltaDecodesOptionalChecksum(t *testing.T) {
	payload := json.RawMessage(`{
		"b": [["100.0", "0", "1700000000.0"]],
		"c": "123456789"
	}`)

	delta, err := ParseBookDelta(payload, 7)
	if err != nil {
		t.Fatalf("ParseBookDelta: %v", err)
	}
	if delta.Checksum == nil {
		t.Fatalf("Checksum = nil, want 123456789")
	}
	if *delta.Checksum != 123456789 {
		t.Fatalf("Checksum = %d, want 123456789", *delta.Checksum)
	}
}

func TestParseBookDeltaWithoutChecksum(t *testing.T) {
	payload := json.RawMessage(`{"a": [["101.0", "1.0", "1700000000.0"]]}`)

	delta, err := ParseBookDelta(payload, 7)
	if err != nil {
		t.Fatalf("ParseBookDelta: %v", err)
	}
	if delta.Checksum != nil {
		t.Fatalf("Checksum = %v, want nil", delta.Checksum)
	}
}

func TestParseOhlcUsesLastEntryAndAllFields(t *testing.T) {
	payload := json.RawMessage(`[
		["1700000000.0", "1700000060.0", "100.0", "110.0", "95.0", "105.0", "102.5", "50.0", 10]
	]`)

	bar, err := ParseOhlc("BTC/USD", payload, 1)
	if err != nil {
		t.Fatalf("ParseOhlc: %v", err)
	}
	if !bar.Open.Equal(decimal.RequireFromString("100.0")) {
		t.Fatalf("Open = %v, want 100.0", bar.Open)
	}
	if !bar.Close.Equal(decimal.RequireFromString("105.0")) {
		t.Fatalf("Close = %v, want 105.0", bar.Close)
	}
	if !bar.Vwap.Equal(decimal.RequireFromString("102.5")) {
		t.Fatalf("Vwap = %v, want 102.5", bar.Vwap)
	}
	if bar.IntervalMinutes != 1 {
		t.Fatalf("IntervalMinutes = %d, want 1", bar.IntervalMinutes)
	}
}

func TestParseOhlcRejectsEmptyPayload(t *testing.T) {
	if _, err := ParseOhlc("BTC/USD", json.RawMessage(`[]`), 1); err == nil {
		t.Fatalf("expected an error for an empty ohlc payload")
	}
}

func TestDecimalFromRawAcceptsStringOrFloat(t *testing.T) {
	s, err := decimalFromRaw(json.RawMessage(`"12.34"`))
	if err != nil || !s.Equal(decimal.RequireFromString("12.34")) {
		t.Fatalf("decimalFromRaw(string) = %v, %v", s, err)
	}
	f, err := decimalFromRaw(json.RawMessage(`12.34`))
	if err != nil || !f.Equal(decimal.RequireFromString("12.34")) {
		t.Fatalf("decimalFromRaw(float) = %v, %v", f, err)
	}
}

func TestUnixSecondsToTimePreservesSubsecondPrecision(t *testing.T) {
	ts := unixSecondsToTime(1700000000.5)
	if ts.Nanosecond() == 0 {
		t.Fatalf("expected sub-second precision to survive conversion, got %v", ts)
	}
}
