package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func lvl(price, volume string) PriceLevel {
	return PriceLevel{Price: decimal.RequireFromString(price), Volume: decimal.RequireFromString(volume)}
}

func TestBookApplySnapshotSortsAndStates(t *testing.T) {
	b := NewBook("BTC/USD", 0)

	err := b.ApplySnapshot(SnapshotUpdate{
		Bids:     []PriceLevel{lvl("100", "1"), lvl("102", "1")},
		Asks:     []PriceLevel{lvl("105", "1"), lvl("103", "1")},
		Sequence: 1,
	})
	if err != nil {
		t.Fatalf("ApplySnapshot: %v", err)
	}
	if b.State() != BookSnapshotted {
		t.Fatalf("state = %v, want BookSnapshotted", b.State())
	}

	snap := b.Snapshot()
	if !snap.Bids[0].Price.Equal(decimal.RequireFromString("102")) {
		t.Fatalf("bids not sorted descending: %v", snap.Bids)
	}
	if !snap.Asks[0].Price.Equal(decimal.RequireFromString("103")) {
		t.Fatalf("asks not sorted ascending: %v", snap.Asks)
	}
}

func TestBookApplySnapshotIdempotent(t *testing.T) {
	b := NewBook("BTC/USD", 0)
	u := SnapshotUpdate{Bids: []PriceLevel{lvl("100", "1")}, Asks: []PriceLevel{lvl("101", "1")}, Sequence: 1}

	if err := b.ApplySnapshot(u); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	first := b.Snapshot()

	if err := b.ApplySnapshot(u); err != nil {
		t.Fatalf("second identical apply: %v", err)
	}
	second := b.Snapshot()

	if first.Sequence != second.Sequence || !levelsEqual(first.Bids, second.Bids) {
		t.Fatalf("identical snapshot changed book state: %+v vs %+v", first, second)
	}
}

func TestBookApplyDeltaRequiresSnapshotFirst(t *testing.T) {
	b := NewBook("BTC/USD", 0)
	err := b.ApplyDelta(DeltaUpdate{Sequence: 1})
	if err == nil {
		t.Fatalf("expected error applying delta to an Empty book")
	}
}

func TestBookApplyDeltaRejectsNonContiguousSequence(t *testing.T) {
	b := NewBook("BTC/USD", 0)
	b.ApplySnapshot(SnapshotUpdate{Bids: []PriceLevel{lvl("100", "1")}, Asks: []PriceLevel{lvl("101", "1")}, Sequence: 5})

	err := b.ApplyDelta(DeltaUpdate{Sequence: 7})
	if err == nil {
		t.Fatalf("expected a sequence-gap error for non-contiguous delta")
	}
}

func TestBookApplyDeltaUpsertsAndRemoves(t *testing.T) {
	b := NewBook("BTC/USD", 0)
	b.ApplySnapshot(SnapshotUpdate{
		Bids:     []PriceLevel{lvl("100", "1"), lvl("99", "2")},
		Asks:     []PriceLevel{lvl("101", "1")},
		Sequence: 1,
	})

	err := b.ApplyDelta(DeltaUpdate{
		Bids:     []PriceLevel{lvl("100", "0"), lvl("98", "5")}, // remove 100, add 98
		Sequence: 2,
	})
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if b.State() != BookLive {
		t.Fatalf("state = %v, want BookLive", b.State())
	}

	snap := b.Snapshot()
	if len(snap.Bids) != 2 {
		t.Fatalf("bids = %v, want 2 levels (99 and 98)", snap.Bids)
	}
	for _, l := range snap.Bids {
		if l.Price.Equal(decimal.RequireFromString("100")) {
			t.Fatalf("removed level 100 still present: %v", snap.Bids)
		}
	}
}

func TestBookApplyDeltaDetectsCrossedBook(t *testing.T) {
	b := NewBook("BTC/USD", 0)
	b.ApplySnapshot(SnapshotUpdate{
		Bids:     []PriceLevel{lvl("100", "1")},
		Asks:     []PriceLevel{lvl("101", "1")},
		Sequence: 1,
	})

	// Push the best bid above the best ask: crossed.
	err := b.ApplyDelta(DeltaUpdate{Bids: []PriceLevel{lvl("102", "1")}, Sequence: 2})
	if err == nil {
		t.Fatalf("expected a crossed-book error")
	}
	if b.State() != BookInvalid {
		t.Fatalf("state = %v, want BookInvalid after crossed book", b.State())
	}
}

func TestBookApplySnapshotDetectsChecksumMismatch(t *testing.T) {
	b := NewBook("BTC/USD", 0)
	bad := uint32(0xDEADBEEF)
	err := b.ApplySnapshot(SnapshotUpdate{
		Bids:     []PriceLevel{lvl("100", "1")},
		Asks:     []PriceLevel{lvl("101", "1")},
		Sequence: 1,
		Checksum: &bad,
	})
	if err == nil {
		t.Fatalf("expected a checksum-mismatch error")
	}
	if b.State() != BookInvalid {
		t.Fatalf("state = %v, want BookInvalid", b.State())
	}
}

func TestBookDepthCapTruncates(t *testing.T) {
	b := NewBook("BTC/USD", 2)
	b.ApplySnapshot(SnapshotUpdate{
		Bids:     []PriceLevel{lvl("100", "1"), lvl("99", "1"), lvl("98", "1")},
		Asks:     []PriceLevel{lvl("101", "1")},
		Sequence: 1,
	})

	snap := b.Snapshot()
	if len(snap.Bids) != 2 {
		t.Fatalf("bids = %d levels, want 2 (depth cap)", len(snap.Bids))
	}
}

func TestBookBestBidAskMidSpread(t *testing.T) {
	b := NewBook("BTC/USD", 0)
	b.ApplySnapshot(SnapshotUpdate{
		Bids:     []PriceLevel{lvl("100", "1")},
		Asks:     []PriceLevel{lvl("102", "1")},
		Sequence: 1,
	})

	bid, ok := b.BestBid()
	if !ok || !bid.Price.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("BestBid = %v, %v", bid, ok)
	}
	ask, ok := b.BestAsk()
	if !ok || !ask.Price.Equal(decimal.RequireFromString("102")) {
		t.Fatalf("BestAsk = %v, %v", ask, ok)
	}
	mid, ok := b.Mid()
	if !ok || !mid.Equal(decimal.RequireFromString("101")) {
		t.Fatalf("Mid = %v, want 101", mid)
	}
	spread, ok := b.Spread()
	if !ok || !spread.Equal(decimal.RequireFromString("2")) {
		t.Fatalf("Spread = %v, want 2", spread)
	}
}

func TestBookImbalance(t *testing.T) {
	b := NewBook("BTC/USD", 0)
	b.ApplySnapshot(SnapshotUpdate{
		Bids:     []PriceLevel{lvl("100", "3")},
		Asks:     []PriceLevel{lvl("101", "1")},
		Sequence: 1,
	})

	imbalance, ok := b.Imbalance(10)
	if !ok {
		t.Fatalf("expected an imbalance value")
	}
	want := decimal.RequireFromString("0.5") // (3-1)/(3+1)
	if !imbalance.Equal(want) {
		t.Fatalf("Imbalance = %v, want %v", imbalance, want)
	}
}

func TestBookDepthLadderCumulativePct(t *testing.T) {
	b := NewBook("BTC/USD", 0)
	b.ApplySnapshot(SnapshotUpdate{
		Bids:     []PriceLevel{lvl("100", "1"), lvl("99", "1")},
		Asks:     []PriceLevel{lvl("101", "2")},
		Sequence: 1,
	})

	bids, _ := b.DepthLadder(2)
	if len(bids) != 2 {
		t.Fatalf("bids = %d rungs, want 2", len(bids))
	}
	if !bids[1].CumulativePct.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("last rung cumulative pct = %v, want 100", bids[1].CumulativePct)
	}
}

func TestComputeChecksumDeterministic(t *testing.T) {
	bids := []PriceLevel{lvl("100.10", "1.00")}
	asks := []PriceLevel{lvl("101.00", "2.50")}

	c1 := computeChecksum(bids, asks, 10)
	c2 := computeChecksum(bids, asks, 10)
	if c1 != c2 {
		t.Fatalf("checksum not deterministic: %d vs %d", c1, c2)
	}
}

func TestCanonicalDecimalStripsPunctuation(t *testing.T) {
	cases := map[string]string{
		"100.10": "10010",
		"0.0001": "1",
		"0":      "0",
		"-5.5":   "55",
	}
	for in, want := range cases {
		got := canonicalDecimal(decimal.RequireFromString(in))
		if got != want {
			t.Errorf("canonicalDecimal(%s) = %q, want %q", in, got, want)
		}
	}
}
