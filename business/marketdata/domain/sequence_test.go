package domain

import (
	"testing"
	"time"
)

func TestTrackerFirstObservationAlwaysDelivers(t *testing.T) {
	tr := NewTracker(GapResync, 10, time.Second, 0)
	key := SequenceKey{Symbol: "BTC/USD", Channel: KindBook}

	decision, drained := tr.Observe(key, 42, time.Now())
	if decision != DecisionDeliver {
		t.Fatalf("first observation: got %v, want DecisionDeliver", decision)
	}
	if drained != nil {
		t.Fatalf("first observation: got drained %v, want nil", drained)
	}
}

func TestTrackerInOrderDelivers(t *testing.T) {
	tr := NewTracker(GapResync, 10, time.Second, 0)
	key := SequenceKey{Symbol: "BTC/USD", Channel: KindBook}
	now := time.Now()

	tr.Observe(key, 1, now)
	decision, _ := tr.Observe(key, 2, now)
	if decision != DecisionDeliver {
		t.Fatalf("got %v, want DecisionDeliver", decision)
	}

	msgs, gaps, gapDetected := tr.Stats(key)
	if msgs != 2 || gaps != 0 || gapDetected {
		t.Fatalf("stats = (%d, %d, %v), want (2, 0, false)", msgs, gaps, gapDetected)
	}
}

func TestTrackerDuplicateDiscarded(t *testing.T) {
	tr := NewTracker(GapResync, 10, time.Second, 0)
	key := SequenceKey{Symbol: "BTC/USD", Channel: KindBook}
	now := time.Now()

	tr.Observe(key, 1, now)
	tr.Observe(key, 2, now)

	decision, _ := tr.Observe(key, 1, now)
	if decision != DecisionDiscardDuplicate {
		t.Fatalf("got %v, want DecisionDiscardDuplicate", decision)
	}
	decision, _ = tr.Observe(key, 2, now)
	if decision != DecisionDiscardDuplicate {
		t.Fatalf("got %v, want DecisionDiscardDuplicate", decision)
	}
}

func TestTrackerResyncPolicyAlwaysResyncsOnGap(t *testing.T) {
	tr := NewTracker(GapResync, 10, time.Second, 0)
	key := SequenceKey{Symbol: "BTC/USD", Channel: KindBook}
	now := time.Now()

	tr.Observe(key, 1, now)
	decision, _ := tr.Observe(key, 3, now) // gap of 1
	if decision != DecisionGapResync {
		t.Fatalf("got %v, want DecisionGapResync", decision)
	}

	_, gaps, gapDetected := tr.Stats(key)
	if gaps != 1 || !gapDetected {
		t.Fatalf("gaps=%d gapDetected=%v, want (1, true)", gaps, gapDetected)
	}
}

func TestTrackerIgnorePolicyAcceptsSmallGapWithoutResync(t *testing.T) {
	tr := NewTracker(GapIgnore, 10, time.Second, 0)
	key := SequenceKey{Symbol: "BTC/USD", Channel: KindBook}
	now := time.Now()

	tr.Observe(key, 1, now)
	decision, _ := tr.Observe(key, 3, now) // gap of 1, well within maxGapSize
	if decision != DecisionDeliver {
		t.Fatalf("got %v, want DecisionDeliver (Ignore accepts the loss and keeps delivering)", decision)
	}

	// The baseline advances to 3: the next in-order value is 4, not 2.
	decision, _ = tr.Observe(key, 4, now)
	if decision != DecisionDeliver {
		t.Fatalf("got %v, want DecisionDeliver", decision)
	}
}

func TestTrackerIgnorePolicyNeverResyncsEvenBeyondTolerance(t *testing.T) {
	tr := NewTracker(GapIgnore, 10, time.Second, 0)
	key := SequenceKey{Symbol: "BTC/USD", Channel: KindBook}
	now := time.Now()

	tr.Observe(key, 1, now)
	decision, _ := tr.Observe(key, 100, now) // gap of 98, far beyond maxGapSize
	if decision != DecisionDeliver {
		t.Fatalf("got %v, want DecisionDeliver (Ignore never resyncs, regardless of gap size)", decision)
	}

	_, gaps, gapDetected := tr.Stats(key)
	if gaps != 1 || !gapDetected {
		t.Fatalf("gaps=%d gapDetected=%v, want (1, true) (the gap is still counted, just not resynced)", gaps, gapDetected)
	}
}

func TestTrackerBufferPolicyHoldsAndDrainsOnFill(t *testing.T) {
	tr := NewTracker(GapBuffer, 5, time.Second, 0)
	key := SequenceKey{Symbol: "BTC/USD", Channel: KindBook}
	now := time.Now()

	tr.Observe(key, 1, now)

	decision, drained := tr.Observe(key, 3, now) // gap of 1, within tolerance
	if decision != DecisionBuffered || drained != nil {
		t.Fatalf("got (%v, %v), want (DecisionBuffered, nil)", decision, drained)
	}

	// 2 arrives, filling the hole: 3 should now drain too.
	decision, drained = tr.Observe(key, 2, now)
	if decision != DecisionDeliver {
		t.Fatalf("got %v, want DecisionDeliver", decision)
	}
	if len(drained) != 1 || drained[0] != 3 {
		t.Fatalf("drained = %v, want [3]", drained)
	}
}

func TestTrackerBufferPolicyResyncsBeyondMaxGap(t *testing.T) {
	tr := NewTracker(GapBuffer, 2, time.Second, 0)
	key := SequenceKey{Symbol: "BTC/USD", Channel: KindBook}
	now := time.Now()

	tr.Observe(key, 1, now)
	decision, _ := tr.Observe(key, 10, now) // gap of 8, exceeds maxGapSize
	if decision != DecisionGapResync {
		t.Fatalf("got %v, want DecisionGapResync", decision)
	}
}

func TestTrackerBufferPolicyResyncsWhenPendingFull(t *testing.T) {
	tr := NewTracker(GapBuffer, 100, time.Second, 2)
	key := SequenceKey{Symbol: "BTC/USD", Channel: KindBook}
	now := time.Now()

	tr.Observe(key, 1, now)
	tr.Observe(key, 3, now) // pending: {3}
	tr.Observe(key, 5, now) // pending: {3, 5}, at capacity

	decision, _ := tr.Observe(key, 7, now) // pending already at maxPending
	if decision != DecisionGapResync {
		t.Fatalf("got %v, want DecisionGapResync", decision)
	}
}

func TestTrackerExpirePendingReportsStaleGap(t *testing.T) {
	tr := NewTracker(GapBuffer, 10, 50*time.Millisecond, 0)
	key := SequenceKey{Symbol: "BTC/USD", Channel: KindBook}
	now := time.Now()

	tr.Observe(key, 1, now)
	tr.Observe(key, 3, now) // buffered, waiting on 2

	if expired := tr.ExpirePending(key, now.Add(10*time.Millisecond)); expired {
		t.Fatalf("expired too early")
	}
	if expired := tr.ExpirePending(key, now.Add(100*time.Millisecond)); !expired {
		t.Fatalf("expected pending entry to expire")
	}

	_, gaps, gapDetected := tr.Stats(key)
	if gaps != 1 || !gapDetected {
		t.Fatalf("gaps=%d gapDetected=%v, want (1, true)", gaps, gapDetected)
	}
}

func TestTrackerResetClearsState(t *testing.T) {
	tr := NewTracker(GapResync, 10, time.Second, 0)
	key := SequenceKey{Symbol: "BTC/USD", Channel: KindBook}
	now := time.Now()

	tr.Observe(key, 1, now)
	tr.Observe(key, 2, now)
	tr.Reset(key)

	msgs, _, _ := tr.Stats(key)
	if msgs != 0 {
		t.Fatalf("stats after reset: messagesProcessed = %d, want 0", msgs)
	}

	// Next observation is treated as a fresh baseline, any value accepted.
	decision, _ := tr.Observe(key, 500, now)
	if decision != DecisionDeliver {
		t.Fatalf("got %v, want DecisionDeliver after reset", decision)
	}
}

func TestTrackerIndependentStreamsDoNotInterfere(t *testing.T) {
	tr := NewTracker(GapResync, 10, time.Second, 0)
	btc := SequenceKey{Symbol: "BTC/USD", Channel: KindBook}
	eth := SequenceKey{Symbol: "ETH/USD", Channel: KindBook}
	now := time.Now()

	tr.Observe(btc, 1, now)
	tr.Observe(btc, 2, now)

	decision, _ := tr.Observe(eth, 1, now)
	if decision != DecisionDeliver {
		t.Fatalf("eth stream got %v, want DecisionDeliver (unaffected by btc)", decision)
	}
}
