package app

import (
	"testing"
	"time"
)

func TestTrackerObserveRecordsSample(t *testing.T) {
	tr := NewTracker(10, 0, 0)
	base := time.Now()

	tr.Observe("ticker", "BTC/USD", base, base.Add(10*time.Millisecond), base.Add(15*time.Millisecond))

	if got := tr.SampleCount(); got != 1 {
		t.Fatalf("SampleCount = %d, want 1", got)
	}
}

func TestTrackerDiscardsClockSkewedSamples(t *testing.T) {
	tr := NewTracker(10, 0, 0)
	base := time.Now()

	// recv precedes exchange by more than a second: treated as clock skew.
	tr.Observe("ticker", "BTC/USD", base, base.Add(-2*time.Second), base)

	if got := tr.SampleCount(); got != 0 {
		t.Fatalf("SampleCount = %d, want 0 for a clock-skewed sample", got)
	}
}

func TestTrackerRingWrapsAtCapacity(t *testing.T) {
	tr := NewTracker(3, 0, 0)
	base := time.Now()

	for i := 0; i < 5; i++ {
		tr.Observe("ticker", "BTC/USD", base, base, base)
	}

	if got := tr.SampleCount(); got != 3 {
		t.Fatalf("SampleCount = %d, want 3 (bounded by ring capacity)", got)
	}
}

func TestTrackerNetworkThresholdFiresAlert(t *testing.T) {
	tr := NewTracker(10, 5*time.Millisecond, 0)
	var alerts []Alert
	tr.OnAlert(func(a Alert) { alerts = append(alerts, a) })

	base := time.Now()
	tr.Observe("ticker", "BTC/USD", base, base.Add(50*time.Millisecond), base.Add(51*time.Millisecond))

	if len(alerts) != 1 || alerts[0].Kind != AlertNetwork {
		t.Fatalf("alerts = %v, want one AlertNetwork", alerts)
	}
}

func TestTrackerTotalThresholdFiresAlert(t *testing.T) {
	tr := NewTracker(10, 0, 20*time.Millisecond)
	var alerts []Alert
	tr.OnAlert(func(a Alert) { alerts = append(alerts, a) })

	base := time.Now()
	tr.Observe("ticker", "BTC/USD", base, base.Add(5*time.Millisecond), base.Add(50*time.Millisecond))

	if len(alerts) != 1 || alerts[0].Kind != AlertTotal {
		t.Fatalf("alerts = %v, want one AlertTotal", alerts)
	}
}

func TestTrackerPercentilesOnEmptyTracker(t *testing.T) {
	tr := NewTracker(10, 0, 0)
	if got := tr.Percentiles(); got != (Percentiles{}) {
		t.Fatalf("Percentiles on an empty tracker = %+v, want zero value", got)
	}
}

func TestTrackerPercentilesOrderPreserved(t *testing.T) {
	tr := NewTracker(100, 0, 0)
	base := time.Now()

	for i := 1; i <= 100; i++ {
		tr.Observe("ticker", "BTC/USD", base, base, base.Add(time.Duration(i)*time.Millisecond))
	}

	p := tr.Percentiles()
	if p.P50 > p.P90 || p.P90 > p.P99 {
		t.Fatalf("percentiles not monotonic: p50=%v p90=%v p99=%v", p.P50, p.P90, p.P99)
	}
}

func TestTrackerHistogramBucketsByWidth(t *testing.T) {
	tr := NewTracker(10, 0, 0)
	base := time.Now()

	tr.Observe("ticker", "BTC/USD", base, base, base.Add(2*time.Millisecond))
	tr.Observe("ticker", "BTC/USD", base, base, base.Add(2*time.Millisecond))
	tr.Observe("ticker", "BTC/USD", base, base, base.Add(500*time.Microsecond))

	hist := tr.Histogram(time.Millisecond, 10)
	if hist[2].Count != 2 {
		t.Fatalf("bucket[2].Count = %d, want 2 (two 2ms samples)", hist[2].Count)
	}
	if hist[0].Count != 1 {
		t.Fatalf("bucket[0].Count = %d, want 1 (the 500us sample)", hist[0].Count)
	}
}

func TestTrackerHistogramClampsOverflowToLastBucket(t *testing.T) {
	tr := NewTracker(10, 0, 0)
	base := time.Now()

	tr.Observe("ticker", "BTC/USD", base, base, base.Add(time.Second)) // far beyond 10 buckets of 1ms
	hist := tr.Histogram(time.Millisecond, 10)

	if hist[9].Count != 1 {
		t.Fatalf("last bucket Count = %d, want 1 (overflow samples accumulate there)", hist[9].Count)
	}
}
