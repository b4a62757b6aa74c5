package app

import (
	"sort"
	"sync"
	"time"

	"github.com/fd1az/krakenfeed/business/marketdata/domain"
)

const (
	defaultMaxSamples         = 10000
	defaultHistogramBuckets   = 100
	defaultHistogramWidth     = time.Millisecond
	clockSkewDiscardThreshold = -time.Second
)

// LatencySample is one accepted (exchange_ts, recv_ts, process_ts)
// observation.
type LatencySample struct {
	Channel domain.Kind
	Symbol  domain.Symbol
	Network time.Duration // recv - exchange
	Process time.Duration // process - recv
	Total   time.Duration // process - exchange
}

// AlertKind names which threshold an Alert crossed.
type AlertKind string

const (
	AlertNetwork AlertKind = "Network"
	AlertTotal   AlertKind = "Total"
)

// Alert fires when a sample crosses a configured threshold.
type Alert struct {
	Kind      AlertKind
	Value     time.Duration
	Threshold time.Duration
	Channel   domain.Kind
	Symbol    domain.Symbol
}

// Percentiles is the snapshot latency.go exposes on demand.
type Percentiles struct {
	P50, P75, P90, P95, P99, P999 time.Duration
}

// Tracker records per-sample latency in a bounded rolling ring and exposes
// percentile/histogram queries plus threshold alerts.
type Tracker struct {
	mu               sync.Mutex
	ring             []LatencySample
	next             int
	count            int
	maxSamples       int
	networkThreshold time.Duration
	totalThreshold   time.Duration
	onAlert          func(Alert)
}

// NewTracker builds a Tracker. maxSamples <= 0 uses the default of 10,000.
func NewTracker(maxSamples int, networkThreshold, totalThreshold time.Duration) *Tracker {
	if maxSamples <= 0 {
		maxSamples = defaultMaxSamples
	}
	return &Tracker{
		ring:             make([]LatencySample, maxSamples),
		maxSamples:       maxSamples,
		networkThreshold: networkThreshold,
		totalThreshold:   totalThreshold,
	}
}

// OnAlert registers the threshold-crossing sink.
func (t *Tracker) OnAlert(fn func(Alert)) { t.onAlert = fn }

// Observe records one sample's timestamps. Per the clock-skew caveat, a
// sample whose recv precedes exchange by more than a second is still
// delivered to the caller but excluded from the rolling stats - it almost
// always means a skewed clock, not a genuinely negative network latency.
func (t *Tracker) Observe(channel domain.Kind, symbol domain.Symbol, exchangeTS, recvTS, processTS time.Time) {
	network := recvTS.Sub(exchangeTS)
	if network < clockSkewDiscardThreshold {
		return
	}
	sample := LatencySample{
		Channel: channel,
		Symbol:  symbol,
		Network: network,
		Process: processTS.Sub(recvTS),
		Total:   processTS.Sub(exchangeTS),
	}

	t.mu.Lock()
	t.ring[t.next] = sample
	t.next = (t.next + 1) % t.maxSamples
	if t.count < t.maxSamples {
		t.count++
	}
	t.mu.Unlock()

	if t.networkThreshold > 0 && sample.Network > t.networkThreshold && t.onAlert != nil {
		t.onAlert(Alert{Kind: AlertNetwork, Value: sample.Network, Threshold: t.networkThreshold, Channel: channel, Symbol: symbol})
	}
	if t.totalThreshold > 0 && sample.Total > t.totalThreshold && t.onAlert != nil {
		t.onAlert(Alert{Kind: AlertTotal, Value: sample.Total, Threshold: t.totalThreshold, Channel: channel, Symbol: symbol})
	}
}

func (t *Tracker) snapshotTotals() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]time.Duration, t.count)
	for i := 0; i < t.count; i++ {
		out[i] = t.ring[i].Total
	}
	return out
}

// Percentiles computes p50/p75/p90/p95/p99/p999 over total latency across
// the current ring contents.
func (t *Tracker) Percentiles() Percentiles {
	values := t.snapshotTotals()
	if len(values) == 0 {
		return Percentiles{}
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	pick := func(p float64) time.Duration {
		idx := int(p * float64(len(values)-1))
		return values[idx]
	}
	return Percentiles{
		P50:  pick(0.50),
		P75:  pick(0.75),
		P90:  pick(0.90),
		P95:  pick(0.95),
		P99:  pick(0.99),
		P999: pick(0.999),
	}
}

// HistogramBucket is one fixed-width bucket of the total-latency
// histogram.
type HistogramBucket struct {
	LowerBound time.Duration
	Count      int
}

// Histogram buckets total latency into bucketWidth-wide buckets (default 1
// ms, 100 buckets); samples beyond the last bucket accumulate in it.
func (t *Tracker) Histogram(bucketWidth time.Duration, buckets int) []HistogramBucket {
	if bucketWidth <= 0 {
		bucketWidth = defaultHistogramWidth
	}
	if buckets <= 0 {
		buckets = defaultHistogramBuckets
	}
	out := make([]HistogramBucket, buckets)
	for i := range out {
		out[i] = HistogramBucket{LowerBound: time.Duration(i) * bucketWidth}
	}
	for _, v := range t.snapshotTotals() {
		idx := int(v / bucketWidth)
		if idx >= buckets {
			idx = buckets - 1
		}
		if idx < 0 {
			idx = 0
		}
		out[idx].Count++
	}
	return out
}

// SampleCount reports how many samples are currently in the ring.
func (t *Tracker) SampleCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}
