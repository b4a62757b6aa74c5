package app

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/fd1az/krakenfeed/business/marketdata/domain"
	"github.com/fd1az/krakenfeed/internal/ratelimit"
)

// DropPolicy selects what FlowControl does when its bounded queue is full.
type DropPolicy string

const (
	DropOldest DropPolicy = "DropOldest"
	DropNewest DropPolicy = "DropNewest"
	Coalesce   DropPolicy = "Coalesce"
	Block      DropPolicy = "Block"
)

// DropEvent reports one discarded event.
type DropEvent struct {
	Symbol domain.Symbol
	Reason string
}

// CoalesceEvent reports one merge of a fresh sample into an already-queued
// one.
type CoalesceEvent struct {
	Symbol domain.Symbol
	Kind   string
}

// RateLimitEvent reports the token bucket refusing admission.
type RateLimitEvent struct {
	Symbol domain.Symbol
	Rate   float64
}

// FlowControlStats are the counters the bounded queue maintains.
type FlowControlStats struct {
	TotalReceived  uint64
	TotalAccepted  uint64
	TotalDropped   uint64
	TotalCoalesced uint64
	CurrentRate    float64
	PeakRate       float64
	QueueDepth     int
}

type coalesceKey struct {
	kind   string
	symbol domain.Symbol
}

type queuedEntry struct {
	event      domain.Event
	key        coalesceKey
	coalescer  bool
	enqueuedAt time.Time
}

// FlowControl is the bounded queue fronting the dispatcher (C9): a
// token-bucket rate limiter gates admission, and on queue overflow one of
// DropOldest/DropNewest/Coalesce/Block decides what happens to the
// offending event.
type FlowControl struct {
	mu             sync.Mutex
	wake           chan struct{} // closed and replaced every time state a waiter cares about changes
	queue          *list.List    // of *queuedEntry, front = oldest
	index          map[coalesceKey]*list.Element
	capacity       int
	policy         DropPolicy
	limiter        *ratelimit.Limiter
	coalesceWindow time.Duration
	stats          FlowControlStats
	closed         bool

	rateWindowStart time.Time
	rateWindowCount uint64

	onDrop      func(DropEvent)
	onCoalesce  func(CoalesceEvent)
	onRateLimit func(RateLimitEvent)
}

// NewFlowControl builds a FlowControl. maxMessagesPerSec <= 0 disables rate
// limiting (an unbounded token bucket).
func NewFlowControl(capacity int, policy DropPolicy, maxMessagesPerSec int, coalesceWindow time.Duration) *FlowControl {
	f := &FlowControl{
		queue:          list.New(),
		index:          make(map[coalesceKey]*list.Element),
		capacity:       capacity,
		policy:         policy,
		coalesceWindow: coalesceWindow,
		wake:           make(chan struct{}),
	}
	if maxMessagesPerSec > 0 {
		f.limiter = ratelimit.NewWithBurst(float64(maxMessagesPerSec), maxMessagesPerSec)
	}
	return f
}

// broadcast must be called with mu held; it wakes every current waiter.
func (f *FlowControl) broadcast() {
	close(f.wake)
	f.wake = make(chan struct{})
}

func (f *FlowControl) OnDrop(fn func(DropEvent))           { f.onDrop = fn }
func (f *FlowControl) OnCoalesce(fn func(CoalesceEvent))   { f.onCoalesce = fn }
func (f *FlowControl) OnRateLimit(fn func(RateLimitEvent)) { f.onRateLimit = fn }

// Offer admits ev into the queue under key (event_kind, symbol). coalescible
// must be false for trade events, which the policy never merges regardless
// of the configured DropPolicy.
func (f *FlowControl) Offer(ctx context.Context, symbol domain.Symbol, kind string, coalescible bool, ev domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats.TotalReceived++

	if f.limiter != nil && !f.limiter.Allow() {
		f.stats.TotalDropped++
		if f.onRateLimit != nil {
			f.onRateLimit(RateLimitEvent{Symbol: symbol, Rate: f.stats.CurrentRate})
		}
		return nil
	}

	key := coalesceKey{kind: kind, symbol: symbol}
	entry := &queuedEntry{event: ev, key: key, coalescer: coalescible, enqueuedAt: time.Now()}

	if f.queue.Len() < f.capacity {
		f.admit(entry, key)
		return nil
	}

	switch f.policy {
	case DropOldest:
		f.evictFront("queue full")
		f.admit(entry, key)

	case DropNewest:
		f.stats.TotalDropped++
		if f.onDrop != nil {
			f.onDrop(DropEvent{Symbol: symbol, Reason: "queue full"})
		}

	case Coalesce:
		if coalescible {
			if existing, ok := f.index[key]; ok {
				qe := existing.Value.(*queuedEntry)
				if time.Since(qe.enqueuedAt) <= f.coalesceWindow {
					qe.event = ev
					qe.enqueuedAt = time.Now()
					f.stats.TotalCoalesced++
					if f.onCoalesce != nil {
						f.onCoalesce(CoalesceEvent{Symbol: symbol, Kind: kind})
					}
					return nil
				}
			}
		}
		f.evictFront("queue full, no coalesce target")
		f.admit(entry, key)

	case Block:
		for f.queue.Len() >= f.capacity && !f.closed {
			waitCh := f.wake
			f.mu.Unlock()
			select {
			case <-ctx.Done():
				f.mu.Lock()
				return ctx.Err()
			case <-waitCh:
			}
			f.mu.Lock()
		}
		if !f.closed {
			f.admit(entry, key)
		}
	}
	return nil
}

// admit must be called with mu held.
func (f *FlowControl) admit(entry *queuedEntry, key coalesceKey) {
	el := f.queue.PushBack(entry)
	if entry.coalescer {
		f.index[key] = el
	}
	f.stats.TotalAccepted++
	f.stats.QueueDepth = f.queue.Len()
	f.recordRate()
	f.broadcast()
}

// recordRate must be called with mu held. It tallies one admitted event into
// the current one-second window; once the window closes, CurrentRate is set
// to that window's events/sec and PeakRate tracks the highest value seen.
// CurrentRate holds its last computed value between window rollovers rather
// than decaying to zero the instant traffic pauses.
func (f *FlowControl) recordRate() {
	now := time.Now()
	if f.rateWindowStart.IsZero() {
		f.rateWindowStart = now
	}
	f.rateWindowCount++

	elapsed := now.Sub(f.rateWindowStart)
	if elapsed < time.Second {
		return
	}
	rate := float64(f.rateWindowCount) / elapsed.Seconds()
	f.stats.CurrentRate = rate
	if rate > f.stats.PeakRate {
		f.stats.PeakRate = rate
	}
	f.rateWindowStart = now
	f.rateWindowCount = 0
}

// evictFront must be called with mu held.
func (f *FlowControl) evictFront(reason string) {
	front := f.queue.Front()
	if front == nil {
		return
	}
	qe := front.Value.(*queuedEntry)
	f.queue.Remove(front)
	if existing, ok := f.index[qe.key]; ok && existing == front {
		delete(f.index, qe.key)
	}
	f.stats.TotalDropped++
	if f.onDrop != nil {
		f.onDrop(DropEvent{Symbol: qe.key.symbol, Reason: reason})
	}
}

// Dequeue blocks until an event is available or ctx is cancelled.
func (f *FlowControl) Dequeue(ctx context.Context) (domain.Event, bool) {
	f.mu.Lock()
	for f.queue.Len() == 0 && !f.closed {
		waitCh := f.wake
		f.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, false
		case <-waitCh:
		}
		f.mu.Lock()
	}
	defer f.mu.Unlock()
	front := f.queue.Front()
	if front == nil {
		return nil, false
	}
	qe := front.Value.(*queuedEntry)
	f.queue.Remove(front)
	if existing, ok := f.index[qe.key]; ok && existing == front {
		delete(f.index, qe.key)
	}
	f.stats.QueueDepth = f.queue.Len()
	f.broadcast()
	return qe.event, true
}

// Close wakes any blocked Offer/Dequeue callers.
func (f *FlowControl) Close() {
	f.mu.Lock()
	f.closed = true
	f.broadcast()
	f.mu.Unlock()
}

// Stats returns a snapshot of the queue's counters.
func (f *FlowControl) Stats() FlowControlStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}
