package domain

import (
	"sync"
	"time"
)

// GapPolicy controls what the sequence tracker does when it observes a
// discontinuity.
type GapPolicy string

const (
	GapResync GapPolicy = "Resync"
	GapIgnore GapPolicy = "Ignore"
	GapBuffer GapPolicy = "Buffer"
)

// SequenceKey identifies one independently-sequenced stream.
type SequenceKey struct {
	Symbol  Symbol
	Channel Kind
}

// Decision is the sequence tracker's verdict for one observed sequence
// number.
type Decision int

const (
	// DecisionDeliver: in order, pass through immediately.
	DecisionDeliver Decision = iota
	// DecisionDiscardDuplicate: s <= last_seq, already committed or stale.
	DecisionDiscardDuplicate
	// DecisionBuffered: s > last_seq+1 but within tolerance; held pending
	// the missing predecessors or the pending-timeout.
	DecisionBuffered
	// DecisionGapResync: gap exceeds tolerance (or pending is full, or the
	// buffering timeout expired); caller must trigger a resync.
	DecisionGapResync
)

// streamState is the per-key bookkeeping the tracker maintains:
// {last_seq, pending, gap_detected, messages_processed, total_gaps}.
type streamState struct {
	lastSeq           uint64
	hasLast           bool
	pending           map[uint64]time.Time
	gapDetected       bool
	messagesProcessed uint64
	totalGaps         uint64
}

// Tracker validates monotonic per-(symbol, channel) sequence numbers,
// detects gaps, and decides when a resync is warranted.
type Tracker struct {
	mu             sync.Mutex
	policy         GapPolicy
	maxGapSize     int
	maxPending     int
	pendingTimeout time.Duration
	states         map[SequenceKey]*streamState
}

// NewTracker builds a Tracker. maxPending bounds the out-of-order buffer
// per stream (the "pending buffer full" case); 0 means
// use a sensible default of 64.
func NewTracker(policy GapPolicy, maxGapSize int, pendingTimeout time.Duration, maxPending int) *Tracker {
	if maxPending <= 0 {
		maxPending = 64
	}
	return &Tracker{
		policy:         policy,
		maxGapSize:     maxGapSize,
		maxPending:     maxPending,
		pendingTimeout: pendingTimeout,
		states:         make(map[SequenceKey]*streamState),
	}
}

func (t *Tracker) stateFor(key SequenceKey) *streamState {
	st, ok := t.states[key]
	if !ok {
		st = &streamState{pending: make(map[uint64]time.Time)}
		t.states[key] = st
	}
	return st
}

// Observe records an observed sequence number s for key at time now and
// returns the tracker's decision. drained lists the contiguous sequence
// numbers that the caller's own reorder buffer can now release, in order,
// when the decision is DecisionDeliver and a prior gap had pending entries
// waiting on s.
func (t *Tracker) Observe(key SequenceKey, s uint64, now time.Time) (decision Decision, drained []uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.stateFor(key)

	if !st.hasLast {
		st.hasLast = true
		st.lastSeq = s
		st.messagesProcessed++
		return DecisionDeliver, nil
	}

	switch {
	case s == st.lastSeq+1:
		st.lastSeq = s
		st.messagesProcessed++
		st.gapDetected = false
		drained = t.drainContiguous(st)
		return DecisionDeliver, drained

	case s <= st.lastSeq:
		return DecisionDiscardDuplicate, nil

	default: // s > last_seq + 1: a gap
		gapSize := s - st.lastSeq - 1
		st.gapDetected = true
		st.totalGaps++

		switch t.policy {
		case GapIgnore:
			// Accept the data loss: advance the baseline to s and keep
			// delivering, never triggering a resync.
			st.lastSeq = s
			st.messagesProcessed++
			return DecisionDeliver, nil
		case GapBuffer:
			if int(gapSize) <= t.maxGapSize && len(st.pending) < t.maxPending {
				st.pending[s] = now
				return DecisionBuffered, nil
			}
			return DecisionGapResync, nil
		default: // GapResync
			return DecisionGapResync, nil
		}
	}
}

// drainContiguous releases pending entries that are now contiguous with
// the advanced lastSeq, advancing lastSeq through them.
func (t *Tracker) drainContiguous(st *streamState) []uint64 {
	var drained []uint64
	for {
		next := st.lastSeq + 1
		if _, ok := st.pending[next]; !ok {
			break
		}
		delete(st.pending, next)
		st.lastSeq = next
		st.messagesProcessed++
		drained = append(drained, next)
	}
	return drained
}

// ExpirePending scans key's buffered entries for ones older than
// pendingTimeout and, if any exist, reports a gap so the caller can trigger
// a resync (the gap was never filled before the buffering timeout expired).
func (t *Tracker) ExpirePending(key SequenceKey, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[key]
	if !ok || len(st.pending) == 0 {
		return false
	}
	for _, arrived := range st.pending {
		if now.Sub(arrived) >= t.pendingTimeout {
			st.pending = make(map[uint64]time.Time)
			st.gapDetected = true
			return true
		}
	}
	return false
}

// Reset clears tracked state for key, e.g. after a fresh snapshot makes the
// prior sequence baseline irrelevant.
func (t *Tracker) Reset(key SequenceKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, key)
}

// Stats reports the per-stream counters the tracker maintains for key.
func (t *Tracker) Stats(key SequenceKey) (messagesProcessed, totalGaps uint64, gapDetected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[key]
	if !ok {
		return 0, 0, false
	}
	return st.messagesProcessed, st.totalGaps, st.gapDetected
}
