package app

import (
	"sync"
	"time"

	"github.com/fd1az/krakenfeed/business/marketdata/domain"
)

type bookKey struct {
	symbol domain.Symbol
	depth  int
}

// BookManager owns one domain.Book per (symbol, depth) subscription plus
// the sequence tracker validating its deltas, and turns Kraken's raw
// snapshot/delta frames into domain.Event values the dispatcher can fan
// out.
type BookManager struct {
	mu               sync.RWMutex
	books            map[bookKey]*domain.Book
	tracker          *domain.Tracker
	gapRest          time.Duration
	restFn           func(symbol domain.Symbol, depth int)
	onEvent          func(domain.Event, domain.Symbol, bool)
	onResync         func(symbol domain.Symbol, depth int)
	onResyncComplete func(symbol domain.Symbol, depth int)
}

// NewBookManager builds a BookManager. restFallback is called as soon as a
// book goes Invalid/Resyncing, provided restAfter is positive (0 disables the
// fallback entirely); the length of restAfter is not used as a delay. It is
// expected to trigger RestClient.FetchDepth and feed the result back through
// ApplySnapshot.
func NewBookManager(tracker *domain.Tracker, restAfter time.Duration, restFallback func(symbol domain.Symbol, depth int)) *BookManager {
	return &BookManager{
		books:   make(map[bookKey]*domain.Book),
		tracker: tracker,
		gapRest: restAfter,
		restFn:  restFallback,
	}
}

// OnEvent registers the sink for book-derived events (OrderBookEvent,
// GapDetectedEvent, ResyncEvent). coalescible is true for OrderBookEvent
// (ticker-like, merge-safe) and false for the others.
func (m *BookManager) OnEvent(fn func(ev domain.Event, symbol domain.Symbol, coalescible bool)) {
	m.onEvent = fn
}

// OnResync registers the hook run when a sequence gap beyond tolerance
// forces a resync under the Resync policy: the caller is expected to drive
// the connection FSM into Resyncing and unsubscribe/re-subscribe the book
// channel so the exchange sends a fresh snapshot.
func (m *BookManager) OnResync(fn func(symbol domain.Symbol, depth int)) {
	m.onResync = fn
}

// OnResyncComplete registers the hook run once a fresh snapshot lands for a
// book that was Resyncing or Invalid: the caller is expected to return the
// connection FSM to Subscribed.
func (m *BookManager) OnResyncComplete(fn func(symbol domain.Symbol, depth int)) {
	m.onResyncComplete = fn
}

func (m *BookManager) bookFor(symbol domain.Symbol, depth int) *domain.Book {
	key := bookKey{symbol: symbol, depth: depth}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[key]
	if !ok {
		b = domain.NewBook(symbol, depth)
		m.books[key] = b
	}
	return b
}

// Book returns the current book for (symbol, depth), or nil if no snapshot
// has arrived yet.
func (m *BookManager) Book(symbol domain.Symbol, depth int) *domain.Book {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b := m.books[bookKey{symbol: symbol, depth: depth}]
	if b != nil && b.State() == domain.BookEmpty {
		return nil
	}
	return b
}

// ApplySnapshot resets the (symbol, depth) book and sequence baseline from
// a fresh snapshot, whether it arrived over the websocket or the REST
// fallback.
func (m *BookManager) ApplySnapshot(symbol domain.Symbol, depth int, update domain.SnapshotUpdate) {
	book := m.bookFor(symbol, depth)
	wasResyncing := book.State() == domain.BookResyncing || book.State() == domain.BookInvalid
	key := domain.SequenceKey{Symbol: symbol, Channel: domain.KindBook}
	m.tracker.Reset(key)

	if err := book.ApplySnapshot(update); err != nil {
		m.emit(domain.ErrorEvent{Err: err}, symbol, false)
		return
	}
	if wasResyncing && m.onResyncComplete != nil {
		m.onResyncComplete(symbol, depth)
	}
	m.emitBookUpdate(book, symbol, update.Sequence)
}

// ApplyDelta runs update through the sequence tracker and, if in order,
// applies it to the (symbol, depth) book.
func (m *BookManager) ApplyDelta(symbol domain.Symbol, depth int, update domain.DeltaUpdate) {
	book := m.bookFor(symbol, depth)
	key := domain.SequenceKey{Symbol: symbol, Channel: domain.KindBook}

	decision, _ := m.tracker.Observe(key, update.Sequence, time.Now())
	switch decision {
	case domain.DecisionDiscardDuplicate:
		return
	case domain.DecisionBuffered:
		return
	case domain.DecisionGapResync:
		expected := book.Snapshot().Sequence
		m.emit(domain.GapDetectedEvent{Symbol: symbol, Channel: domain.KindBook, Expected: expected + 1, Received: update.Sequence}, symbol, false)
		book.MarkResyncing()
		m.emit(domain.ResyncEvent{Symbol: symbol, Reason: "sequence gap"}, symbol, false)
		if m.onResync != nil {
			m.onResync(symbol, depth)
		}
		m.maybeRestFallback(symbol, depth, book)
		return
	}

	if err := book.ApplyDelta(update); err != nil {
		m.emit(domain.ErrorEvent{Err: err}, symbol, false)
		book.MarkInvalid()
		m.maybeRestFallback(symbol, depth, book)
		return
	}
	m.emitBookUpdate(book, symbol, update.Sequence)
}

func (m *BookManager) emitBookUpdate(book *domain.Book, symbol domain.Symbol, sequence uint64) {
	bestBid, _ := book.BestBid()
	bestAsk, _ := book.BestAsk()
	update := domain.BookUpdate{Symbol: symbol, Sequence: sequence, BestBid: bestBid, BestAsk: bestAsk}
	m.emit(domain.OrderBookEvent{Update: update}, symbol, true)
}

func (m *BookManager) maybeRestFallback(symbol domain.Symbol, depth int, book *domain.Book) {
	if m.gapRest <= 0 || m.restFn == nil {
		return
	}
	m.restFn(symbol, depth)
}

func (m *BookManager) emit(ev domain.Event, symbol domain.Symbol, coalescible bool) {
	if m.onEvent != nil {
		m.onEvent(ev, symbol, coalescible)
	}
}
