package domain

import (
	"hash/crc32"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/krakenfeed/internal/apperror"
)

// BookState is the per-symbol order book lifecycle:
// Empty → Snapshotted → Live, with Invalid/Resyncing reachable from Live on
// checksum failure, crossed book, or an unresolved gap.
type BookState string

const (
	BookEmpty       BookState = "Empty"
	BookSnapshotted BookState = "Snapshotted"
	BookLive        BookState = "Live"
	BookInvalid     BookState = "Invalid"
	BookResyncing   BookState = "Resyncing"
)

// BookSnapshot is a point-in-time, copy-on-read view of a Book returned to
// consumers so they never hold a reference into the live book (readers
// "readers never block the pipeline").
type BookSnapshot struct {
	Symbol     Symbol
	Bids       []PriceLevel // descending by price
	Asks       []PriceLevel // ascending by price
	Sequence   uint64
	LastUpdate time.Time
	State      BookState
}

// Book is one symbol's live, checksum-validated order book.
type Book struct {
	mu         sync.RWMutex
	symbol     Symbol
	bids       []PriceLevel // desc
	asks       []PriceLevel // asc
	sequence   uint64
	lastUpdate time.Time
	checksum   uint32
	state      BookState
	depthCap   int
}

// NewBook creates an Empty book for symbol with the given per-side depth
// cap.
func NewBook(symbol Symbol, depthCap int) *Book {
	return &Book{symbol: symbol, state: BookEmpty, depthCap: depthCap}
}

// SnapshotUpdate is the input to ApplySnapshot: a full replacement of both
// sides at a given sequence, optionally carrying the exchange's checksum.
type SnapshotUpdate struct {
	Bids     []PriceLevel
	Asks     []PriceLevel
	Sequence uint64
	Checksum *uint32
}

// DeltaUpdate is the input to ApplyDelta: incremental changes to one or
// both sides at the next sequence number.
type DeltaUpdate struct {
	Bids     []PriceLevel // zero Volume removes the level (I4)
	Asks     []PriceLevel
	Sequence uint64
	Checksum *uint32
}

// ApplySnapshot installs a full book replacement. It is idempotent: applying
// the identical snapshot twice in a row yields the same book and reports no
// state change the second time.
func (b *Book) ApplySnapshot(u SnapshotUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bids := sortedCopy(u.Bids, true)
	asks := sortedCopy(u.Asks, false)
	bids = truncate(bids, b.depthCap)
	asks = truncate(asks, b.depthCap)

	if b.state != BookEmpty && b.sequence == u.Sequence &&
		levelsEqual(b.bids, bids) && levelsEqual(b.asks, asks) {
		return nil
	}

	b.bids = bids
	b.asks = asks
	b.sequence = u.Sequence
	b.lastUpdate = time.Now()
	b.checksum = computeChecksum(b.bids, b.asks, 10)

	if u.Checksum != nil && *u.Checksum != b.checksum {
		b.state = BookInvalid
		return apperror.New(apperror.CodeBookChecksumFail,
			apperror.WithContext(string(b.symbol)),
			apperror.WithSeverity(apperror.SeverityHigh))
	}

	b.state = BookSnapshotted
	return nil
}

// ApplyDelta applies one incremental update. Sequence must be exactly
// book.sequence+1; callers are expected to have already resolved gaps via
// the sequence tracker before calling this.
func (b *Book) ApplyDelta(u DeltaUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BookSnapshotted && b.state != BookLive {
		return apperror.New(apperror.CodeBookStaleSnapshot, apperror.WithContext(string(b.symbol)))
	}
	if u.Sequence != b.sequence+1 {
		return apperror.New(apperror.CodeSequenceGap,
			apperror.WithContext(string(b.symbol)),
			apperror.WithSeverity(apperror.SeverityMedium))
	}

	b.bids = applyLevels(b.bids, u.Bids, true)
	b.asks = applyLevels(b.asks, u.Asks, false)
	b.bids = truncate(b.bids, b.depthCap)
	b.asks = truncate(b.asks, b.depthCap)
	b.sequence = u.Sequence
	b.lastUpdate = time.Now()
	b.checksum = computeChecksum(b.bids, b.asks, 10)

	if len(b.bids) > 0 && len(b.asks) > 0 && !b.bids[0].Price.LessThan(b.asks[0].Price) {
		b.state = BookInvalid
		return apperror.New(apperror.CodeBookCrossed, apperror.WithContext(string(b.symbol)))
	}

	if u.Checksum != nil && *u.Checksum != b.checksum {
		b.state = BookInvalid
		return apperror.New(apperror.CodeBookChecksumFail,
			apperror.WithContext(string(b.symbol)),
			apperror.WithSeverity(apperror.SeverityHigh))
	}

	b.state = BookLive
	return nil
}

// MarkInvalid transitions the book to Invalid, e.g. on a transport
// disconnect or an unresolved sequence gap.
func (b *Book) MarkInvalid() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != BookEmpty {
		b.state = BookInvalid
	}
}

// MarkResyncing transitions the book into Resyncing while a fresh snapshot
// is requested.
func (b *Book) MarkResyncing() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BookResyncing
}

// State returns the current lifecycle state.
func (b *Book) State() BookState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Snapshot returns a copy-on-read view; the caller's slice never aliases
// the live book.
func (b *Book) Snapshot() BookSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BookSnapshot{
		Symbol:     b.symbol,
		Bids:       append([]PriceLevel(nil), b.bids...),
		Asks:       append([]PriceLevel(nil), b.asks...),
		Sequence:   b.sequence,
		LastUpdate: b.lastUpdate,
		State:      b.state,
	}
}

// BestBid/BestAsk/Mid/Spread are the book's basic read operations.

func (b *Book) BestBid() (PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.bids) == 0 {
		return PriceLevel{}, false
	}
	return b.bids[0], true
}

func (b *Book) BestAsk() (PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.asks) == 0 {
		return PriceLevel{}, false
	}
	return b.asks[0], true
}

func (b *Book) Mid() (decimal.Decimal, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

func (b *Book) Spread() (decimal.Decimal, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}

// LadderRung is one row of a depth_ladder(n) result: a level plus its
// cumulative volume and the cumulative share of the ladder's total volume,
// rounded half-even to 4 decimal places.
type LadderRung struct {
	PriceLevel
	CumulativeVolume decimal.Decimal
	CumulativePct    decimal.Decimal
}

// DepthLadder returns up to n rungs per side with running totals.
func (b *Book) DepthLadder(n int) (bids, asks []LadderRung) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return ladder(b.bids, n), ladder(b.asks, n)
}

func ladder(levels []PriceLevel, n int) []LadderRung {
	if n <= 0 || n > len(levels) {
		n = len(levels)
	}
	total := decimal.Zero
	for _, lvl := range levels[:n] {
		total = total.Add(lvl.Volume)
	}
	rungs := make([]LadderRung, n)
	cum := decimal.Zero
	for i, lvl := range levels[:n] {
		cum = cum.Add(lvl.Volume)
		pct := decimal.Zero
		if !total.IsZero() {
			pct = cum.Div(total).Mul(decimal.NewFromInt(100)).RoundBank(4)
		}
		rungs[i] = LadderRung{PriceLevel: lvl, CumulativeVolume: cum, CumulativePct: pct}
	}
	return rungs
}

// AggregateBucket is one price-bucket row of Aggregate's output.
type AggregateBucket struct {
	BucketFloor decimal.Decimal
	Volume      decimal.Decimal
	LevelCount  int
}

// Aggregate bucketizes levels by floor(price/tickSize)*tickSize, summing
// volume and counting levels per bucket. Both sides floor toward the same
// boundary so bid and ask buckets align.
func (b *Book) Aggregate(tickSize decimal.Decimal) (bids, asks []AggregateBucket) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return aggregate(b.bids, tickSize), aggregate(b.asks, tickSize)
}

func aggregate(levels []PriceLevel, tickSize decimal.Decimal) []AggregateBucket {
	if tickSize.IsZero() {
		return nil
	}
	buckets := make(map[string]*AggregateBucket)
	order := make([]string, 0)
	for _, lvl := range levels {
		floor := lvl.Price.Div(tickSize).Floor().Mul(tickSize)
		key := floor.String()
		bucket, ok := buckets[key]
		if !ok {
			bucket = &AggregateBucket{BucketFloor: floor}
			buckets[key] = bucket
			order = append(order, key)
		}
		bucket.Volume = bucket.Volume.Add(lvl.Volume)
		bucket.LevelCount++
	}
	result := make([]AggregateBucket, len(order))
	for i, key := range order {
		result[i] = *buckets[key]
	}
	return result
}

// Imbalance returns (bid_vol - ask_vol)/(bid_vol + ask_vol) over the top n
// levels of each side.
func (b *Book) Imbalance(n int) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bidVol := sumVolume(b.bids, n)
	askVol := sumVolume(b.asks, n)
	denom := bidVol.Add(askVol)
	if denom.IsZero() {
		return decimal.Zero, false
	}
	return bidVol.Sub(askVol).Div(denom), true
}

func sumVolume(levels []PriceLevel, n int) decimal.Decimal {
	if n <= 0 || n > len(levels) {
		n = len(levels)
	}
	total := decimal.Zero
	for _, lvl := range levels[:n] {
		total = total.Add(lvl.Volume)
	}
	return total
}

// --- level maintenance ---

// sortedCopy returns a sorted copy of levels: descending when desc (bids),
// ascending otherwise (asks). Zero-volume levels are dropped (I4).
func sortedCopy(levels []PriceLevel, desc bool) []PriceLevel {
	out := make([]PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		if !lvl.Volume.IsZero() {
			out = append(out, lvl)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

// applyLevels merges updates into levels (desc for bids, asc for asks): a
// zero-volume update removes the matching price; otherwise the level is
// inserted or replaced (I4).
func applyLevels(levels []PriceLevel, updates []PriceLevel, desc bool) []PriceLevel {
	for _, u := range updates {
		idx := sort.Search(len(levels), func(i int) bool {
			if desc {
				return !levels[i].Price.GreaterThan(u.Price)
			}
			return !levels[i].Price.LessThan(u.Price)
		})
		found := idx < len(levels) && levels[idx].Price.Equal(u.Price)

		if u.Volume.IsZero() {
			if found {
				levels = append(levels[:idx], levels[idx+1:]...)
			}
			continue
		}
		if found {
			levels[idx] = u
			continue
		}
		levels = append(levels, PriceLevel{})
		copy(levels[idx+1:], levels[idx:])
		levels[idx] = u
	}
	return levels
}

// truncate drops entries beyond depthCap (I3). 0 means "no cap".
func truncate(levels []PriceLevel, depthCap int) []PriceLevel {
	if depthCap <= 0 || len(levels) <= depthCap {
		return levels
	}
	return levels[:depthCap]
}

func levelsEqual(a, b []PriceLevel) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Price.Equal(b[i].Price) || !a[i].Volume.Equal(b[i].Volume) {
			return false
		}
	}
	return true
}

// computeChecksum computes the CRC32 over the canonical top-N-bids ∥
// top-N-asks serialization. Each level's price
// and volume are rendered without a decimal point and with leading zeros
// stripped, then concatenated, per the exchange's own checksum convention.
func computeChecksum(bids, asks []PriceLevel, n int) uint32 {
	var sb strings.Builder
	writeCanonical(&sb, bids, n)
	writeCanonical(&sb, asks, n)
	return crc32.ChecksumIEEE([]byte(sb.String()))
}

func writeCanonical(sb *strings.Builder, levels []PriceLevel, n int) {
	if n > len(levels) {
		n = len(levels)
	}
	for _, lvl := range levels[:n] {
		sb.WriteString(canonicalDecimal(lvl.Price))
		sb.WriteString(canonicalDecimal(lvl.Volume))
	}
}

func canonicalDecimal(d decimal.Decimal) string {
	s := d.String()
	if d.Exponent() < 0 {
		s = d.StringFixed(-d.Exponent())
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.TrimLeft(s, "0")
	if s == "" {
		s = "0"
	}
	return s
}
