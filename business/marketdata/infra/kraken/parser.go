package kraken

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/krakenfeed/business/marketdata/domain"
	"github.com/fd1az/krakenfeed/internal/apperror"
)

// Parsers are pure functions over already-demultiplexed JSON payloads
// a failure here never terminates the pipeline, it yields
// an apperror.AppError with CodeParseError describing the one bad frame.

// ParseTicker decodes a ticker array payload into a TickerSample. Kraken's
// ticker channel carries no exchange timestamp, so ExchangeTimestamp is
// stamped at parse time; this is a documented limitation, not an omission.
func ParseTicker(symbol domain.Symbol, payload json.RawMessage) (domain.TickerSample, error) {
	var p TickerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.TickerSample{}, parseErr("ticker", err)
	}
	bid, err := firstDecimal(p.Bid)
	if err != nil {
		return domain.TickerSample{}, parseErr("ticker.b", err)
	}
	ask, err := firstDecimal(p.Ask)
	if err != nil {
		return domain.TickerSample{}, parseErr("ticker.a", err)
	}
	last, err := firstDecimal(p.Close)
	if err != nil {
		return domain.TickerSample{}, parseErr("ticker.c", err)
	}
	vol, err := firstDecimal(p.Volume)
	if err != nil {
		return domain.TickerSample{}, parseErr("ticker.v", err)
	}
	return domain.TickerSample{
		Symbol:            symbol,
		Bid:               bid,
		Ask:               ask,
		LastPrice:         last,
		Volume:            vol,
		ExchangeTimestamp: time.Now().UTC(),
	}, nil
}

// ParseTrades decodes a trade array payload into zero or more TradeSamples.
func ParseTrades(symbol domain.Symbol, payload json.RawMessage) ([]domain.TradeSample, error) {
	var entries []TradeEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, parseErr("trade", err)
	}
	out := make([]domain.TradeSample, 0, len(entries))
	for _, e := range entries {
		price, err := decimalFromRaw(e[0])
		if err != nil {
			return nil, parseErr("trade.price", err)
		}
		volume, err := decimalFromRaw(e[1])
		if err != nil {
			return nil, parseErr("trade.volume", err)
		}
		ts, err := timeFromRaw(e[2])
		if err != nil {
			return nil, parseErr("trade.time", err)
		}
		var sideCode string
		if err := json.Unmarshal(e[3], &sideCode); err != nil {
			return nil, parseErr("trade.side", err)
		}
		side := domain.SideBuy
		if sideCode == "s" {
			side = domain.SideSell
		}
		out = append(out, domain.TradeSample{
			Symbol:            symbol,
			Price:             price,
			Volume:            volume,
			Side:              side,
			ExchangeTimestamp: ts,
			TradeID:           strconv.FormatInt(ts.UnixNano(), 10),
		})
	}
	return out, nil
}

// ParseBookSnapshot decodes a book-N snapshot payload into the levels a
// domain.SnapshotUpdate needs. sequence is assigned by the caller: Kraken's
// book channel carries no numeric sequence field, only an optional
// checksum, so sequence numbers are a purely local bookkeeping device (see
// DESIGN.md).
func ParseBookSnapshot(payload json.RawMessage, sequence uint64) (domain.SnapshotUpdate, error) {
	var p BookSnapshotPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.SnapshotUpdate{}, parseErr("book-snapshot", err)
	}
	bids, err := parseLevels(p.Bids)
	if err != nil {
		return domain.SnapshotUpdate{}, parseErr("book-snapshot.bs", err)
	}
	asks, err := parseLevels(p.Asks)
	if err != nil {
		return domain.SnapshotUpdate{}, parseErr("book-snapshot.as", err)
	}
	return domain.SnapshotUpdate{Bids: bids, Asks: asks, Sequence: sequence}, nil
}

// ParseBookDelta decodes a book-N delta payload into a domain.DeltaUpdate.
func ParseBookDelta(payload json.RawMessage, sequence uint64) (domain.DeltaUpdate, error) {
	var p BookDeltaPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.DeltaUpdate{}, parseErr("book-delta", err)
	}
	bids, err := parseLevels(p.Bids)
	if err != nil {
		return domain.DeltaUpdate{}, parseErr("book-delta.b", err)
	}
	asks, err := parseLevels(p.Asks)
	if err != nil {
		return domain.DeltaUpdate{}, parseErr("book-delta.a", err)
	}
	update := domain.DeltaUpdate{Bids: bids, Asks: asks, Sequence: sequence}
	if p.Checksum != "" {
		n, err := strconv.ParseUint(p.Checksum, 10, 32)
		if err != nil {
			return domain.DeltaUpdate{}, parseErr("book-delta.c", err)
		}
		v := uint32(n)
		update.Checksum = &v
	}
	return update, nil
}

// ParseOhlc decodes an ohlc-N array payload into an OhlcBar.
func ParseOhlc(symbol domain.Symbol, payload json.RawMessage, intervalMinutes int) (domain.OhlcBar, error) {
	var entries []OhlcEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return domain.OhlcBar{}, parseErr("ohlc", err)
	}
	if len(entries) == 0 {
		return domain.OhlcBar{}, parseErr("ohlc", errEmptyPayload)
	}
	e := entries[len(entries)-1]
	endTime, err := timeFromRaw(e[1])
	if err != nil {
		return domain.OhlcBar{}, parseErr("ohlc.etime", err)
	}
	open, err := decimalFromRaw(e[2])
	if err != nil {
		return domain.OhlcBar{}, parseErr("ohlc.open", err)
	}
	high, err := decimalFromRaw(e[3])
	if err != nil {
		return domain.OhlcBar{}, parseErr("ohlc.high", err)
	}
	low, err := decimalFromRaw(e[4])
	if err != nil {
		return domain.OhlcBar{}, parseErr("ohlc.low", err)
	}
	closePrice, err := decimalFromRaw(e[5])
	if err != nil {
		return domain.OhlcBar{}, parseErr("ohlc.close", err)
	}
	vwap, err := decimalFromRaw(e[6])
	if err != nil {
		return domain.OhlcBar{}, parseErr("ohlc.vwap", err)
	}
	volume, err := decimalFromRaw(e[7])
	if err != nil {
		return domain.OhlcBar{}, parseErr("ohlc.volume", err)
	}
	return domain.OhlcBar{
		Symbol:            symbol,
		Open:              open,
		High:              high,
		Low:               low,
		Close:             closePrice,
		Volume:            volume,
		Vwap:              vwap,
		IntervalMinutes:   intervalMinutes,
		ExchangeTimestamp: endTime,
	}, nil
}

func parseLevels(entries []BookLevelEntry) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(entries))
	for _, e := range entries {
		price, err := decimalFromRaw(e[0])
		if err != nil {
			return nil, err
		}
		volume, err := decimalFromRaw(e[1])
		if err != nil {
			return nil, err
		}
		ts, err := timeFromRaw(e[2])
		if err != nil {
			return nil, err
		}
		out = append(out, domain.PriceLevel{Price: price, Volume: volume, LevelTimestamp: ts})
	}
	return out, nil
}

func firstDecimal(values []string) (decimal.Decimal, error) {
	if len(values) == 0 {
		return decimal.Zero, errEmptyPayload
	}
	return decimal.NewFromString(values[0])
}

func decimalFromRaw(raw json.RawMessage) (decimal.Decimal, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return decimal.NewFromString(s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(f), nil
}

func timeFromRaw(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseUnixSeconds(s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return time.Time{}, err
	}
	return unixSecondsToTime(f), nil
}

func parseUnixSeconds(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	return unixSecondsToTime(f), nil
}

func unixSecondsToTime(f float64) time.Time {
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

var errEmptyPayload = apperror.New(apperror.CodeParseError, apperror.WithMessage("empty payload"))

func parseErr(kind string, cause error) error {
	return apperror.New(apperror.CodeParseError,
		apperror.WithContext(kind),
		apperror.WithCause(cause))
}
