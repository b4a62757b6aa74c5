package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the aggressor side of a trade.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// TickerSample is a best-bid/ask/last snapshot for a symbol.
type TickerSample struct {
	Symbol            Symbol
	Bid               decimal.Decimal
	Ask               decimal.Decimal
	LastPrice         decimal.Decimal
	Volume            decimal.Decimal
	ExchangeTimestamp time.Time
}

// TradeSample is a single executed trade.
type TradeSample struct {
	Symbol            Symbol
	Price             decimal.Decimal
	Volume            decimal.Decimal
	Side              Side
	ExchangeTimestamp time.Time
	TradeID           string
}

// OhlcBar is one interval's open/high/low/close/volume bar.
type OhlcBar struct {
	Symbol            Symbol
	Open              decimal.Decimal
	High              decimal.Decimal
	Low               decimal.Decimal
	Close             decimal.Decimal
	Volume            decimal.Decimal
	Vwap              decimal.Decimal
	IntervalMinutes   int
	ExchangeTimestamp time.Time
}

// PriceLevel is one price/volume rung of a book side.
type PriceLevel struct {
	Price          decimal.Decimal
	Volume         decimal.Decimal
	LevelTimestamp time.Time
}
