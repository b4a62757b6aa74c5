package domain

// Event is the tagged union this package closes over: Ticker | Trade | OrderBook
// | Ohlc | StateChange | SubscriptionAck | SubscriptionFailed | GapDetected
// | Resync | Error. Go has no sum types, so this is the idiomatic
// marker-interface rendition: one concrete struct per variant, all
// satisfying Event via an unexported method so the set is closed to this
// package's consumers.
type Event interface {
	eventKind() string
}

// Kind2 returns the event's tag, useful for switch-less routing (e.g. metric
// labels) without a type switch.
func Kind2(e Event) string { return e.eventKind() }

type TickerEvent struct{ Sample TickerSample }

func (TickerEvent) eventKind() string { return "Ticker" }

type TradeEvent struct{ Sample TradeSample }

func (TradeEvent) eventKind() string { return "Trade" }

// BookUpdate is the payload of an OrderBookEvent: enough to let a consumer
// know which symbol changed and at what sequence, without forcing a full
// book copy on every tick.
type BookUpdate struct {
	Symbol   Symbol
	Sequence uint64
	BestBid  PriceLevel
	BestAsk  PriceLevel
}

type OrderBookEvent struct{ Update BookUpdate }

func (OrderBookEvent) eventKind() string { return "OrderBook" }

type OhlcEvent struct{ Bar OhlcBar }

func (OhlcEvent) eventKind() string { return "Ohlc" }

type StateChangeEvent struct{ State ConnectionState }

func (StateChangeEvent) eventKind() string { return "StateChange" }

type SubscriptionAckEvent struct{ Channel Channel }

func (SubscriptionAckEvent) eventKind() string { return "SubscriptionAck" }

type SubscriptionFailedEvent struct {
	Channel Channel
	Reason  string
}

func (SubscriptionFailedEvent) eventKind() string { return "SubscriptionFailed" }

type GapDetectedEvent struct {
	Symbol   Symbol
	Channel  Kind
	Expected uint64
	Received uint64
}

func (GapDetectedEvent) eventKind() string { return "GapDetected" }

type ResyncEvent struct {
	Symbol Symbol
	Reason string
}

func (ResyncEvent) eventKind() string { return "Resync" }

type ErrorEvent struct{ Err error }

func (ErrorEvent) eventKind() string { return "Error" }
