package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fd1az/krakenfeed/internal/apperror"
)

// Kind identifies the logical feed a Channel subscribes to.
type Kind string

const (
	KindTicker     Kind = "ticker"
	KindTrade      Kind = "trade"
	KindBook       Kind = "book"
	KindOhlc       Kind = "ohlc"
	KindSpread     Kind = "spread"
	KindOwnTrades  Kind = "ownTrades"
	KindOpenOrders Kind = "openOrders"
)

// validBookDepths and validOhlcIntervals enumerate the only values the
// exchange accepts for each parameterized channel kind.
var validBookDepths = map[int]bool{10: true, 25: true, 100: true, 500: true, 1000: true}

var validOhlcIntervals = map[int]bool{
	1: true, 5: true, 15: true, 30: true, 60: true,
	240: true, 1440: true, 10080: true, 21600: true,
}

// privateKinds require credentials ("ownTrades, openOrders
// require credentials").
var privateKinds = map[Kind]bool{KindOwnTrades: true, KindOpenOrders: true}

// Channel is `{kind, symbol?, depth?, interval?}`.
type Channel struct {
	Kind     Kind
	Symbols  []Symbol
	Depth    int // book only
	Interval int // ohlc only, minutes
}

// IsPrivate reports whether this channel requires authenticated credentials.
func (c Channel) IsPrivate() bool {
	return privateKinds[c.Kind]
}

// Validate enforces the channel-kind parameter rules.
func (c Channel) Validate(hasCredentials bool) error {
	if len(c.Symbols) == 0 && !c.IsPrivate() {
		return apperror.Validation(apperror.CodeSubscriptionInvalidChannel, "channel requires at least one symbol")
	}
	switch c.Kind {
	case KindTicker, KindTrade, KindSpread:
		// no extra parameters
	case KindBook:
		if !validBookDepths[c.Depth] {
			return apperror.Validation(apperror.CodeSubscriptionInvalidChannel,
				fmt.Sprintf("book depth %d not one of {10,25,100,500,1000}", c.Depth))
		}
	case KindOhlc:
		if !validOhlcIntervals[c.Interval] {
			return apperror.Validation(apperror.CodeSubscriptionInvalidChannel,
				fmt.Sprintf("ohlc interval %d not a supported number of minutes", c.Interval))
		}
	case KindOwnTrades, KindOpenOrders:
		if !hasCredentials {
			return apperror.Unauthorized(apperror.CodeSubscriptionInvalidChannel,
				fmt.Sprintf("%s requires credentials", c.Kind))
		}
	default:
		return apperror.Validation(apperror.CodeSubscriptionInvalidChannel, "unknown channel kind: "+string(c.Kind))
	}
	return nil
}

// Fingerprint identifies a channel for subscription bookkeeping: kind +
// sorted symbol set + depth/interval.
func (c Channel) Fingerprint() string {
	symbols := make([]string, len(c.Symbols))
	for i, s := range c.Symbols {
		symbols[i] = string(s)
	}
	sort.Strings(symbols)

	var b strings.Builder
	b.WriteString(string(c.Kind))
	b.WriteByte(':')
	b.WriteString(strings.Join(symbols, ","))
	if c.Kind == KindBook {
		fmt.Fprintf(&b, ":depth=%d", c.Depth)
	}
	if c.Kind == KindOhlc {
		fmt.Fprintf(&b, ":interval=%d", c.Interval)
	}
	return b.String()
}
