// Package domain holds the exchange-agnostic market-data model: symbols,
// channels, subscriptions, ticks, and the order book engine. Nothing in
// this package knows about Kraken's wire shapes or about websockets.
package domain

import "strings"

// Symbol is an opaque normalized "BASE/QUOTE" pair. Exchange-native
// aliasing (e.g. Kraken's XBT for BTC) is the adapter layer's problem, not
// this package's.
type Symbol string

// Normalize upper-cases and trims a raw pair string into a Symbol.
func Normalize(raw string) Symbol {
	return Symbol(strings.ToUpper(strings.TrimSpace(raw)))
}

func (s Symbol) String() string { return string(s) }
