// Package common holds the domain types shared by the book, ledger and
// engine packages: trading pairs, sides, order kinds, orders and trades
// (spec.md §3). It is the generalized, decimal-based successor of the
// teacher's single-asset, float64 common package.
package common

import (
	"errors"
	"strings"
)

// ErrInvalidMarket is returned when a "BASE_QUOTE" market string does not
// split into exactly two non-empty parts.
var ErrInvalidMarket = errors.New("common: invalid market string")

// Asset is an opaque asset identifier, e.g. "BTC" or "USD".
type Asset = string

// TradingPair is the ordered (base, quote) pair that identifies a market.
// Prices quote units of Quote per one unit of Base. Two TradingPair values
// are equal, and therefore usable as map keys, iff Base and Quote match.
type TradingPair struct {
	Base  Asset
	Quote Asset
}

// String renders the pair in the wire format used throughout §6,
// "BASE_QUOTE".
func (p TradingPair) String() string {
	return p.Base + "_" + p.Quote
}

// ParseTradingPair parses the §6 "market" field, e.g. "BTC_USD".
func ParseTradingPair(market string) (TradingPair, error) {
	parts := strings.SplitN(market, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return TradingPair{}, ErrInvalidMarket
	}
	return TradingPair{Base: parts[0], Quote: parts[1]}, nil
}

// Side is which side of the book an order rests or takes on.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderKind distinguishes resting limit orders from immediate-or-discard
// market orders (spec.md §3 OrderKind).
type OrderKind int

const (
	LimitOrder OrderKind = iota
	MarketOrder
)

func (k OrderKind) String() string {
	switch k {
	case LimitOrder:
		return "limit"
	case MarketOrder:
		return "market"
	default:
		return "unknown"
	}
}
