package engine

import (
	"time"

	"clobcore/internal/common"
	"clobcore/internal/money"
)

// TickerSnapshot is the reply payload for InspectTicker, and its fields
// are copied into a MarketData ticker event's marketdata.TickerPayload,
// matching original_source's TickerResponse
// shape (SPEC_FULL.md §7) but, unlike the source, actually computed.
type TickerSnapshot struct {
	Pair           common.TradingPair
	LastPrice      money.Decimal
	Volume24h      money.Decimal
	High24h        money.Decimal
	Low24h         money.Decimal
	PriceChange24h money.Decimal
	windowStart    time.Time
	openingPrice   money.Decimal
	haveTrade      bool
}

func newTickerState(pair common.TradingPair) *TickerSnapshot {
	return &TickerSnapshot{
		Pair:        pair,
		LastPrice:   money.Zero(),
		Volume24h:   money.Zero(),
		High24h:     money.Zero(),
		Low24h:      money.Zero(),
		windowStart: time.Time{},
	}
}

// recordTrade folds one trade into the rolling 24h ticker window,
// resetting the window if more than 24h has elapsed since it opened.
func (t *TickerSnapshot) recordTrade(price, qty money.Decimal, at time.Time) {
	if !t.haveTrade || at.Sub(t.windowStart) > 24*time.Hour {
		t.windowStart = at
		t.openingPrice = price
		t.High24h = price
		t.Low24h = price
		t.Volume24h = money.Zero()
		t.haveTrade = true
	}
	t.LastPrice = price
	t.Volume24h = t.Volume24h.Add(qty)
	if price.GreaterThan(t.High24h) {
		t.High24h = price
	}
	if price.LessThan(t.Low24h) {
		t.Low24h = price
	}
	t.PriceChange24h = t.LastPrice.Sub(t.openingPrice)
}

// snapshot returns a copy safe to hand to a reply channel or a
// MarketData event, stripping the internal bookkeeping fields.
func (t *TickerSnapshot) snapshot() TickerSnapshot {
	return TickerSnapshot{
		Pair:           t.Pair,
		LastPrice:      t.LastPrice,
		Volume24h:      t.Volume24h,
		High24h:        t.High24h,
		Low24h:         t.Low24h,
		PriceChange24h: t.PriceChange24h,
	}
}
