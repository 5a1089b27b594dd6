// Package marketdata is the tagged event union the engine publishes on
// its MarketData channel (spec.md §4.6), and the wire shape for
// channel market_updates (spec.md §6).
package marketdata

import (
	"encoding/json"
	"time"

	"clobcore/internal/book"
	"clobcore/internal/common"
	"clobcore/internal/money"
)

// UpdateType tags which variant-specific payload an Event carries.
type UpdateType string

const (
	UpdateTrade       UpdateType = "trade"
	UpdateDepth       UpdateType = "depth"
	UpdateTicker      UpdateType = "ticker"
	UpdateOrderUpdate UpdateType = "order_update"
)

// Event is one market-data update, always scoped to a single pair and
// stamped with the engine's timestamp for that change.
type Event struct {
	Market     common.TradingPair
	UpdateType UpdateType
	Timestamp  time.Time
	Trade      *TradePayload
	Depth      *DepthPayload
	Ticker     *TickerPayload
	Order      *OrderUpdatePayload
}

// TradePayload mirrors spec.md §6's trade entry shape.
type TradePayload struct {
	TradeID       string        `json:"trade_id"`
	Price         money.Decimal `json:"price"`
	Quantity      money.Decimal `json:"quantity"`
	BuyerOrderID  string        `json:"buyer_order_id"`
	SellerOrderID string        `json:"seller_order_id"`
}

// DepthPayload is an aggregated snapshot, bids descending, asks
// ascending.
type DepthPayload struct {
	Bids []book.LevelSnapshot `json:"bids"`
	Asks []book.LevelSnapshot `json:"asks"`
}

// TickerPayload is the rolling 24h aggregate for one pair.
type TickerPayload struct {
	LastPrice      money.Decimal `json:"last_price"`
	Volume24h      money.Decimal `json:"volume_24h"`
	High24h        money.Decimal `json:"high_24h"`
	Low24h         money.Decimal `json:"low_24h"`
	PriceChange24h money.Decimal `json:"price_change_24h"`
}

// OrderUpdatePayload reports a resting order's lifecycle transition
// (new, partially filled, filled, canceled).
type OrderUpdatePayload struct {
	OrderID   string        `json:"order_id"`
	Remaining money.Decimal `json:"remaining"`
	Status    string        `json:"status"`
}

// MarshalJSON renders an Event in the market_updates wire shape (spec.md
// §6): market as a "BASE_QUOTE" string, the active payload under "data".
func (e Event) MarshalJSON() ([]byte, error) {
	var data any
	switch {
	case e.Trade != nil:
		data = e.Trade
	case e.Depth != nil:
		data = e.Depth
	case e.Ticker != nil:
		data = e.Ticker
	case e.Order != nil:
		data = e.Order
	}
	return json.Marshal(struct {
		Market     string     `json:"market"`
		UpdateType UpdateType `json:"update_type"`
		Timestamp  time.Time  `json:"timestamp"`
		Data       any        `json:"data"`
	}{
		Market:     e.Market.String(),
		UpdateType: e.UpdateType,
		Timestamp:  e.Timestamp,
		Data:       data,
	})
}

func NewTrade(pair common.TradingPair, t TradePayload, at time.Time) Event {
	return Event{Market: pair, UpdateType: UpdateTrade, Timestamp: at, Trade: &t}
}

func NewDepth(pair common.TradingPair, d DepthPayload, at time.Time) Event {
	return Event{Market: pair, UpdateType: UpdateDepth, Timestamp: at, Depth: &d}
}

func NewTicker(pair common.TradingPair, tk TickerPayload, at time.Time) Event {
	return Event{Market: pair, UpdateType: UpdateTicker, Timestamp: at, Ticker: &tk}
}

func NewOrderUpdate(pair common.TradingPair, o OrderUpdatePayload, at time.Time) Event {
	return Event{Market: pair, UpdateType: UpdateOrderUpdate, Timestamp: at, Order: &o}
}
