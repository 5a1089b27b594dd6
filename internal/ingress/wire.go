package ingress

import (
	"time"

	"clobcore/internal/common"
)

// orderRequest is the JSON shape of one ingress message on order_queue
// (spec.md §6). Price is nil for market orders.
type orderRequest struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Market    string  `json:"market"`
	Side      string  `json:"side"`
	OrderType string  `json:"order_type"`
	Price     *string `json:"price"`
	MaxQuote  *string `json:"max_quote,omitempty"`
	Quantity  string  `json:"quantity"`
	Timestamp string  `json:"timestamp"`
}

func (r orderRequest) parseSide() (common.Side, error) {
	switch r.Side {
	case "buy":
		return common.Buy, nil
	case "sell":
		return common.Sell, nil
	default:
		return 0, ErrInvalidSide
	}
}

func (r orderRequest) parseKind() (common.OrderKind, error) {
	switch r.OrderType {
	case "limit":
		return common.LimitOrder, nil
	case "market":
		return common.MarketOrder, nil
	default:
		return 0, ErrInvalidOrderType
	}
}

func (r orderRequest) parseTimestamp() time.Time {
	ts, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return time.Now().UTC()
	}
	return ts
}

// orderResponse is the JSON shape published to order_response.
type orderResponse struct {
	RequestID string      `json:"request_id"`
	Success   bool        `json:"success"`
	OrderID   *string     `json:"order_id"`
	Trades    []tradeInfo `json:"trades"`
	Error     *string     `json:"error"`
}

type tradeInfo struct {
	TradeID       string `json:"trade_id"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
	Timestamp     string `json:"timestamp"`
	BuyerOrderID  string `json:"buyer_order_id"`
	SellerOrderID string `json:"seller_order_id"`
}

// marketUpdate is the JSON shape published to market_updates.
type marketUpdate struct {
	Market     string `json:"market"`
	UpdateType string `json:"update_type"`
	Data       any    `json:"data"`
	Timestamp  string `json:"timestamp"`
}

type depthLevel struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

type depthInfo struct {
	Bids []depthLevel `json:"bids"`
	Asks []depthLevel `json:"asks"`
}

type tickerInfo struct {
	LastPrice      string `json:"last_price"`
	Volume24h      string `json:"volume_24h"`
	High24h        string `json:"high_24h"`
	Low24h         string `json:"low_24h"`
	PriceChange24h string `json:"price_change_24h"`
}

type orderUpdateInfo struct {
	OrderID   string `json:"order_id"`
	Remaining string `json:"remaining"`
	Status    string `json:"status"`
}
