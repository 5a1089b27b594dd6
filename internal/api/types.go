package api

// Wire shapes for the REST surface (spec.md §6), field names grounded on
// original_source/src/api/types.rs.

type placeOrderRequest struct {
	UserID    string  `json:"user_id" binding:"required"`
	OrderType string  `json:"order_type" binding:"required"`
	Market    string  `json:"market" binding:"required"`
	Side      string  `json:"side" binding:"required"`
	Price     *string `json:"price"`
	MaxQuote  *string `json:"max_quote"`
	Quantity  string  `json:"quantity" binding:"required"`
}

type placeOrderResponse struct {
	Success bool        `json:"success"`
	OrderID *string     `json:"order_id"`
	Trades  []tradeInfo `json:"trades"`
	Error   *string     `json:"error"`
}

type tradeInfo struct {
	TradeID   string `json:"trade_id"`
	Price     string `json:"price"`
	Quantity  string `json:"quantity"`
	Timestamp string `json:"timestamp"`
}

type balanceResponse struct {
	UserID   string                 `json:"user_id"`
	Balances map[string]balanceInfo `json:"balances"`
}

type balanceInfo struct {
	Available string `json:"available"`
	Locked    string `json:"locked"`
	Total     string `json:"total"`
}

type depthResponse struct {
	Market    string       `json:"market"`
	Bids      []priceLevel `json:"bids"`
	Asks      []priceLevel `json:"asks"`
	Timestamp string       `json:"timestamp"`
}

type priceLevel struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

type recentTradesResponse struct {
	Market string      `json:"market"`
	Trades []tradeInfo `json:"trades"`
}

type tickerResponse struct {
	Market         string `json:"market"`
	LastPrice      string `json:"last_price"`
	Volume24h      string `json:"volume_24h"`
	PriceChange24h string `json:"price_change_24h"`
	High24h        string `json:"high_24h"`
	Low24h         string `json:"low_24h"`
	Timestamp      string `json:"timestamp"`
}

type apiError struct {
	Error     string `json:"error"`
	Code      int    `json:"code"`
	Timestamp string `json:"timestamp"`
}
