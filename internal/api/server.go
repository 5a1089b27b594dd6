// Package api exposes the REST surface from spec.md §6 over gin,
// grounded on abdoElHodaky-tradSys/cmd/ws/main.go's router-setup style.
// Every handler that touches engine state does so by sending a Command
// on the engine's ingress channel and waiting on its reply channel —
// the same path the Redis ingress bridge uses, never a shared lock
// (SPEC_FULL.md §9).
package api

import (
	"context"
	"net/http"
	"time"

	"clobcore/internal/common"
	"clobcore/internal/engine"
	"clobcore/internal/money"
	"clobcore/internal/persist"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const replyTimeout = 5 * time.Second

// Server wires the REST surface onto the engine's command channel and
// the persistence store's read path.
type Server struct {
	ingress chan<- engine.Command
	store   *persist.Store
	router  *gin.Engine
}

func NewServer(ingress chan<- engine.Command, store *persist.Store) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{ingress: ingress, store: store, router: router}

	v1 := router.Group("/api/v1")
	v1.POST("/order", s.placeOrder)
	v1.DELETE("/order/:id", s.cancelOrder)
	v1.GET("/depth/:market", s.depth)
	v1.GET("/trades/:market", s.recentTrades)
	v1.GET("/balance/:user_id", s.balance)
	v1.GET("/tickers", s.allTickers)
	v1.GET("/tickers/:market", s.ticker)
	v1.GET("/health", s.health)

	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) placeOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := common.ParseTradingPair(req.Market)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid market")
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	kind, err := parseKind(req.OrderType)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	qty, err := money.Parse(req.Quantity)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid quantity")
		return
	}

	var price money.Decimal
	if req.Price != nil {
		if price, err = money.Parse(*req.Price); err != nil {
			writeError(c, http.StatusBadRequest, "invalid price")
			return
		}
	}
	var maxQuote *money.Decimal
	if req.MaxQuote != nil {
		mq, err := money.Parse(*req.MaxQuote)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid max_quote")
			return
		}
		maxQuote = &mq
	}

	cmd := engine.PlaceOrder{
		Pair: pair, Kind: kind, Side: side, UserID: req.UserID,
		Quantity: qty, Price: price, MaxQuote: maxQuote,
		Timestamp: time.Now().UTC(),
		Reply:     make(chan engine.Response, 1),
	}

	resp, err := dispatch(s, c, cmd, cmd.Reply)
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, err.Error())
		return
	}

	out := placeOrderResponse{Success: resp.Status == engine.Accepted}
	if resp.Status != engine.Rejected {
		id := resp.OrderID.String()
		out.OrderID = &id
	}
	out.Trades = make([]tradeInfo, 0, len(resp.Trades))
	for _, trade := range resp.Trades {
		out.Trades = append(out.Trades, tradeInfo{
			TradeID: trade.ID.String(), Price: trade.Price.String(),
			Quantity: trade.Quantity.String(), Timestamp: trade.Timestamp.Format(time.RFC3339),
		})
	}
	if resp.Err != nil {
		msg := resp.Err.Error()
		out.Error = &msg
		c.JSON(http.StatusOK, out)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) cancelOrder(c *gin.Context) {
	id, err := parseUUID(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return
	}
	cmd := engine.CancelOrder{OrderID: id, Reply: make(chan engine.Response, 1)}
	resp, err := dispatch(s, c, cmd, cmd.Reply)
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	if resp.Status == engine.Rejected {
		writeError(c, http.StatusNotFound, resp.Err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order_id": resp.OrderID.String()})
}

func (s *Server) depth(c *gin.Context) {
	pair, err := common.ParseTradingPair(c.Param("market"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid market")
		return
	}
	cmd := engine.InspectDepth{Pair: pair, MaxLevels: 25, Reply: make(chan engine.DepthSnapshot, 1)}
	snap, err := dispatch(s, c, cmd, cmd.Reply)
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	out := depthResponse{Market: c.Param("market"), Timestamp: time.Now().UTC().Format(time.RFC3339)}
	for _, lvl := range snap.Bids {
		out.Bids = append(out.Bids, priceLevel{Price: lvl.Price.String(), Quantity: lvl.Quantity.String()})
	}
	for _, lvl := range snap.Asks {
		out.Asks = append(out.Asks, priceLevel{Price: lvl.Price.String(), Quantity: lvl.Quantity.String()})
	}
	c.JSON(http.StatusOK, out)
}

// recentTrades is served from the persistence store rather than an
// engine command: there is no InspectTrades in the engine's contract,
// and historical trade data is the store's natural responsibility.
func (s *Server) recentTrades(c *gin.Context) {
	market := c.Param("market")
	trades, err := s.store.RecentTrades(c.Request.Context(), market, 100)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to load trade history")
		return
	}
	out := recentTradesResponse{Market: market}
	for _, trade := range trades {
		out.Trades = append(out.Trades, tradeInfo{
			TradeID: trade.ID.String(), Price: trade.Price.String(),
			Quantity: trade.Quantity.String(), Timestamp: trade.Timestamp.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) balance(c *gin.Context) {
	userID := c.Param("user_id")
	cmd := engine.InspectBalance{UserID: userID, Reply: make(chan engine.BalanceSnapshot, 1)}
	snap, err := dispatch(s, c, cmd, cmd.Reply)
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	out := balanceResponse{UserID: snap.UserID, Balances: make(map[string]balanceInfo, len(snap.Balances))}
	for asset, bal := range snap.Balances {
		out.Balances[asset] = balanceInfo{
			Available: bal.Available.String(), Locked: bal.Locked.String(),
			Total: bal.Available.Add(bal.Locked).String(),
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) ticker(c *gin.Context) {
	market := c.Param("market")
	pair, err := common.ParseTradingPair(market)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid market")
		return
	}
	cmd := engine.InspectTicker{Pair: pair, Reply: make(chan engine.TickerSnapshot, 1)}
	snap, err := dispatch(s, c, cmd, cmd.Reply)
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	c.JSON(http.StatusOK, toTickerResponse(market, snap))
}

func (s *Server) allTickers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"markets": []string{}})
}

func toTickerResponse(market string, snap engine.TickerSnapshot) tickerResponse {
	return tickerResponse{
		Market: market, LastPrice: snap.LastPrice.String(), Volume24h: snap.Volume24h.String(),
		PriceChange24h: snap.PriceChange24h.String(), High24h: snap.High24h.String(), Low24h: snap.Low24h.String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// dispatch sends cmd on the engine's ingress channel and awaits reply,
// bounding both by replyTimeout so a stalled engine never wedges an HTTP
// worker goroutine forever. Methods cannot be generic in Go, so this is
// a free function taking the server explicitly.
func dispatch[T any](s *Server, c *gin.Context, cmd engine.Command, reply chan T) (T, error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), replyTimeout)
	defer cancel()

	var zero T
	select {
	case s.ingress <- cmd:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		log.Warn().Msg("api: engine reply timed out")
		return zero, ctx.Err()
	}
}

func writeError(c *gin.Context, code int, msg string) {
	c.JSON(code, apiError{Error: msg, Code: code, Timestamp: time.Now().UTC().Format(time.RFC3339)})
}
