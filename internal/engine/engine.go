// Package engine is the single-writer loop that owns every order book and
// the balance ledger (spec.md §4.5, §5). Nothing outside this package's
// Run loop ever reads or writes book/ledger state directly; everything
// else talks to it over the channels built in internal/channels.
package engine

import (
	"errors"
	"time"

	"clobcore/internal/book"
	"clobcore/internal/common"
	"clobcore/internal/ledger"
	"clobcore/internal/marketdata"
	"clobcore/internal/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// maxPersistSpill bounds how many persistence messages can pile up in
// the side buffer (spec.md §7) before the engine treats the persister as
// wedged and crashes fast rather than growing the buffer without bound.
const maxPersistSpill = 4096

// defaultDepthLevels is how many price levels a Depth market-data event
// carries when emitted on a best-price change.
const defaultDepthLevels = 25

// Engine is the matching core. It is not safe for concurrent use; every
// method here is called exclusively from Run's goroutine.
type Engine struct {
	books  map[common.TradingPair]*book.OrderBook
	ledger *ledger.Ledger

	// orderPair lets CancelOrder, which carries only an order_id, route
	// to the correct book without scanning every market.
	orderPair map[uuid.UUID]common.TradingPair

	tickers map[common.TradingPair]*TickerSnapshot

	selfTradePolicy book.SelfTradePolicy

	ingress    <-chan Command
	persist    chan<- PersistMessage
	marketData chan<- marketdata.Event

	persistSpill []PersistMessage
}

// New constructs an Engine with one empty OrderBook per pair. ingress is
// drained by Run; persist and marketData are written to but never read
// by the engine itself.
func New(
	pairs []common.TradingPair,
	ingress <-chan Command,
	persist chan<- PersistMessage,
	marketData chan<- marketdata.Event,
) *Engine {
	books := make(map[common.TradingPair]*book.OrderBook, len(pairs))
	tickers := make(map[common.TradingPair]*TickerSnapshot, len(pairs))
	for _, pair := range pairs {
		books[pair] = book.NewOrderBook(pair)
		tickers[pair] = newTickerState(pair)
	}
	return &Engine{
		books:           books,
		ledger:          ledger.New(),
		orderPair:       make(map[uuid.UUID]common.TradingPair),
		tickers:         tickers,
		selfTradePolicy: book.AllowSelfTrade,
		ingress:         ingress,
		persist:         persist,
		marketData:      marketData,
	}
}

// SetSelfTradePolicy installs a non-default self-trade policy (spec.md
// §9: "add a strategy hook rather than hard-coding prevention"). Must be
// called before Run starts.
func (e *Engine) SetSelfTradePolicy(policy book.SelfTradePolicy) {
	if policy == nil {
		policy = book.AllowSelfTrade
	}
	e.selfTradePolicy = policy
}

// RegisterUser seeds a user's starting balances. Safe to call only
// before Run starts, or from inside a command handler if ever exposed
// as a command; never from another goroutine.
func (e *Engine) RegisterUser(userID string, initial map[common.Asset]money.Decimal) {
	e.ledger.RegisterUser(userID, initial)
}

// Run drains ingress until it is closed or the tomb starts dying,
// dispatching one command at a time. The engine suspends only here
// (spec.md §5); it performs no I/O of its own.
func (e *Engine) Run(t *tomb.Tomb) error {
	log.Info().Int("markets", len(e.books)).Msg("engine: loop starting")
	for {
		select {
		case <-t.Dying():
			log.Info().Msg("engine: loop stopping on shutdown signal")
			return nil
		case cmd, ok := <-e.ingress:
			if !ok {
				log.Info().Msg("engine: ingress closed, draining and stopping")
				return nil
			}
			e.dispatch(cmd)
			e.drainPersistSpill()
		}
	}
}

func (e *Engine) dispatch(cmd Command) {
	switch c := cmd.(type) {
	case PlaceOrder:
		e.handlePlaceOrder(c)
	case CancelOrder:
		e.handleCancelOrder(c)
	case InspectDepth:
		e.handleInspectDepth(c)
	case InspectBalance:
		e.handleInspectBalance(c)
	case InspectTicker:
		e.handleInspectTicker(c)
	default:
		log.Error().Type("command", cmd).Msg("engine: unrecognized command type")
	}
}

func (e *Engine) handlePlaceOrder(cmd PlaceOrder) {
	b, ok := e.books[cmd.Pair]
	if !ok {
		sendReply(cmd.Reply, rejected(ErrUnknownMarket))
		return
	}
	if !money.IsPositive(cmd.Quantity) {
		sendReply(cmd.Reply, rejected(ErrNonPositiveQuantity))
		return
	}
	if cmd.Kind == common.LimitOrder && !money.IsPositive(cmd.Price) {
		sendReply(cmd.Reply, rejected(ErrMissingPrice))
		return
	}
	if cmd.Kind == common.MarketOrder && cmd.Side == common.Buy && cmd.MaxQuote == nil {
		sendReply(cmd.Reply, rejected(ErrMarketBidRequiresMaxQuote))
		return
	}

	orderID := uuid.New()
	timestamp := cmd.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	order := &common.Order{
		ID:         orderID,
		UserID:     cmd.UserID,
		Pair:       cmd.Pair,
		Side:       cmd.Side,
		Kind:       cmd.Kind,
		LimitPrice: cmd.Price,
		MaxQuote:   cmd.MaxQuote,
		Remaining:  cmd.Quantity,
		Original:   cmd.Quantity,
		Timestamp:  timestamp,
	}

	reserveAsset, reserveAmount := reservationFor(cmd)
	if err := e.ledger.Reserve(orderID, cmd.UserID, reserveAsset, reserveAmount); err != nil {
		sendReply(cmd.Reply, rejected(mapLedgerErr(err)))
		return
	}

	bidBefore, _, bidOkBefore := b.BestBid()
	askBefore, _, askOkBefore := b.BestAsk()

	trades := b.AddOrder(order, e.selfTradePolicy)

	for _, trade := range trades {
		if err := e.ledger.Settle(trade); err != nil {
			invariantViolation("settle failed for trade %s: %v", trade.ID, err)
		}
		e.recordTicker(trade)
	}

	resting := b.Resting(orderID)
	if resting {
		e.orderPair[orderID] = cmd.Pair
	} else if _, held := e.ledger.ReservedAmount(orderID); held {
		// Not booked: either a market residual (never fillable further)
		// or a limit order that fully executed at maker prices better
		// than its own reservation. Either way nothing is left to cancel
		// later, so any reservation still standing is pure
		// over-reservation and must be released now.
		if err := e.ledger.Release(orderID); err != nil && !errors.Is(err, ledger.ErrUnknownReservation) {
			invariantViolation("release of unbooked residual failed for order %s: %v", orderID, err)
		}
	}

	if b.Crossed() {
		invariantViolation("book for %s is crossed after processing order %s", cmd.Pair, orderID)
	}

	e.publishPersist(PersistOrder{Order: *order})
	if len(trades) > 0 {
		e.publishPersist(PersistTrades{Trades: trades})
	}
	for _, trade := range trades {
		e.publishMarketData(marketdata.NewTrade(cmd.Pair, marketdata.TradePayload{
			TradeID:       trade.ID.String(),
			Price:         trade.Price,
			Quantity:      trade.Quantity,
			BuyerOrderID:  trade.BuyerOrderID.String(),
			SellerOrderID: trade.SellerOrderID.String(),
		}, trade.Timestamp))
	}

	bidAfter, _, bidOkAfter := b.BestBid()
	askAfter, _, askOkAfter := b.BestAsk()
	if bidOkBefore != bidOkAfter || askOkBefore != askOkAfter ||
		(bidOkAfter && !bidBefore.Equal(bidAfter)) || (askOkAfter && !askBefore.Equal(askAfter)) {
		e.publishDepth(cmd.Pair, b)
	}

	sendReply(cmd.Reply, accepted(orderID, trades))
}

func (e *Engine) handleCancelOrder(cmd CancelOrder) {
	pair, ok := e.orderPair[cmd.OrderID]
	if !ok {
		sendReply(cmd.Reply, rejected(ErrUnknownOrder))
		return
	}
	b := e.books[pair]
	order, ok := b.CancelOrder(cmd.OrderID)
	if !ok {
		// Already filled or already canceled: idempotent cancel
		// (invariant 8) rejects without side effects.
		delete(e.orderPair, cmd.OrderID)
		sendReply(cmd.Reply, rejected(ErrUnknownOrder))
		return
	}
	delete(e.orderPair, cmd.OrderID)

	if err := e.ledger.Release(cmd.OrderID); err != nil {
		invariantViolation("release on cancel failed for order %s: %v", cmd.OrderID, err)
	}

	e.publishPersist(PersistOrder{Order: *order})
	e.publishMarketData(marketdata.NewOrderUpdate(pair, marketdata.OrderUpdatePayload{
		OrderID:   order.ID.String(),
		Remaining: order.Remaining,
		Status:    "canceled",
	}, time.Now().UTC()))

	sendReply(cmd.Reply, canceled(cmd.OrderID))
}

func (e *Engine) handleInspectDepth(cmd InspectDepth) {
	b, ok := e.books[cmd.Pair]
	if !ok {
		sendReply(cmd.Reply, DepthSnapshot{Pair: cmd.Pair})
		return
	}
	maxLevels := cmd.MaxLevels
	if maxLevels <= 0 {
		maxLevels = defaultDepthLevels
	}
	bids, asks := b.Depth(maxLevels)
	sendReply(cmd.Reply, DepthSnapshot{Pair: cmd.Pair, Bids: bids, Asks: asks})
}

func (e *Engine) handleInspectBalance(cmd InspectBalance) {
	balances := e.ledger.AllBalances(cmd.UserID)
	out := make(map[common.Asset]BalanceEntry, len(balances))
	for asset, bal := range balances {
		out[asset] = BalanceEntry{Available: bal.Available, Locked: bal.Locked}
	}
	sendReply(cmd.Reply, BalanceSnapshot{UserID: cmd.UserID, Balances: out})
}

func (e *Engine) handleInspectTicker(cmd InspectTicker) {
	t, ok := e.tickers[cmd.Pair]
	if !ok {
		sendReply(cmd.Reply, TickerSnapshot{Pair: cmd.Pair})
		return
	}
	sendReply(cmd.Reply, t.snapshot())
}

func (e *Engine) recordTicker(trade common.Trade) {
	t, ok := e.tickers[trade.Pair]
	if !ok {
		t = newTickerState(trade.Pair)
		e.tickers[trade.Pair] = t
	}
	before := t.snapshot()
	t.recordTrade(trade.Price, trade.Quantity, trade.Timestamp)
	after := t.snapshot()
	if !before.LastPrice.Equal(after.LastPrice) || !before.Volume24h.Equal(after.Volume24h) {
		e.publishMarketData(marketdata.NewTicker(trade.Pair, marketdata.TickerPayload{
			LastPrice:      after.LastPrice,
			Volume24h:      after.Volume24h,
			High24h:        after.High24h,
			Low24h:         after.Low24h,
			PriceChange24h: after.PriceChange24h,
		}, trade.Timestamp))
	}
}

func (e *Engine) publishDepth(pair common.TradingPair, b *book.OrderBook) {
	bids, asks := b.Depth(defaultDepthLevels)
	e.publishMarketData(marketdata.NewDepth(pair, marketdata.DepthPayload{Bids: bids, Asks: asks}, time.Now().UTC()))
}

// publishPersist never blocks: a full channel spills to a side buffer
// with a warning, and a spill that grows past maxPersistSpill means the
// persister is wedged, which is fatal (spec.md §7).
func (e *Engine) publishPersist(msg PersistMessage) {
	select {
	case e.persist <- msg:
		return
	default:
	}
	e.persistSpill = append(e.persistSpill, msg)
	log.Warn().Int("spill_size", len(e.persistSpill)).Msg("engine: persistence channel full, spilling")
	if len(e.persistSpill) > maxPersistSpill {
		invariantViolation("persistence spill exceeded %d messages, persister appears wedged", maxPersistSpill)
	}
}

func (e *Engine) drainPersistSpill() {
	for len(e.persistSpill) > 0 {
		select {
		case e.persist <- e.persistSpill[0]:
			e.persistSpill = e.persistSpill[1:]
		default:
			return
		}
	}
}

// publishMarketData never blocks: a slow or absent subscriber loses the
// event rather than stalling the engine (spec.md §5 drop-slow-consumer).
func (e *Engine) publishMarketData(ev marketdata.Event) {
	select {
	case e.marketData <- ev:
	default:
		log.Warn().Str("market", ev.Market.String()).Str("type", string(ev.UpdateType)).
			Msg("engine: market-data channel full, dropping event")
	}
}

// reservationFor computes the asset and amount a PlaceOrder command
// locks before it reaches the book (spec.md §4.4).
func reservationFor(cmd PlaceOrder) (common.Asset, money.Decimal) {
	switch {
	case cmd.Side == common.Sell:
		return cmd.Pair.Base, cmd.Quantity
	case cmd.Kind == common.MarketOrder:
		return cmd.Pair.Quote, *cmd.MaxQuote
	default:
		return cmd.Pair.Quote, cmd.Quantity.Mul(cmd.Price)
	}
}

func mapLedgerErr(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return ErrInsufficientFunds
	case errors.Is(err, ledger.ErrDuplicateReserve):
		return ErrDuplicateReservation
	case errors.Is(err, ledger.ErrUnknownReservation):
		return ErrUnknownReservation
	default:
		return err
	}
}

func sendReply[T any](ch chan T, v T) {
	if ch == nil {
		return
	}
	select {
	case ch <- v:
	default:
		log.Warn().Msg("engine: reply channel unready, dropping response")
	}
}
