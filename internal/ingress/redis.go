// Package ingress bridges the Redis queue/pubsub surface from spec.md
// §6 (order_queue, order_response, market_updates) onto the engine's
// command channel, grounded on original_source/src/redis/mod.rs's
// BLPOP/PUBLISH design but reimplemented with go-redis instead of the
// tokio redis crate.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clobcore/internal/book"
	"clobcore/internal/common"
	"clobcore/internal/engine"
	"clobcore/internal/marketdata"
	"clobcore/internal/money"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	orderQueueKey      = "order_queue"
	orderResponseChan  = "order_response"
	marketUpdatesChan  = "market_updates"
	blpopTimeout       = time.Second
	engineReplyTimeout = 5 * time.Second
)

// Bridge drains order_queue into the engine's ingress channel and
// republishes the engine's responses and market-data events.
type Bridge struct {
	client     *redis.Client
	ingress    chan<- engine.Command
	marketData <-chan marketdata.Event
}

func NewBridge(redisURL string, ingress chan<- engine.Command, marketData <-chan marketdata.Event) (*Bridge, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("ingress: parsing redis url: %w", err)
	}
	return &Bridge{
		client:     redis.NewClient(opts),
		ingress:    ingress,
		marketData: marketData,
	}, nil
}

// Run starts the order_queue consumer and the market-data publisher, and
// blocks until the tomb is dying.
func (b *Bridge) Run(t *tomb.Tomb) error {
	t.Go(func() error {
		b.publishMarketData(t)
		return nil
	})
	b.consumeOrders(t)
	return nil
}

func (b *Bridge) consumeOrders(t *tomb.Tomb) {
	ctx := context.Background()
	for {
		select {
		case <-t.Dying():
			return
		default:
		}

		result, err := b.client.BLPop(ctx, blpopTimeout, orderQueueKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			log.Error().Err(err).Msg("ingress: BLPOP failed")
			continue
		}
		if len(result) < 2 {
			continue
		}
		b.handleOrderRequest(ctx, result[1])
	}
}

func (b *Bridge) handleOrderRequest(ctx context.Context, raw string) {
	var req orderRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		log.Error().Err(err).Str("payload", raw).Msg("ingress: invalid order_queue shape, dropped")
		return
	}
	log.Info().Str("id", req.ID).Str("market", req.Market).Msg("ingress: order request received")

	cmd, err := b.toPlaceOrder(req)
	if err != nil {
		b.publishRejection(ctx, req.ID, err)
		return
	}

	// Bounded by its own timeout on top of ctx: the engine normally
	// answers in-line, so a reply that never arrives means the engine
	// loop is gone and this request should be abandoned rather than
	// leaking the goroutine past shutdown.
	waitCtx, cancel := context.WithTimeout(ctx, engineReplyTimeout)
	defer cancel()

	select {
	case b.ingress <- cmd:
	case <-waitCtx.Done():
		return
	}

	select {
	case resp := <-cmd.Reply:
		b.publishResponse(ctx, req.ID, resp)
	case <-waitCtx.Done():
		log.Warn().Str("id", req.ID).Msg("ingress: timed out waiting for engine reply")
	}
}

func (b *Bridge) toPlaceOrder(req orderRequest) (engine.PlaceOrder, error) {
	pair, err := common.ParseTradingPair(req.Market)
	if err != nil {
		return engine.PlaceOrder{}, ErrInvalidMarket
	}
	side, err := req.parseSide()
	if err != nil {
		return engine.PlaceOrder{}, err
	}
	kind, err := req.parseKind()
	if err != nil {
		return engine.PlaceOrder{}, err
	}
	qty, err := money.Parse(req.Quantity)
	if err != nil {
		return engine.PlaceOrder{}, fmt.Errorf("ingress: invalid quantity: %w", err)
	}

	var price money.Decimal
	if req.Price != nil {
		price, err = money.Parse(*req.Price)
		if err != nil {
			return engine.PlaceOrder{}, fmt.Errorf("ingress: invalid price: %w", err)
		}
	} else if kind == common.LimitOrder {
		return engine.PlaceOrder{}, ErrMissingPrice
	}

	var maxQuote *money.Decimal
	if req.MaxQuote != nil {
		mq, err := money.Parse(*req.MaxQuote)
		if err != nil {
			return engine.PlaceOrder{}, fmt.Errorf("ingress: invalid max_quote: %w", err)
		}
		maxQuote = &mq
	}

	return engine.PlaceOrder{
		Pair:      pair,
		Kind:      kind,
		Side:      side,
		UserID:    req.UserID,
		Quantity:  qty,
		Price:     price,
		MaxQuote:  maxQuote,
		Timestamp: req.parseTimestamp(),
		Reply:     make(chan engine.Response, 1),
	}, nil
}

func (b *Bridge) publishResponse(ctx context.Context, requestID string, resp engine.Response) {
	out := orderResponse{RequestID: requestID, Success: resp.Status == engine.Accepted}
	if resp.Status != engine.Rejected {
		id := resp.OrderID.String()
		out.OrderID = &id
	}
	out.Trades = make([]tradeInfo, 0, len(resp.Trades))
	for _, trade := range resp.Trades {
		out.Trades = append(out.Trades, tradeInfo{
			TradeID:       trade.ID.String(),
			Price:         trade.Price.String(),
			Quantity:      trade.Quantity.String(),
			Timestamp:     trade.Timestamp.Format(time.RFC3339),
			BuyerOrderID:  trade.BuyerOrderID.String(),
			SellerOrderID: trade.SellerOrderID.String(),
		})
	}
	if resp.Err != nil {
		msg := resp.Err.Error()
		out.Error = &msg
	}
	b.publish(ctx, orderResponseChan, out)
}

func (b *Bridge) publishRejection(ctx context.Context, requestID string, err error) {
	msg := err.Error()
	b.publish(ctx, orderResponseChan, orderResponse{RequestID: requestID, Success: false, Error: &msg})
}

func (b *Bridge) publishMarketData(t *tomb.Tomb) {
	ctx := context.Background()
	for {
		select {
		case <-t.Dying():
			return
		case ev, ok := <-b.marketData:
			if !ok {
				return
			}
			b.publishEvent(ctx, ev)
		}
	}
}

func (b *Bridge) publishEvent(ctx context.Context, ev marketdata.Event) {
	update := marketUpdate{
		Market:     ev.Market.String(),
		UpdateType: string(ev.UpdateType),
		Timestamp:  ev.Timestamp.Format(time.RFC3339),
	}
	switch {
	case ev.Trade != nil:
		update.Data = tradeInfo{
			TradeID: ev.Trade.TradeID, Price: ev.Trade.Price.String(), Quantity: ev.Trade.Quantity.String(),
			Timestamp: update.Timestamp, BuyerOrderID: ev.Trade.BuyerOrderID, SellerOrderID: ev.Trade.SellerOrderID,
		}
	case ev.Depth != nil:
		update.Data = depthInfo{Bids: toDepthLevels(ev.Depth.Bids), Asks: toDepthLevels(ev.Depth.Asks)}
	case ev.Ticker != nil:
		update.Data = tickerInfo{
			LastPrice: ev.Ticker.LastPrice.String(), Volume24h: ev.Ticker.Volume24h.String(),
			High24h: ev.Ticker.High24h.String(), Low24h: ev.Ticker.Low24h.String(),
			PriceChange24h: ev.Ticker.PriceChange24h.String(),
		}
	case ev.Order != nil:
		update.Data = orderUpdateInfo{OrderID: ev.Order.OrderID, Remaining: ev.Order.Remaining.String(), Status: ev.Order.Status}
	}
	b.publish(ctx, marketUpdatesChan, update)
}

func toDepthLevels(levels []book.LevelSnapshot) []depthLevel {
	out := make([]depthLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, depthLevel{Price: l.Price.String(), Quantity: l.Quantity.String()})
	}
	return out
}

func (b *Bridge) publish(ctx context.Context, channel string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("ingress: failed to marshal outbound payload")
		return
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("ingress: publish failed")
	}
}
