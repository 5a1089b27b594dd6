// Package persist drains the engine's persistence channel and applies it
// in arrival order to Postgres (spec.md §5: "the persister applies them
// in arrival order"), and serves the read-side of the REST trade-history
// endpoint. Grounded on the sqlx+lib/pq repository style used elsewhere
// in the retrieved example pack.
package persist

import (
	"context"
	"fmt"
	"time"

	"clobcore/internal/common"
	"clobcore/internal/engine"
	"clobcore/internal/money"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

var uuidParse = uuid.Parse

// Store owns the database connection and both writes persistence events
// and answers recent-trade reads for the REST adapter.
type Store struct {
	db *sqlx.DB
}

func Open(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("persist: connecting to postgres: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("persist: applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Run drains messages and applies them one at a time, preserving arrival
// order (spec.md §5). A write failure is logged and the same message is
// retried with capped exponential backoff until it succeeds, rather than
// crashing the persister thread or skipping the message; sustained
// failure backs the engine's own persist channel up until its spill
// buffer overflows and it crash-fails (spec.md §7).
func (s *Store) Run(t *tomb.Tomb, messages <-chan engine.PersistMessage) error {
	const retryBase, retryMax = 100 * time.Millisecond, 5 * time.Second
	ctx := context.Background()
	for {
		select {
		case <-t.Dying():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			for backoff := retryBase; ; backoff = min(2*backoff, retryMax) {
				err := s.apply(ctx, msg)
				if err == nil {
					break
				}
				log.Error().Err(err).Dur("retry_in", backoff).Msg("persist: failed to apply message, retrying")
				select {
				case <-t.Dying():
					return nil
				case <-time.After(backoff):
				}
			}
		}
	}
}

func (s *Store) apply(ctx context.Context, msg engine.PersistMessage) error {
	switch m := msg.(type) {
	case engine.PersistTrades:
		return s.saveTrades(ctx, m.Trades)
	case engine.PersistOrder:
		return s.saveOrder(ctx, m.Order)
	default:
		return fmt.Errorf("persist: unrecognized message type %T", msg)
	}
}

func (s *Store) saveTrades(ctx context.Context, trades []common.Trade) error {
	const query = `
		INSERT INTO trades (id, market, price, quantity, buyer_order_id, seller_order_id, buyer_user_id, seller_user_id, ts)
		VALUES (:id, :market, :price, :quantity, :buyer_order_id, :seller_order_id, :buyer_user_id, :seller_user_id, :ts)
		ON CONFLICT (id) DO NOTHING
	`
	for _, trade := range trades {
		row := tradeRow{
			ID: trade.ID.String(), Market: trade.Pair.String(),
			Price: trade.Price.String(), Quantity: trade.Quantity.String(),
			BuyerOrderID: trade.BuyerOrderID.String(), SellerOrderID: trade.SellerOrderID.String(),
			BuyerUserID: trade.BuyerUserID, SellerUserID: trade.SellerUserID,
			Timestamp: trade.Timestamp,
		}
		if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("persist: saving trade %s: %w", trade.ID, err)
		}
	}
	return nil
}

func (s *Store) saveOrder(ctx context.Context, order common.Order) error {
	const query = `
		INSERT INTO orders (id, user_id, market, side, kind, limit_price, remaining, original, ts)
		VALUES (:id, :user_id, :market, :side, :kind, :limit_price, :remaining, :original, :ts)
		ON CONFLICT (id) DO UPDATE SET remaining = EXCLUDED.remaining, ts = EXCLUDED.ts
	`
	row := orderRow{
		ID: order.ID.String(), UserID: order.UserID, Market: order.Pair.String(),
		Side: order.Side.String(), Kind: order.Kind.String(),
		LimitPrice: order.LimitPrice.String(), Remaining: order.Remaining.String(), Original: order.Original.String(),
		Timestamp: order.Timestamp,
	}
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("persist: saving order %s: %w", order.ID, err)
	}
	return nil
}

// RecentTrades answers GET /api/v1/trades/{market}: a real read from the
// durable trade history, replacing original_source's hardcoded stub
// response (SPEC_FULL.md §7).
func (s *Store) RecentTrades(ctx context.Context, market string, limit int) ([]common.Trade, error) {
	const query = `
		SELECT id, market, price, quantity, buyer_order_id, seller_order_id, buyer_user_id, seller_user_id, ts
		FROM trades WHERE market = $1 ORDER BY ts DESC LIMIT $2
	`
	var rows []tradeRow
	if err := s.db.SelectContext(ctx, &rows, query, market, limit); err != nil {
		return nil, fmt.Errorf("persist: querying recent trades: %w", err)
	}

	pair, err := common.ParseTradingPair(market)
	if err != nil {
		return nil, fmt.Errorf("persist: invalid market %q: %w", market, err)
	}

	trades := make([]common.Trade, 0, len(rows))
	for _, row := range rows {
		price, err := money.Parse(row.Price)
		if err != nil {
			continue
		}
		qty, err := money.Parse(row.Quantity)
		if err != nil {
			continue
		}
		id, err := uuidParse(row.ID)
		if err != nil {
			continue
		}
		buyerOrderID, err := uuidParse(row.BuyerOrderID)
		if err != nil {
			continue
		}
		sellerOrderID, err := uuidParse(row.SellerOrderID)
		if err != nil {
			continue
		}
		trades = append(trades, common.Trade{
			ID: id, Pair: pair, Price: price, Quantity: qty,
			BuyerOrderID: buyerOrderID, SellerOrderID: sellerOrderID,
			BuyerUserID: row.BuyerUserID, SellerUserID: row.SellerUserID,
			Timestamp: row.Timestamp,
		})
	}
	return trades, nil
}
