package persist

import "time"

// tradeRow and orderRow are the sqlx-mapped rows backing the persistence
// schema (spec.md §5's totally ordered SaveTrades/SaveOrder stream).
// Prices and quantities are carried as their canonical decimal string
// form (spec.md §4.1) into NUMERIC columns, never as a float column.
type tradeRow struct {
	ID            string    `db:"id"`
	Market        string    `db:"market"`
	Price         string    `db:"price"`
	Quantity      string    `db:"quantity"`
	BuyerOrderID  string    `db:"buyer_order_id"`
	SellerOrderID string    `db:"seller_order_id"`
	BuyerUserID   string    `db:"buyer_user_id"`
	SellerUserID  string    `db:"seller_user_id"`
	Timestamp     time.Time `db:"ts"`
}

type orderRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	Market     string    `db:"market"`
	Side       string    `db:"side"`
	Kind       string    `db:"kind"`
	LimitPrice string    `db:"limit_price"`
	Remaining  string    `db:"remaining"`
	Original   string    `db:"original"`
	Timestamp  time.Time `db:"ts"`
}

// Schema is the illustrative DDL the Store relies on. Open applies it on
// every start; its statements are all IF NOT EXISTS, and there is no
// migration tooling beyond that.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	id              TEXT PRIMARY KEY,
	market          TEXT NOT NULL,
	price           NUMERIC NOT NULL,
	quantity        NUMERIC NOT NULL,
	buyer_order_id  TEXT NOT NULL,
	seller_order_id TEXT NOT NULL,
	buyer_user_id   TEXT NOT NULL,
	seller_user_id  TEXT NOT NULL,
	ts              TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS trades_market_ts_idx ON trades (market, ts DESC);

CREATE TABLE IF NOT EXISTS orders (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	market      TEXT NOT NULL,
	side        TEXT NOT NULL,
	kind        TEXT NOT NULL,
	limit_price NUMERIC NOT NULL,
	remaining   NUMERIC NOT NULL,
	original    NUMERIC NOT NULL,
	ts          TIMESTAMPTZ NOT NULL
);
`
