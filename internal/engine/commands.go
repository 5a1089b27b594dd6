package engine

import (
	"time"

	"clobcore/internal/book"
	"clobcore/internal/common"
	"clobcore/internal/money"

	"github.com/google/uuid"
)

// Command is anything the engine loop accepts off its ingress channel.
// Every variant that expects an answer carries its own reply channel, so
// the engine answers in-line rather than exposing state behind a lock
// (spec.md §5).
type Command interface{ isCommand() }

// PlaceOrder submits a new order. Quantity and (for limits) Price must
// already be positive; the engine validates before reserving funds.
type PlaceOrder struct {
	Pair      common.TradingPair
	Kind      common.OrderKind
	Side      common.Side
	UserID    string
	Quantity  money.Decimal
	Price     money.Decimal  // ignored for Market orders
	MaxQuote  *money.Decimal // market-bid only, see SPEC_FULL.md §6
	Timestamp time.Time
	Reply     chan Response
}

func (PlaceOrder) isCommand() {}

// CancelOrder removes a resting order and releases its reservation.
type CancelOrder struct {
	OrderID uuid.UUID
	Reply   chan Response
}

func (CancelOrder) isCommand() {}

// InspectDepth answers with an aggregated order book snapshot. It never
// mutates book or ledger state.
type InspectDepth struct {
	Pair      common.TradingPair
	MaxLevels int
	Reply     chan DepthSnapshot
}

func (InspectDepth) isCommand() {}

// InspectBalance answers with one user's balances across every asset
// they hold.
type InspectBalance struct {
	UserID string
	Reply  chan BalanceSnapshot
}

func (InspectBalance) isCommand() {}

// InspectTicker answers with the aggregated 24h ticker for a pair
// (SPEC_FULL.md §7 — supplemented from original_source/, never actually
// computed there).
type InspectTicker struct {
	Pair  common.TradingPair
	Reply chan TickerSnapshot
}

func (InspectTicker) isCommand() {}

// DepthSnapshot is the reply payload for InspectDepth.
type DepthSnapshot struct {
	Pair common.TradingPair
	Bids []book.LevelSnapshot
	Asks []book.LevelSnapshot
}

// BalanceSnapshot is the reply payload for InspectBalance.
type BalanceSnapshot struct {
	UserID   string
	Balances map[common.Asset]BalanceEntry
}

// BalanceEntry is one asset's available/locked split.
type BalanceEntry struct {
	Available money.Decimal
	Locked    money.Decimal
}
