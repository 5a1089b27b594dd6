package common

import (
	"fmt"
	"time"

	"clobcore/internal/money"

	"github.com/google/uuid"
)

// Order is a single order, resting or in-flight (spec.md §3). Remaining
// decreases only during matching; the order ceases to exist once
// Remaining reaches zero or it is canceled.
type Order struct {
	ID         uuid.UUID
	UserID     string
	Pair       TradingPair
	Side       Side
	Kind       OrderKind
	LimitPrice money.Decimal // zero for market orders
	MaxQuote   *money.Decimal // market-bid only, see SPEC_FULL.md §6
	Remaining  money.Decimal
	Original   money.Decimal
	Timestamp  time.Time // arrival time, determines time priority
}

// Filled reports whether the order has no remaining quantity.
func (o *Order) Filled() bool { return o.Remaining.Sign() == 0 }

func (o *Order) String() string {
	return fmt.Sprintf(
		"Order{id=%s user=%s pair=%s side=%s kind=%s price=%s remaining=%s/%s}",
		o.ID, o.UserID, o.Pair, o.Side, o.Kind, o.LimitPrice, o.Remaining, o.Original,
	)
}
