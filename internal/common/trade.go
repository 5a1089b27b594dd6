package common

import (
	"fmt"
	"time"

	"clobcore/internal/money"

	"github.com/google/uuid"
)

// Trade is the immutable record of one match between a resting maker order
// and an incoming taker order (spec.md §3, §4.2 matching algorithm). Price
// is always the maker's resting price.
type Trade struct {
	ID            uuid.UUID
	Pair          TradingPair
	BuyerOrderID  uuid.UUID
	SellerOrderID uuid.UUID
	BuyerUserID   string
	SellerUserID  string
	TakerSide     Side
	Price         money.Decimal
	Quantity      money.Decimal
	Timestamp     time.Time
}

func (t *Trade) String() string {
	return fmt.Sprintf(
		"Trade{id=%s pair=%s buy=%s sell=%s price=%s qty=%s}",
		t.ID, t.Pair, t.BuyerOrderID, t.SellerOrderID, t.Price, t.Quantity,
	)
}
