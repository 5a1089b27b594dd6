package engine

import "clobcore/internal/common"

// PersistMessage is one entry of the totally ordered persistence stream
// (spec.md §5): the persister applies these in arrival order.
type PersistMessage interface{ isPersist() }

// PersistTrades carries every trade produced by a single command.
type PersistTrades struct {
	Trades []common.Trade
}

func (PersistTrades) isPersist() {}

// PersistOrder carries an order's state after it was placed or canceled
// (new, partially filled and resting, fully filled, or canceled).
type PersistOrder struct {
	Order common.Order
}

func (PersistOrder) isPersist() {}
