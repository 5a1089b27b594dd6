// Package book implements the per-market order book and price-time
// priority matching algorithm (spec.md §4.2, §4.3). An OrderBook owns no
// channel or goroutine of its own; it is a plain data structure mutated
// exclusively by the engine loop (spec.md §5).
package book

import (
	"time"

	"clobcore/internal/common"
	"clobcore/internal/money"

	"github.com/google/uuid"
	"github.com/tidwall/btree"
)

// level is one price tier: a FIFO of resting orders, oldest first.
type level struct {
	Price  money.Decimal
	Orders []*common.Order
}

type levels = btree.BTreeG[*level]

// SelfTradePolicy decides whether a maker should be skipped rather than
// matched against a given taker. The default, AllowSelfTrade, never
// skips (spec.md §4.3: self-matching is permitted by default).
type SelfTradePolicy func(taker, maker *common.Order) bool

// AllowSelfTrade never skips a maker. This is the spec default.
func AllowSelfTrade(_, _ *common.Order) bool { return false }

// SkipSameUser skips a maker resting under the same user_id as the
// taker, so a user never trades against their own resting order.
func SkipSameUser(taker, maker *common.Order) bool {
	return taker.UserID == maker.UserID
}

type indexEntry struct {
	side  common.Side
	price money.Decimal
}

// OrderBook is the order book and matching engine for one trading pair.
// Bids are kept greatest-price-first, asks least-price-first, so that
// both sides iterate best-price-first during matching and snapshotting.
type OrderBook struct {
	Pair common.TradingPair

	bids *levels
	asks *levels

	// index maps order_id -> (side, price), so cancel/lookup finds an
	// order's level with one tree lookup instead of scanning the book,
	// per spec.md §4.2 cancel_order.
	index map[uuid.UUID]indexEntry

	nBuyOrders, nSellOrders   uint64
	buyQuantity, sellQuantity money.Decimal
}

// LevelSnapshot is one aggregated (price, total_qty) pair as returned by
// Depth.
type LevelSnapshot struct {
	Price    money.Decimal
	Quantity money.Decimal
}

func NewOrderBook(pair common.TradingPair) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *level) bool {
		return a.Price.GreaterThan(b.Price)
	})
	asks := btree.NewBTreeG(func(a, b *level) bool {
		return a.Price.LessThan(b.Price)
	})
	return &OrderBook{
		Pair:         pair,
		bids:         bids,
		asks:         asks,
		index:        make(map[uuid.UUID]indexEntry),
		buyQuantity:  money.Zero(),
		sellQuantity: money.Zero(),
	}
}

// AddOrder matches order against the opposite side per §4.3 and, for an
// unfilled limit residual, rests it in the book. Market residuals are
// discarded, never booked (caller is responsible for releasing any
// reservation against the discarded residual).
func (b *OrderBook) AddOrder(order *common.Order, policy SelfTradePolicy) []common.Trade {
	if policy == nil {
		policy = AllowSelfTrade
	}
	trades := b.match(order, policy)
	if !order.Filled() && order.Kind == common.LimitOrder {
		b.rest(order)
	}
	return trades
}

func (b *OrderBook) match(taker *common.Order, policy SelfTradePolicy) []common.Trade {
	var opposite *levels
	if taker.Side == common.Buy {
		opposite = b.asks
	} else {
		opposite = b.bids
	}

	var trades []common.Trade
	// Levels a SelfTradePolicy skips entirely for this taker are pulled
	// out of the tree so the outer loop advances past them instead of
	// re-fetching the same Min() forever, and put back once matching is
	// done.
	var setAside []*level

	for money.IsPositive(taker.Remaining) {
		lvl, ok := opposite.MinMut()
		if !ok {
			break
		}
		if taker.Kind == common.LimitOrder && !marketable(taker, lvl.Price) {
			break
		}

		makerSide := common.Sell
		if taker.Side == common.Sell {
			makerSide = common.Buy
		}

		matched := false
		kept := make([]*common.Order, 0, len(lvl.Orders))
		for _, maker := range lvl.Orders {
			if money.IsZero(taker.Remaining) || policy(taker, maker) {
				kept = append(kept, maker)
				continue
			}
			matched = true
			q := money.Min(taker.Remaining, maker.Remaining)
			taker.Remaining = taker.Remaining.Sub(q)
			maker.Remaining = maker.Remaining.Sub(q)
			trades = append(trades, b.buildTrade(taker, maker, lvl.Price, q))
			b.consumeQuantity(makerSide, q)

			if maker.Filled() {
				delete(b.index, maker.ID)
				b.bumpCount(maker.Side, false)
			} else {
				kept = append(kept, maker)
			}
		}
		lvl.Orders = kept
		opposite.Delete(lvl)

		if !matched {
			setAside = append(setAside, lvl)
			continue
		}
		if len(lvl.Orders) > 0 {
			opposite.Set(lvl)
		}
	}

	for _, lvl := range setAside {
		opposite.Set(lvl)
	}
	return trades
}

// consumeQuantity decrements the running aggregate liquidity counter for
// side by q, as matched quantity leaves the book.
func (b *OrderBook) consumeQuantity(side common.Side, q money.Decimal) {
	switch side {
	case common.Buy:
		b.buyQuantity = b.buyQuantity.Sub(q)
	case common.Sell:
		b.sellQuantity = b.sellQuantity.Sub(q)
	}
}

func marketable(taker *common.Order, levelPrice money.Decimal) bool {
	switch taker.Side {
	case common.Buy:
		return taker.LimitPrice.GreaterThanOrEqual(levelPrice)
	default:
		return taker.LimitPrice.LessThanOrEqual(levelPrice)
	}
}

func (b *OrderBook) buildTrade(taker, maker *common.Order, price, qty money.Decimal) common.Trade {
	buyer, seller := taker, maker
	if taker.Side != common.Buy {
		buyer, seller = maker, taker
	}
	return common.Trade{
		ID:            uuid.New(),
		Pair:          b.Pair,
		BuyerOrderID:  buyer.ID,
		SellerOrderID: seller.ID,
		BuyerUserID:   buyer.UserID,
		SellerUserID:  seller.UserID,
		TakerSide:     taker.Side,
		Price:         price,
		Quantity:      qty,
		Timestamp:     time.Now().UTC(),
	}
}

func (b *OrderBook) rest(order *common.Order) {
	var lvls *levels
	switch order.Side {
	case common.Buy:
		lvls = b.bids
	case common.Sell:
		lvls = b.asks
	}

	existing, ok := lvls.GetMut(&level{Price: order.LimitPrice})
	if ok {
		existing.Orders = append(existing.Orders, order)
	} else {
		lvls.Set(&level{Price: order.LimitPrice, Orders: []*common.Order{order}})
	}
	b.index[order.ID] = indexEntry{side: order.Side, price: order.LimitPrice}
	b.bumpCount(order.Side, true)
	switch order.Side {
	case common.Buy:
		b.buyQuantity = b.buyQuantity.Add(order.Remaining)
	case common.Sell:
		b.sellQuantity = b.sellQuantity.Add(order.Remaining)
	}
}

func (b *OrderBook) bumpCount(side common.Side, add bool) {
	delta := uint64(1)
	switch side {
	case common.Buy:
		if add {
			b.nBuyOrders += delta
		} else if b.nBuyOrders > 0 {
			b.nBuyOrders -= delta
		}
	case common.Sell:
		if add {
			b.nSellOrders += delta
		} else if b.nSellOrders > 0 {
			b.nSellOrders -= delta
		}
	}
}

// CancelOrder removes a resting order from the book, returning it and
// true, or false if the id is unknown (already filled or never
// existed). The caller is responsible for releasing the reservation.
func (b *OrderBook) CancelOrder(id uuid.UUID) (*common.Order, bool) {
	entry, ok := b.index[id]
	if !ok {
		return nil, false
	}
	var lvls *levels
	switch entry.side {
	case common.Buy:
		lvls = b.bids
	case common.Sell:
		lvls = b.asks
	}
	lvl, ok := lvls.GetMut(&level{Price: entry.price})
	if !ok {
		delete(b.index, id)
		return nil, false
	}
	var removed *common.Order
	kept := make([]*common.Order, 0, len(lvl.Orders))
	for _, o := range lvl.Orders {
		if o.ID == id {
			removed = o
			continue
		}
		kept = append(kept, o)
	}
	lvl.Orders = kept
	if len(lvl.Orders) == 0 {
		lvls.Delete(lvl)
	}
	delete(b.index, id)
	if removed != nil {
		b.bumpCount(entry.side, false)
		switch entry.side {
		case common.Buy:
			b.buyQuantity = b.buyQuantity.Sub(removed.Remaining)
		case common.Sell:
			b.sellQuantity = b.sellQuantity.Sub(removed.Remaining)
		}
	}
	return removed, removed != nil
}

// Resting reports whether id still identifies a resting order.
func (b *OrderBook) Resting(id uuid.UUID) bool {
	_, ok := b.index[id]
	return ok
}

// BestBid returns the highest bid price and the aggregated quantity
// resting at it.
func (b *OrderBook) BestBid() (money.Decimal, money.Decimal, bool) {
	return bestOf(b.bids)
}

// BestAsk returns the lowest ask price and the aggregated quantity
// resting at it.
func (b *OrderBook) BestAsk() (money.Decimal, money.Decimal, bool) {
	return bestOf(b.asks)
}

func bestOf(lvls *levels) (money.Decimal, money.Decimal, bool) {
	lvl, ok := lvls.Min()
	if !ok {
		return money.Zero(), money.Zero(), false
	}
	total := money.Zero()
	for _, o := range lvl.Orders {
		total = total.Add(o.Remaining)
	}
	return lvl.Price, total, true
}

// Depth returns up to maxLevels aggregated price levels on each side,
// bids descending, asks ascending (spec.md §4.2).
func (b *OrderBook) Depth(maxLevels int) (bids, asks []LevelSnapshot) {
	return snapshot(b.bids, maxLevels), snapshot(b.asks, maxLevels)
}

func snapshot(lvls *levels, maxLevels int) []LevelSnapshot {
	out := make([]LevelSnapshot, 0, maxLevels)
	lvls.Scan(func(l *level) bool {
		if len(out) >= maxLevels {
			return false
		}
		total := money.Zero()
		for _, o := range l.Orders {
			total = total.Add(o.Remaining)
		}
		out = append(out, LevelSnapshot{Price: l.Price, Quantity: total})
		return true
	})
	return out
}

// Crossed reports whether the best bid is at or above the best ask,
// which must never be observable between commands (invariant 3).
func (b *OrderBook) Crossed() bool {
	bid, _, bok := b.BestBid()
	ask, _, aok := b.BestAsk()
	if !bok || !aok {
		return false
	}
	return bid.GreaterThanOrEqual(ask)
}
