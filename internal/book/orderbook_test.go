package book_test

import (
	"testing"
	"time"

	"clobcore/internal/book"
	"clobcore/internal/common"
	"clobcore/internal/money"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var btcUsd = common.TradingPair{Base: "BTC", Quote: "USD"}

func limitOrder(user string, side common.Side, price, qty string, ts time.Time) *common.Order {
	return &common.Order{
		ID:         uuid.New(),
		UserID:     user,
		Pair:       btcUsd,
		Side:       side,
		Kind:       common.LimitOrder,
		LimitPrice: money.MustParse(price),
		Remaining:  money.MustParse(qty),
		Original:   money.MustParse(qty),
		Timestamp:  ts,
	}
}

// S1 — full match.
func TestFullMatch(t *testing.T) {
	b := book.NewOrderBook(btcUsd)
	now := time.Now()

	ask := limitOrder("u1", common.Sell, "50000", "2", now)
	trades := b.AddOrder(ask, nil)
	require.Empty(t, trades)

	bid := limitOrder("u2", common.Buy, "50000", "2", now.Add(time.Second))
	trades = b.AddOrder(bid, nil)

	require.Len(t, trades, 1)
	assert.True(t, trades[0].Quantity.Equal(money.MustParse("2")))
	assert.True(t, trades[0].Price.Equal(money.MustParse("50000")))
	assert.Equal(t, ask.ID, trades[0].SellerOrderID)
	assert.Equal(t, bid.ID, trades[0].BuyerOrderID)

	_, _, ok := b.BestBid()
	assert.False(t, ok)
	_, _, ok = b.BestAsk()
	assert.False(t, ok)
	assert.False(t, b.Resting(ask.ID))
	assert.False(t, b.Resting(bid.ID))
}

// S2 — partial fill and residual.
func TestPartialFillLeavesResidual(t *testing.T) {
	b := book.NewOrderBook(btcUsd)
	now := time.Now()

	ask := limitOrder("u1", common.Sell, "50000", "5", now)
	b.AddOrder(ask, nil)

	bid := limitOrder("u2", common.Buy, "50000", "3", now.Add(time.Second))
	trades := b.AddOrder(bid, nil)

	require.Len(t, trades, 1)
	assert.True(t, trades[0].Quantity.Equal(money.MustParse("3")))

	price, qty, ok := b.BestAsk()
	require.True(t, ok)
	assert.True(t, price.Equal(money.MustParse("50000")))
	assert.True(t, qty.Equal(money.MustParse("2")))
	assert.True(t, b.Resting(ask.ID))
	assert.False(t, b.Resting(bid.ID))
}

// S3 — no cross.
func TestNoCrossBooksBothSides(t *testing.T) {
	b := book.NewOrderBook(btcUsd)
	now := time.Now()

	ask := limitOrder("u1", common.Sell, "51000", "1", now)
	trades := b.AddOrder(ask, nil)
	require.Empty(t, trades)

	bid := limitOrder("u2", common.Buy, "50000", "1", now.Add(time.Second))
	trades = b.AddOrder(bid, nil)
	require.Empty(t, trades)

	bestBid, _, ok := b.BestBid()
	require.True(t, ok)
	assert.True(t, bestBid.Equal(money.MustParse("50000")))

	bestAsk, _, ok := b.BestAsk()
	require.True(t, ok)
	assert.True(t, bestAsk.Equal(money.MustParse("51000")))
	assert.False(t, b.Crossed())
}

// S4 — FIFO tie-break.
func TestFIFOTieBreak(t *testing.T) {
	b := book.NewOrderBook(btcUsd)
	now := time.Now()

	u1 := limitOrder("u1", common.Sell, "50000", "1", now)
	b.AddOrder(u1, nil)
	u3 := limitOrder("u3", common.Sell, "50000", "1", now.Add(time.Second))
	b.AddOrder(u3, nil)

	bid := limitOrder("u2", common.Buy, "50000", "1", now.Add(2*time.Second))
	trades := b.AddOrder(bid, nil)

	require.Len(t, trades, 1)
	assert.Equal(t, u1.ID, trades[0].SellerOrderID)
	assert.True(t, b.Resting(u3.ID))
	assert.False(t, b.Resting(u1.ID))
}

// S5 — maker-price rule, exercised via a market taker.
func TestMakerPriceRuleOnMarketTaker(t *testing.T) {
	b := book.NewOrderBook(btcUsd)
	now := time.Now()

	ask := limitOrder("u1", common.Sell, "50000", "1", now)
	b.AddOrder(ask, nil)

	marketBuy := &common.Order{
		ID:        uuid.New(),
		UserID:    "u2",
		Pair:      btcUsd,
		Side:      common.Buy,
		Kind:      common.MarketOrder,
		Remaining: money.MustParse("1"),
		Original:  money.MustParse("1"),
		Timestamp: now.Add(time.Second),
	}
	trades := b.AddOrder(marketBuy, nil)

	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(money.MustParse("50000")))
}

func TestMarketOrderResidualIsDiscardedNotBooked(t *testing.T) {
	b := book.NewOrderBook(btcUsd)
	now := time.Now()

	marketBuy := &common.Order{
		ID:        uuid.New(),
		UserID:    "u2",
		Pair:      btcUsd,
		Side:      common.Buy,
		Kind:      common.MarketOrder,
		Remaining: money.MustParse("1"),
		Original:  money.MustParse("1"),
		Timestamp: now,
	}
	trades := b.AddOrder(marketBuy, nil)
	assert.Empty(t, trades)
	assert.False(t, b.Resting(marketBuy.ID))
	_, _, ok := b.BestBid()
	assert.False(t, ok)
}

func TestSelfTradeDefaultPermissive(t *testing.T) {
	b := book.NewOrderBook(btcUsd)
	now := time.Now()

	ask := limitOrder("u1", common.Sell, "50000", "1", now)
	b.AddOrder(ask, nil)

	bid := limitOrder("u1", common.Buy, "50000", "1", now.Add(time.Second))
	trades := b.AddOrder(bid, nil)
	require.Len(t, trades, 1)
}

func TestSkipSameUserPolicySkipsSelfMatch(t *testing.T) {
	b := book.NewOrderBook(btcUsd)
	now := time.Now()

	ask := limitOrder("u1", common.Sell, "50000", "1", now)
	b.AddOrder(ask, book.SkipSameUser)

	bid := limitOrder("u1", common.Buy, "50000", "1", now.Add(time.Second))
	trades := b.AddOrder(bid, book.SkipSameUser)

	assert.Empty(t, trades)
	assert.True(t, b.Resting(ask.ID))
	assert.True(t, b.Resting(bid.ID))
}

func TestCancelOrder(t *testing.T) {
	b := book.NewOrderBook(btcUsd)
	ask := limitOrder("u1", common.Sell, "50000", "1", time.Now())
	b.AddOrder(ask, nil)

	canceled, ok := b.CancelOrder(ask.ID)
	require.True(t, ok)
	assert.Equal(t, ask.ID, canceled.ID)
	assert.False(t, b.Resting(ask.ID))

	// Idempotent cancel: second cancel of the same id fails cleanly.
	_, ok = b.CancelOrder(ask.ID)
	assert.False(t, ok)
}

func TestDepthOrdering(t *testing.T) {
	b := book.NewOrderBook(btcUsd)
	now := time.Now()
	b.AddOrder(limitOrder("u1", common.Buy, "100", "1", now), nil)
	b.AddOrder(limitOrder("u1", common.Buy, "101", "1", now), nil)
	b.AddOrder(limitOrder("u2", common.Sell, "200", "1", now), nil)
	b.AddOrder(limitOrder("u2", common.Sell, "199", "1", now), nil)

	bids, asks := b.Depth(10)
	require.Len(t, bids, 2)
	require.Len(t, asks, 2)
	assert.True(t, bids[0].Price.Equal(money.MustParse("101")))
	assert.True(t, bids[1].Price.Equal(money.MustParse("100")))
	assert.True(t, asks[0].Price.Equal(money.MustParse("199")))
	assert.True(t, asks[1].Price.Equal(money.MustParse("200")))
}
