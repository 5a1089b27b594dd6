package engine_test

import (
	"testing"
	"time"

	"clobcore/internal/common"
	"clobcore/internal/engine"
	"clobcore/internal/marketdata"
	"clobcore/internal/money"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tomb "gopkg.in/tomb.v2"
)

var btcUsd = common.TradingPair{Base: "BTC", Quote: "USD"}

type harness struct {
	eng        *engine.Engine
	ingress    chan engine.Command
	persist    chan engine.PersistMessage
	marketData chan marketdata.Event
	t          *tomb.Tomb
}

func newHarness(t *testing.T) *harness {
	ingress := make(chan engine.Command, 16)
	persist := make(chan engine.PersistMessage, 64)
	md := make(chan marketdata.Event, 64)
	eng := engine.New([]common.TradingPair{btcUsd}, ingress, persist, md)

	tb := &tomb.Tomb{}
	tb.Go(func() error { return eng.Run(tb) })
	t.Cleanup(func() {
		tb.Kill(nil)
		_ = tb.Wait()
	})

	return &harness{eng: eng, ingress: ingress, persist: persist, marketData: md, t: tb}
}

func (h *harness) place(t *testing.T, cmd engine.PlaceOrder) engine.Response {
	cmd.Reply = make(chan engine.Response, 1)
	h.ingress <- cmd
	select {
	case resp := <-cmd.Reply:
		return resp
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for place-order response")
		return engine.Response{}
	}
}

func (h *harness) cancel(t *testing.T, orderID uuid.UUID) engine.Response {
	reply := make(chan engine.Response, 1)
	h.ingress <- engine.CancelOrder{OrderID: orderID, Reply: reply}
	select {
	case resp := <-reply:
		return resp
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancel response")
		return engine.Response{}
	}
}

func (h *harness) balance(t *testing.T, userID string) engine.BalanceSnapshot {
	reply := make(chan engine.BalanceSnapshot, 1)
	h.ingress <- engine.InspectBalance{UserID: userID, Reply: reply}
	select {
	case snap := <-reply:
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for balance snapshot")
		return engine.BalanceSnapshot{}
	}
}

func (h *harness) depth(t *testing.T) engine.DepthSnapshot {
	reply := make(chan engine.DepthSnapshot, 1)
	h.ingress <- engine.InspectDepth{Pair: btcUsd, MaxLevels: 10, Reply: reply}
	select {
	case snap := <-reply:
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for depth snapshot")
		return engine.DepthSnapshot{}
	}
}

// S1 — full match.
func TestEngineFullMatch(t *testing.T) {
	h := newHarness(t)
	h.eng.RegisterUser("u1", map[common.Asset]money.Decimal{"BTC": money.MustParse("10")})
	h.eng.RegisterUser("u2", map[common.Asset]money.Decimal{"USD": money.MustParse("1000000")})

	sellResp := h.place(t, engine.PlaceOrder{
		Pair: btcUsd, Kind: common.LimitOrder, Side: common.Sell, UserID: "u1",
		Quantity: money.MustParse("2"), Price: money.MustParse("50000"),
	})
	require.Equal(t, engine.Accepted, sellResp.Status)
	require.Empty(t, sellResp.Trades)

	buyResp := h.place(t, engine.PlaceOrder{
		Pair: btcUsd, Kind: common.LimitOrder, Side: common.Buy, UserID: "u2",
		Quantity: money.MustParse("2"), Price: money.MustParse("50000"),
	})
	require.Equal(t, engine.Accepted, buyResp.Status)
	require.Len(t, buyResp.Trades, 1)
	assert.True(t, buyResp.Trades[0].Quantity.Equal(money.MustParse("2")))
	assert.True(t, buyResp.Trades[0].Price.Equal(money.MustParse("50000")))

	u1 := h.balance(t, "u1")
	assert.True(t, u1.Balances["BTC"].Available.Equal(money.MustParse("8")))
	assert.True(t, u1.Balances["USD"].Available.Equal(money.MustParse("100000")))

	u2 := h.balance(t, "u2")
	assert.True(t, u2.Balances["USD"].Locked.IsZero())
	assert.True(t, u2.Balances["BTC"].Available.Equal(money.MustParse("2")))

	depth := h.depth(t)
	assert.Empty(t, depth.Bids)
	assert.Empty(t, depth.Asks)
}

// S2 — partial fill and residual.
func TestEnginePartialFillResidual(t *testing.T) {
	h := newHarness(t)
	h.eng.RegisterUser("u1", map[common.Asset]money.Decimal{"BTC": money.MustParse("5")})
	h.eng.RegisterUser("u2", map[common.Asset]money.Decimal{"USD": money.MustParse("1000000")})

	h.place(t, engine.PlaceOrder{
		Pair: btcUsd, Kind: common.LimitOrder, Side: common.Sell, UserID: "u1",
		Quantity: money.MustParse("5"), Price: money.MustParse("50000"),
	})
	resp := h.place(t, engine.PlaceOrder{
		Pair: btcUsd, Kind: common.LimitOrder, Side: common.Buy, UserID: "u2",
		Quantity: money.MustParse("3"), Price: money.MustParse("50000"),
	})
	require.Len(t, resp.Trades, 1)
	assert.True(t, resp.Trades[0].Quantity.Equal(money.MustParse("3")))

	depth := h.depth(t)
	require.Len(t, depth.Asks, 1)
	assert.True(t, depth.Asks[0].Quantity.Equal(money.MustParse("2")))
}

// S3 — no cross.
func TestEngineNoCross(t *testing.T) {
	h := newHarness(t)
	h.eng.RegisterUser("u1", map[common.Asset]money.Decimal{"BTC": money.MustParse("1")})
	h.eng.RegisterUser("u2", map[common.Asset]money.Decimal{"USD": money.MustParse("100000")})

	h.place(t, engine.PlaceOrder{
		Pair: btcUsd, Kind: common.LimitOrder, Side: common.Sell, UserID: "u1",
		Quantity: money.MustParse("1"), Price: money.MustParse("51000"),
	})
	resp := h.place(t, engine.PlaceOrder{
		Pair: btcUsd, Kind: common.LimitOrder, Side: common.Buy, UserID: "u2",
		Quantity: money.MustParse("1"), Price: money.MustParse("50000"),
	})
	assert.Empty(t, resp.Trades)

	depth := h.depth(t)
	require.Len(t, depth.Bids, 1)
	require.Len(t, depth.Asks, 1)
	assert.True(t, depth.Bids[0].Price.Equal(money.MustParse("50000")))
	assert.True(t, depth.Asks[0].Price.Equal(money.MustParse("51000")))
}

// S5 — maker-price rule on a market buy.
func TestEngineMarketBuyUsesMakerPrice(t *testing.T) {
	h := newHarness(t)
	h.eng.RegisterUser("u1", map[common.Asset]money.Decimal{"BTC": money.MustParse("1")})
	h.eng.RegisterUser("u2", map[common.Asset]money.Decimal{"USD": money.MustParse("100000")})

	h.place(t, engine.PlaceOrder{
		Pair: btcUsd, Kind: common.LimitOrder, Side: common.Sell, UserID: "u1",
		Quantity: money.MustParse("1"), Price: money.MustParse("50000"),
	})
	maxQuote := money.MustParse("100000")
	resp := h.place(t, engine.PlaceOrder{
		Pair: btcUsd, Kind: common.MarketOrder, Side: common.Buy, UserID: "u2",
		Quantity: money.MustParse("1"), MaxQuote: &maxQuote,
	})
	require.Len(t, resp.Trades, 1)
	assert.True(t, resp.Trades[0].Price.Equal(money.MustParse("50000")))

	u2 := h.balance(t, "u2")
	// Only 50,000 of the 100,000 max_quote reservation was spent; the
	// rest must have been refunded back to available.
	assert.True(t, u2.Balances["USD"].Available.Equal(money.MustParse("50000")))
	assert.True(t, u2.Balances["USD"].Locked.IsZero())
}

// S6 — insufficient funds.
func TestEngineInsufficientFunds(t *testing.T) {
	h := newHarness(t)
	h.eng.RegisterUser("u2", map[common.Asset]money.Decimal{"USD": money.MustParse("1000")})

	resp := h.place(t, engine.PlaceOrder{
		Pair: btcUsd, Kind: common.LimitOrder, Side: common.Buy, UserID: "u2",
		Quantity: money.MustParse("1"), Price: money.MustParse("50000"),
	})
	assert.Equal(t, engine.Rejected, resp.Status)
	assert.ErrorIs(t, resp.Err, engine.ErrInsufficientFunds)

	depth := h.depth(t)
	assert.Empty(t, depth.Bids)
}

// Invariant 8 — idempotent cancel.
func TestEngineCancelIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.eng.RegisterUser("u1", map[common.Asset]money.Decimal{"BTC": money.MustParse("1")})

	resp := h.place(t, engine.PlaceOrder{
		Pair: btcUsd, Kind: common.LimitOrder, Side: common.Sell, UserID: "u1",
		Quantity: money.MustParse("1"), Price: money.MustParse("50000"),
	})
	require.Equal(t, engine.Accepted, resp.Status)

	cancelResp := h.cancel(t, resp.OrderID)
	assert.Equal(t, engine.Canceled, cancelResp.Status)

	u1 := h.balance(t, "u1")
	assert.True(t, u1.Balances["BTC"].Available.Equal(money.MustParse("1")))
	assert.True(t, u1.Balances["BTC"].Locked.IsZero())

	secondCancel := h.cancel(t, resp.OrderID)
	assert.Equal(t, engine.Rejected, secondCancel.Status)
	assert.ErrorIs(t, secondCancel.Err, engine.ErrUnknownOrder)
}

func TestEngineUnknownMarketRejected(t *testing.T) {
	h := newHarness(t)
	resp := h.place(t, engine.PlaceOrder{
		Pair: common.TradingPair{Base: "ETH", Quote: "USD"}, Kind: common.LimitOrder,
		Side: common.Buy, UserID: "u1", Quantity: money.MustParse("1"), Price: money.MustParse("1"),
	})
	assert.Equal(t, engine.Rejected, resp.Status)
	assert.ErrorIs(t, resp.Err, engine.ErrUnknownMarket)
}

func TestEngineMarketBuyWithoutMaxQuoteRejected(t *testing.T) {
	h := newHarness(t)
	h.eng.RegisterUser("u2", map[common.Asset]money.Decimal{"USD": money.MustParse("100000")})
	resp := h.place(t, engine.PlaceOrder{
		Pair: btcUsd, Kind: common.MarketOrder, Side: common.Buy, UserID: "u2",
		Quantity: money.MustParse("1"),
	})
	assert.Equal(t, engine.Rejected, resp.Status)
	assert.ErrorIs(t, resp.Err, engine.ErrMarketBidRequiresMaxQuote)
}
