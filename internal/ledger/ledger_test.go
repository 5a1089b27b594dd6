package ledger_test

import (
	"testing"

	"clobcore/internal/common"
	"clobcore/internal/ledger"
	"clobcore/internal/money"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterUserIsIdempotentAndMerges(t *testing.T) {
	l := ledger.New()
	l.RegisterUser("u1", map[common.Asset]money.Decimal{"BTC": money.MustParse("10")})
	l.RegisterUser("u1", map[common.Asset]money.Decimal{"BTC": money.MustParse("5")})

	bal := l.Balance("u1", "BTC")
	assert.True(t, bal.Available.Equal(money.MustParse("15")))
}

func TestReserveMovesAvailableToLocked(t *testing.T) {
	l := ledger.New()
	l.RegisterUser("u1", map[common.Asset]money.Decimal{"USD": money.MustParse("1000000")})

	orderID := uuid.New()
	require.NoError(t, l.Reserve(orderID, "u1", "USD", money.MustParse("100000")))

	bal := l.Balance("u1", "USD")
	assert.True(t, bal.Available.Equal(money.MustParse("900000")))
	assert.True(t, bal.Locked.Equal(money.MustParse("100000")))

	reserved, ok := l.ReservedAmount(orderID)
	require.True(t, ok)
	assert.True(t, reserved.Equal(money.MustParse("100000")))
}

func TestReserveInsufficientFunds(t *testing.T) {
	l := ledger.New()
	l.RegisterUser("u2", map[common.Asset]money.Decimal{"USD": money.MustParse("1000")})

	err := l.Reserve(uuid.New(), "u2", "USD", money.MustParse("50000"))
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
}

func TestReserveDuplicateOrderID(t *testing.T) {
	l := ledger.New()
	l.RegisterUser("u1", map[common.Asset]money.Decimal{"USD": money.MustParse("1000")})
	orderID := uuid.New()
	require.NoError(t, l.Reserve(orderID, "u1", "USD", money.MustParse("100")))
	err := l.Reserve(orderID, "u1", "USD", money.MustParse("100"))
	assert.ErrorIs(t, err, ledger.ErrDuplicateReserve)
}

func TestReleaseReversesReservation(t *testing.T) {
	l := ledger.New()
	l.RegisterUser("u1", map[common.Asset]money.Decimal{"BTC": money.MustParse("10")})
	orderID := uuid.New()
	require.NoError(t, l.Reserve(orderID, "u1", "BTC", money.MustParse("2")))

	require.NoError(t, l.Release(orderID))
	bal := l.Balance("u1", "BTC")
	assert.True(t, bal.Available.Equal(money.MustParse("10")))
	assert.True(t, bal.Locked.IsZero())

	err := l.Release(orderID)
	assert.ErrorIs(t, err, ledger.ErrUnknownReservation)
}

// S1 — full match settlement.
func TestSettleFullMatch(t *testing.T) {
	l := ledger.New()
	l.RegisterUser("u1", map[common.Asset]money.Decimal{"BTC": money.MustParse("10")})
	l.RegisterUser("u2", map[common.Asset]money.Decimal{"USD": money.MustParse("1000000")})

	pair := common.TradingPair{Base: "BTC", Quote: "USD"}
	sellOrder := uuid.New()
	buyOrder := uuid.New()
	require.NoError(t, l.Reserve(sellOrder, "u1", "BTC", money.MustParse("2")))
	require.NoError(t, l.Reserve(buyOrder, "u2", "USD", money.MustParse("100000")))

	trade := common.Trade{
		Pair:          pair,
		BuyerOrderID:  buyOrder,
		SellerOrderID: sellOrder,
		BuyerUserID:   "u2",
		SellerUserID:  "u1",
		Price:         money.MustParse("50000"),
		Quantity:      money.MustParse("2"),
	}
	require.NoError(t, l.Settle(trade))

	u1BTC := l.Balance("u1", "BTC")
	assert.True(t, u1BTC.Available.Equal(money.MustParse("8")))
	assert.True(t, u1BTC.Locked.IsZero())
	u1USD := l.Balance("u1", "USD")
	assert.True(t, u1USD.Available.Equal(money.MustParse("100000")))

	u2USD := l.Balance("u2", "USD")
	assert.True(t, u2USD.Locked.IsZero())
	u2BTC := l.Balance("u2", "BTC")
	assert.True(t, u2BTC.Available.Equal(money.MustParse("2")))
}

// S2 — partial fill keeps the residual reservation locked.
func TestSettlePartialFillKeepsResidualReservation(t *testing.T) {
	l := ledger.New()
	l.RegisterUser("u1", map[common.Asset]money.Decimal{"BTC": money.MustParse("5")})
	l.RegisterUser("u2", map[common.Asset]money.Decimal{"USD": money.MustParse("1000000")})

	pair := common.TradingPair{Base: "BTC", Quote: "USD"}
	sellOrder := uuid.New()
	buyOrder := uuid.New()
	require.NoError(t, l.Reserve(sellOrder, "u1", "BTC", money.MustParse("5")))
	require.NoError(t, l.Reserve(buyOrder, "u2", "USD", money.MustParse("150000")))

	trade := common.Trade{
		Pair: pair, BuyerOrderID: buyOrder, SellerOrderID: sellOrder,
		BuyerUserID: "u2", SellerUserID: "u1",
		Price: money.MustParse("50000"), Quantity: money.MustParse("3"),
	}
	require.NoError(t, l.Settle(trade))

	reserved, ok := l.ReservedAmount(sellOrder)
	require.True(t, ok)
	assert.True(t, reserved.Equal(money.MustParse("2")))

	u1BTC := l.Balance("u1", "BTC")
	assert.True(t, u1BTC.Locked.Equal(money.MustParse("2")))
}

func TestConservationAcrossSettle(t *testing.T) {
	l := ledger.New()
	l.RegisterUser("u1", map[common.Asset]money.Decimal{"BTC": money.MustParse("10")})
	l.RegisterUser("u2", map[common.Asset]money.Decimal{"BTC": money.MustParse("0"), "USD": money.MustParse("1000000")})

	pair := common.TradingPair{Base: "BTC", Quote: "USD"}
	sellOrder := uuid.New()
	buyOrder := uuid.New()
	require.NoError(t, l.Reserve(sellOrder, "u1", "BTC", money.MustParse("2")))
	require.NoError(t, l.Reserve(buyOrder, "u2", "USD", money.MustParse("100000")))

	totalBTCBefore := l.Balance("u1", "BTC").Total().Add(l.Balance("u2", "BTC").Total())
	totalUSDBefore := l.Balance("u1", "USD").Total().Add(l.Balance("u2", "USD").Total())

	trade := common.Trade{
		Pair: pair, BuyerOrderID: buyOrder, SellerOrderID: sellOrder,
		BuyerUserID: "u2", SellerUserID: "u1",
		Price: money.MustParse("50000"), Quantity: money.MustParse("2"),
	}
	require.NoError(t, l.Settle(trade))

	totalBTCAfter := l.Balance("u1", "BTC").Total().Add(l.Balance("u2", "BTC").Total())
	totalUSDAfter := l.Balance("u1", "USD").Total().Add(l.Balance("u2", "USD").Total())

	assert.True(t, totalBTCBefore.Equal(totalBTCAfter))
	assert.True(t, totalUSDBefore.Equal(totalUSDAfter))
}
