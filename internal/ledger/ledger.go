// Package ledger is the balance reservation/settlement protocol (spec.md
// §4.4). Like book.OrderBook, a Ledger carries no synchronization of its
// own: it is mutated exclusively by the engine loop.
package ledger

import (
	"errors"

	"clobcore/internal/common"
	"clobcore/internal/money"

	"github.com/google/uuid"
)

var (
	ErrInsufficientFunds  = errors.New("ledger: insufficient funds")
	ErrDuplicateReserve   = errors.New("ledger: duplicate reservation")
	ErrUnknownReservation = errors.New("ledger: unknown reservation")
	ErrInvariantViolation = errors.New("ledger: invariant violation")
)

// UserBalance is one user's holding of one asset, split between what is
// free to spend and what is reserved against open orders.
type UserBalance struct {
	Available money.Decimal
	Locked    money.Decimal
}

// Total is available+locked, the conserved quantity under settlement.
func (b UserBalance) Total() money.Decimal { return b.Available.Add(b.Locked) }

type reservation struct {
	UserID string
	Asset  common.Asset
	Amount money.Decimal
}

// Ledger tracks every user's per-asset balances and the open reservation
// backing each order currently holding funds.
type Ledger struct {
	balances     map[string]map[common.Asset]*UserBalance
	reservations map[uuid.UUID]reservation
}

func New() *Ledger {
	return &Ledger{
		balances:     make(map[string]map[common.Asset]*UserBalance),
		reservations: make(map[uuid.UUID]reservation),
	}
}

// RegisterUser is idempotent: a second call for an existing user adds to
// their existing available balance rather than overwriting it.
func (l *Ledger) RegisterUser(userID string, initial map[common.Asset]money.Decimal) {
	for asset, amount := range initial {
		bal := l.account(userID, asset)
		bal.Available = bal.Available.Add(amount)
	}
}

func (l *Ledger) account(userID string, asset common.Asset) *UserBalance {
	assets, ok := l.balances[userID]
	if !ok {
		assets = make(map[common.Asset]*UserBalance)
		l.balances[userID] = assets
	}
	bal, ok := assets[asset]
	if !ok {
		bal = &UserBalance{Available: money.Zero(), Locked: money.Zero()}
		assets[asset] = bal
	}
	return bal
}

// Balance returns a snapshot of userID's holding of asset. Unknown
// users/assets read as a zero balance.
func (l *Ledger) Balance(userID string, asset common.Asset) UserBalance {
	assets, ok := l.balances[userID]
	if !ok {
		return UserBalance{Available: money.Zero(), Locked: money.Zero()}
	}
	bal, ok := assets[asset]
	if !ok {
		return UserBalance{Available: money.Zero(), Locked: money.Zero()}
	}
	return *bal
}

// AllBalances returns every asset held by userID, for InspectBalance. A
// user the ledger has never seen gets an empty map.
func (l *Ledger) AllBalances(userID string) map[common.Asset]UserBalance {
	out := make(map[common.Asset]UserBalance)
	for asset, bal := range l.balances[userID] {
		out[asset] = *bal
	}
	return out
}

// CanReserve reports whether userID has at least amount of asset free.
func (l *Ledger) CanReserve(userID string, asset common.Asset, amount money.Decimal) bool {
	return l.Balance(userID, asset).Available.GreaterThanOrEqual(amount)
}

// Reserve moves amount of asset from available to locked for userID and
// records it under orderID, so it can later be released or settled.
// Precondition: CanReserve(userID, asset, amount).
func (l *Ledger) Reserve(orderID uuid.UUID, userID string, asset common.Asset, amount money.Decimal) error {
	if _, exists := l.reservations[orderID]; exists {
		return ErrDuplicateReserve
	}
	if !l.CanReserve(userID, asset, amount) {
		return ErrInsufficientFunds
	}
	bal := l.account(userID, asset)
	bal.Available = bal.Available.Sub(amount)
	bal.Locked = bal.Locked.Add(amount)
	l.reservations[orderID] = reservation{UserID: userID, Asset: asset, Amount: amount}
	return nil
}

// Release reverses the entire remaining reservation for orderID, moving
// it back from locked to available. Used on cancel, and to discard an
// unreserved market-order residual.
func (l *Ledger) Release(orderID uuid.UUID) error {
	res, ok := l.reservations[orderID]
	if !ok {
		return ErrUnknownReservation
	}
	return l.releaseAmount(orderID, res, res.Amount)
}

// ReleasePartial refunds only part of orderID's reservation, moving
// amount from locked back to available. amount is clamped to what
// remains reserved.
func (l *Ledger) ReleasePartial(orderID uuid.UUID, amount money.Decimal) error {
	res, ok := l.reservations[orderID]
	if !ok {
		return ErrUnknownReservation
	}
	if amount.GreaterThan(res.Amount) {
		amount = res.Amount
	}
	return l.releaseAmount(orderID, res, amount)
}

func (l *Ledger) releaseAmount(orderID uuid.UUID, res reservation, amount money.Decimal) error {
	bal := l.account(res.UserID, res.Asset)
	bal.Locked = bal.Locked.Sub(amount)
	bal.Available = bal.Available.Add(amount)
	remaining := res.Amount.Sub(amount)
	if money.IsPositive(remaining) {
		res.Amount = remaining
		l.reservations[orderID] = res
	} else {
		delete(l.reservations, orderID)
	}
	return nil
}

// ReservedAmount reports the remaining reservation held for orderID, for
// invariant checks (sum(reservations) == locked) and refund math.
func (l *Ledger) ReservedAmount(orderID uuid.UUID) (money.Decimal, bool) {
	res, ok := l.reservations[orderID]
	if !ok {
		return money.Zero(), false
	}
	return res.Amount, true
}

// Settle applies one trade: qty of base moves from the seller's locked
// balance to the buyer's available balance, and qty*price of quote moves
// from the buyer's locked balance to the seller's available balance. Both
// reservations shrink by exactly the settled portion (spec.md §4.4,
// "partial fills").
func (l *Ledger) Settle(trade common.Trade) error {
	quoteAmount := trade.Price.Mul(trade.Quantity)

	if err := l.moveLockedToAvailable(trade.SellerUserID, trade.BuyerUserID, trade.Pair.Base, trade.Quantity); err != nil {
		return err
	}
	if err := l.reduceReservation(trade.SellerOrderID, trade.Quantity); err != nil {
		return err
	}

	if err := l.moveLockedToAvailable(trade.BuyerUserID, trade.SellerUserID, trade.Pair.Quote, quoteAmount); err != nil {
		return err
	}
	if err := l.reduceReservation(trade.BuyerOrderID, quoteAmount); err != nil {
		return err
	}
	return nil
}

func (l *Ledger) moveLockedToAvailable(fromUser, toUser string, asset common.Asset, amount money.Decimal) error {
	from := l.account(fromUser, asset)
	if from.Locked.LessThan(amount) {
		return ErrInvariantViolation
	}
	from.Locked = from.Locked.Sub(amount)
	to := l.account(toUser, asset)
	to.Available = to.Available.Add(amount)
	return nil
}

func (l *Ledger) reduceReservation(orderID uuid.UUID, amount money.Decimal) error {
	res, ok := l.reservations[orderID]
	if !ok {
		// Residual of an order that was never reserved under this id
		// (e.g. the maker side of a self-trade variant) is not an
		// error here; settlement can proceed without a reservation to
		// shrink.
		return nil
	}
	res.Amount = res.Amount.Sub(amount)
	if money.IsPositive(res.Amount) {
		l.reservations[orderID] = res
	} else {
		delete(l.reservations, orderID)
	}
	return nil
}
