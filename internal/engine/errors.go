package engine

import (
	"errors"
	"fmt"
)

// Recoverable command-rejection errors. These never abort the loop; they
// are surfaced to the caller via Response.Error (spec.md §7).
var (
	ErrUnknownMarket            = errors.New("engine: unknown market")
	ErrNonPositiveQuantity      = errors.New("engine: quantity must be positive")
	ErrMissingPrice             = errors.New("engine: limit order requires a price")
	ErrInsufficientFunds        = errors.New("engine: insufficient funds")
	ErrDuplicateReservation     = errors.New("engine: duplicate reservation")
	ErrUnknownReservation       = errors.New("engine: unknown reservation")
	ErrUnknownOrder             = errors.New("engine: unknown order")
	ErrMarketBidRequiresMaxQuote = errors.New("engine: market bid requires max_quote")
)

// InvariantError marks a crash-fast, programmer-invariant violation
// (spec.md §7): a crossed book, a negative balance, a double-filled
// order. It is only ever panicked, never returned.
type InvariantError struct {
	msg string
}

func (e *InvariantError) Error() string { return e.msg }

// invariantViolation panics with a diagnostic. Programmer invariant
// violations are fatal per spec.md §7; they are never returned as a
// recoverable error, and nothing recovers the panic, so it terminates
// the process with the diagnostic.
func invariantViolation(format string, args ...any) {
	panic(&InvariantError{msg: fmt.Sprintf(format, args...)})
}
