// Package money is the exact fixed-point arithmetic primitive the core
// uses for every price and quantity. It never touches binary floating
// point (spec.md §4.1, §9).
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimal is an exact, arbitrary-precision decimal. Add/Sub/Mul/Cmp are
// exact; division is deliberately not exposed here (spec.md §4.1 does not
// require it, and matching never needs to divide).
type Decimal = decimal.Decimal

// Zero is the additive identity.
func Zero() Decimal { return decimal.Zero }

// FromInt64 builds a Decimal from an integer amount.
func FromInt64(v int64) Decimal { return decimal.NewFromInt(v) }

// Parse builds a Decimal from its canonical decimal string form.
func Parse(s string) (Decimal, error) {
	return decimal.NewFromString(s)
}

// MustParse is Parse but panics on malformed input. Reserved for tests
// and startup fixtures, never for data coming from a client.
func MustParse(s string) Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("money: invalid decimal literal %q: %v", s, err))
	}
	return d
}

// Min returns the lesser of a and b.
func Min(a, b Decimal) Decimal {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// IsPositive reports whether d > 0.
func IsPositive(d Decimal) bool { return d.Sign() > 0 }

// IsZero reports whether d == 0.
func IsZero(d Decimal) bool { return d.Sign() == 0 }
