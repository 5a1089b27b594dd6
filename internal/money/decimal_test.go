package money_test

import (
	"testing"

	"clobcore/internal/money"

	"github.com/stretchr/testify/assert"
)

func TestParseAndArithmetic(t *testing.T) {
	a := money.MustParse("50000.00")
	b := money.MustParse("2")

	product := a.Mul(b)
	assert.Equal(t, "100000", product.String())

	sum := a.Add(b)
	assert.Equal(t, "50002", sum.String())

	diff := a.Sub(b)
	assert.Equal(t, "49998", diff.String())
}

func TestMin(t *testing.T) {
	a := money.MustParse("3.5")
	b := money.MustParse("2.25")
	assert.True(t, money.Min(a, b).Equal(b))
	assert.True(t, money.Min(b, a).Equal(b))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := money.Parse("not-a-number")
	assert.Error(t, err)
}

func TestIsPositiveAndIsZero(t *testing.T) {
	assert.True(t, money.IsPositive(money.MustParse("0.0001")))
	assert.False(t, money.IsPositive(money.Zero()))
	assert.True(t, money.IsZero(money.Zero()))
	assert.False(t, money.IsZero(money.MustParse("1")))
}
