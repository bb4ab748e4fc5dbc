package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor currency units (cents). All persisted monetary
// values are non-negative; intermediate arithmetic may go negative and must
// be checked by the caller before writing back.
type Money int64

// Zero is the zero amount.
const Zero Money = 0

// FromUnits builds a Money from whole currency units (e.g. shillings).
func FromUnits(units int64) Money {
	return Money(units * 100)
}

// Decimal converts to a decimal value in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// FromDecimal converts a major-unit decimal to Money, rounding half-up to
// the nearest cent.
func FromDecimal(d decimal.Decimal) Money {
	return Money(d.Shift(2).Round(0).IntPart())
}

// IsPositive reports whether m > 0.
func (m Money) IsPositive() bool { return m > 0 }

// IsNegative reports whether m < 0.
func (m Money) IsNegative() bool { return m < 0 }

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Sub returns m - n.
func (m Money) Sub(n Money) Money { return m - n }

// Add returns m + n.
func (m Money) Add(n Money) Money { return m + n }

// MulPercent returns m × pct%, rounded to the nearest cent.
func (m Money) MulPercent(pct float64) Money {
	p := decimal.NewFromFloat(pct).Div(decimal.NewFromInt(100))
	return FromDecimal(m.Decimal().Mul(p))
}

// Validate fails when the amount is not strictly positive. Used for inputs
// such as contribution and loan amounts.
func (m Money) Validate(field string) error {
	if m <= 0 {
		return fmt.Errorf("%s must be positive, got %s", field, m)
	}
	return nil
}
