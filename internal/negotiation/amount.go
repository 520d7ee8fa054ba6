package negotiation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for offer amounts outside the allowed band.
var ErrInvalidAmount = errors.New("invalid amount")

var minOfferRatio = decimal.RequireFromString("0.8")

// MinAmount is the lowest acceptable offer for price: price × 0.8 rounded to cents.
func MinAmount(price float64) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(minOfferRatio).Round(2)
}

// ValidateAmount checks that amount lies in [MinAmount(price), price].
// Callers pass the listing's current price.
func ValidateAmount(price, amount float64) error {
	p := decimal.NewFromFloat(price)
	if !p.IsPositive() {
		return fmt.Errorf("%w: listing has no valid price", ErrInvalidAmount)
	}
	a := decimal.NewFromFloat(amount)
	minAmount := MinAmount(price)
	if !a.IsPositive() || a.LessThan(minAmount) || a.GreaterThan(p) {
		return fmt.Errorf("%w: offers must be between %s and %s", ErrInvalidAmount, minAmount.StringFixed(2), p.StringFixed(2))
	}
	return nil
}

// FormatAmount renders amount as dollars and cents, e.g. "$85.00".
func FormatAmount(amount float64) string {
	return "$" + decimal.NewFromFloat(amount).StringFixed(2)
}

// Cents converts a decimal amount to the smallest currency unit, rounding half away from zero.
func Cents(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
}
