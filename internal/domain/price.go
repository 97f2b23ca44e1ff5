package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Price is the number of units of To per one unit of From. Always strictly positive.
type Price = decimal.Decimal

// ReversePrecision is the number of fractional digits kept when inverting a rate.
const ReversePrecision = 8

var one = decimal.NewFromInt(1)

func ValidatePrice(p Price) error {
	if !p.IsPositive() {
		return fmt.Errorf("%w: %s", ErrNonPositivePrice, p.String())
	}
	return nil
}

// Invert returns 1/p rounded half-up to ReversePrecision digits.
func Invert(p Price) (Price, error) {
	if err := ValidatePrice(p); err != nil {
		return decimal.Zero, err
	}
	return one.DivRound(p, ReversePrecision), nil
}

// PriceFromFloat converts an upstream float, rejecting NaN, infinities and non-positive values.
func PriceFromFloat(f float64) (Price, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, false
	}
	p := decimal.NewFromFloat(f)
	if !p.IsPositive() {
		return decimal.Zero, false
	}
	return p, true
}
