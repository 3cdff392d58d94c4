package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// HasPrecision reports whether d has at most places fractional digits.
func HasPrecision(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

// TakerFee returns the fee charged on a notional value, truncated to the
// quote precision. Truncation keeps the fee at or below the exact amount
// a reservation was sized for.
func TakerFee(notional, rate decimal.Decimal, places int32) decimal.Decimal {
	return notional.Mul(rate).RoundDown(places)
}

// BuyReservation is the quote locked for a limit buy: price × amount × (1 + rate).
func BuyReservation(price, amount, rate decimal.Decimal) decimal.Decimal {
	return price.Mul(amount).Mul(decimal.NewFromInt(1).Add(rate))
}

// ParseDecimal parses a decimal string, rejecting exponents and empty input.
func ParseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, &ValidationError{Message: "empty decimal value"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil || strings.ContainsAny(s, "eE") {
		return decimal.Zero, &ValidationError{Message: "invalid decimal value: " + s}
	}
	return d, nil
}
