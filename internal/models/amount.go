package models

import "github.com/shopspring/decimal"

// AmountScale is the number of decimal places every amount and balance is kept at.
const AmountScale = 2

// HasValidScale reports whether d carries at most AmountScale significant decimals.
// 1.50 and 1.5 are valid, 1.505 is not.
func HasValidScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(AmountScale))
}

// Normalize fixes d to AmountScale decimal places.
func Normalize(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}
