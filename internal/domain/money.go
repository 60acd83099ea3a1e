package domain

import (
	"github.com/shopspring/decimal"
)

var centsScale = decimal.NewFromInt(100)

// CentsFromDecimal converts a currency amount to integer cents, rounding
// half up (bankers' rounding would under-charge half-cent top-ups).
func CentsFromDecimal(d decimal.Decimal) int64 {
	return d.Mul(centsScale).Round(0).IntPart()
}

// CentsToDecimal renders integer cents as a two-decimal currency amount
func CentsToDecimal(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(centsScale)
}
