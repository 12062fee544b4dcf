package shared

import "github.com/shopspring/decimal"

// Round2 rounds a monetary amount to 2 decimal places.
func Round2(amount float64) float64 {
	rounded, _ := decimal.NewFromFloat(amount).Round(2).Float64()
	return rounded
}

// Round4 keeps 4 fractional digits, used for intermediate unit-cost math
// before the final 2-decimal rounding.
func Round4(amount float64) float64 {
	rounded, _ := decimal.NewFromFloat(amount).Round(4).Float64()
	return rounded
}

// SameAmount compares two monetary amounts at 2-decimal precision. Raw
// float equality produces spurious differences from floating-point noise.
func SameAmount(a, b float64) bool {
	return decimal.NewFromFloat(a).Round(2).Equal(decimal.NewFromFloat(b).Round(2))
}
