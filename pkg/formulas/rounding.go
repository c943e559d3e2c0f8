package formulas

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round rounds value to places decimal digits, half away from zero, on the
// shortest decimal representation of value. Non-finite values are returned
// unchanged.
func Round(value float64, places int32) float64 {
	if !IsFinite(value) {
		return value
	}
	return decimal.NewFromFloat(value).Round(places).InexactFloat64()
}

// RoundAll rounds every value in data to places decimal digits.
func RoundAll(data []float64, places int32) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = Round(v, places)
	}
	return out
}

// Percent converts a fraction to a percentage rounded to two decimals.
func Percent(fraction float64) float64 {
	return Round(fraction*100, 2)
}

// NonNegativeSqrt is math.Sqrt with the radicand clamped at zero, for
// quadratic forms that may dip below zero through rounding.
func NonNegativeSqrt(x float64) float64 {
	return math.Sqrt(math.Max(x, 0))
}
