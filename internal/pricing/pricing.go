// Package pricing holds the pure margin and conversion math. Intermediate
// sums carry full float64 precision; rounding to 2 decimal places happens
// only on the values handed back for serialization.
package pricing

import "math"

// Round2 rounds half away from zero to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Displayed applies a percentage margin to a base price.
func Displayed(base, marginPercent float64) float64 {
	return Round2(base * (1 + marginPercent/100))
}

// AddonTotal converts a set of USD addon prices into the booking currency at
// the given rate. Addons are not margin-adjusted.
func AddonTotal(pricesUSD []float64, rate float64) float64 {
	var sum float64
	for _, p := range pricesUSD {
		sum += p * rate
	}
	return Round2(sum)
}

// GrandTotal is the margin-adjusted base plus the converted addon total.
func GrandTotal(base, marginPercent, addonTotal float64) float64 {
	return Round2(base*(1+marginPercent/100) + addonTotal)
}
