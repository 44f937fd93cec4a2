// Package money holds the cent rounding and amount limits shared by cart and
// order totals.
//
// Amounts are float64 and rounded with math.Round(x*100)/100, which rounds
// half away from zero on the scaled value. The float64 representation error
// is part of the contract: 1.005 rounds to 1 because 1.005*100 is
// 100.49999999999999.
package money

import "math"

// Limits of what an order row can hold: quantities are INT and amounts are
// NUMERIC(10, 2).
const (
	MaxQuantity = math.MaxInt32
	MaxAmount   = 99_999_999.99
)

// Round2 rounds x to two decimal places.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// LineTotal returns quantity × unitPrice rounded to two decimal places.
func LineTotal(quantity int, unitPrice float64) float64 {
	return Round2(float64(quantity) * unitPrice)
}

// Sum adds the given amounts and rounds the result to two decimal places.
func Sum(amounts ...float64) float64 {
	var total float64
	for _, a := range amounts {
		total += a
	}
	return Round2(total)
}

// ValidAmount reports whether x is within [0, MaxAmount]. NaN and infinities
// are rejected.
func ValidAmount(x float64) bool {
	return x >= 0 && x <= MaxAmount
}

// ValidQuantity reports whether q is within [1, MaxQuantity].
func ValidQuantity(q int) bool {
	return q >= 1 && q <= MaxQuantity
}
