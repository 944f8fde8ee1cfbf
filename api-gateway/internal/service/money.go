package service

import "github.com/shopspring/decimal"

// Amounts outside these bounds are rejected before any comparison, since
// comparing decimals rescales both sides to a shared exponent.
const (
	minAmountExponent = -8
	maxAmountExponent = 12
	maxAmountDigits   = 20
)

// ValidAmount reports whether d is a positive money amount the engine can
// compare and store
func ValidAmount(d decimal.Decimal) bool {
	if !d.IsPositive() {
		return false
	}
	exp := d.Exponent()
	if exp < minAmountExponent || exp > maxAmountExponent {
		return false
	}
	return d.NumDigits() <= maxAmountDigits
}
