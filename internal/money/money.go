// Package money holds the fixed-point conventions for amounts: two decimal
// places everywhere, integer minor units only at the gateway boundary.
package money

import "github.com/shopspring/decimal"

const (
	CurrencyINR = "INR"
	scale       = 2
)

var hundred = decimal.NewFromInt(100)

// Normalize rounds to two decimal places.
func Normalize(d decimal.Decimal) decimal.Decimal {
	return d.Round(scale)
}

// ToMinorUnits converts an amount to integer paise: round(amount * 100).
func ToMinorUnits(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -scale)
}

// LineTotal is unit price times quantity, normalized.
func LineTotal(unit decimal.Decimal, qty int) decimal.Decimal {
	return Normalize(unit.Mul(decimal.NewFromInt(int64(qty))))
}
