// Package currency converts between local decimal amounts and the smallest
// currency unit the processor expects.
package currency

import (
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimal lists currencies without a minor unit; their amounts are sent
// to the processor unscaled.
var zeroDecimal = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {},
	"KRW": {}, "MGA": {}, "PYG": {}, "RWF": {}, "UGX": {}, "VND": {},
	"VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

var hundred = decimal.NewFromInt(100)

// IsZeroDecimal reports whether code has no minor unit.
func IsZeroDecimal(code string) bool {
	_, ok := zeroDecimal[strings.ToUpper(code)]
	return ok
}

// ToMinorUnits converts amount to the smallest unit of code, rounding half
// away from zero.
func ToMinorUnits(amount decimal.Decimal, code string) int64 {
	if IsZeroDecimal(code) {
		return amount.Round(0).IntPart()
	}
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts an amount in the smallest unit of code back to a
// decimal amount.
func FromMinorUnits(amount int64, code string) decimal.Decimal {
	if IsZeroDecimal(code) {
		return decimal.NewFromInt(amount)
	}
	return decimal.New(amount, -2)
}

// Format renders a minor-unit amount for notes, e.g. "5.00 USD" or "500 JPY".
func Format(amount int64, code string) string {
	places := int32(2)
	if IsZeroDecimal(code) {
		places = 0
	}
	return FromMinorUnits(amount, code).StringFixed(places) + " " + strings.ToUpper(strings.TrimSpace(code))
}

// Normalize returns the processor representation of a currency code.
func Normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
