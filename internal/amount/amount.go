// Package amount converts between human token amounts such as "12.5" and the
// integer base units the ledger stores. Tokens use six decimal places.
package amount

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits of a base unit.
const Decimals = 6

var (
	ErrInvalid   = errors.New("invalid amount")
	ErrPrecision = errors.New("amount has more than 6 decimal places")
	ErrRange     = errors.New("amount out of range")
)

var maxUnits = decimal.NewFromUint64(math.MaxUint64)

// Parse converts a decimal string into base units. Negative values, values
// with excess precision and values above MaxUint64 units are rejected.
func Parse(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalid
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalid, s)
	}
	units := d.Shift(Decimals)
	if !units.Equal(units.Truncate(0)) {
		return 0, ErrPrecision
	}
	if units.GreaterThan(maxUnits) {
		return 0, ErrRange
	}
	return units.BigInt().Uint64(), nil
}

// ParseUnits parses a whole number of base units. A trailing "u" is allowed,
// as in "500u".
func ParseUnits(s string) (uint64, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "u")
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	if d.GreaterThan(maxUnits) {
		return 0, ErrRange
	}
	return d.BigInt().Uint64(), nil
}

// Format renders base units as a decimal string without trailing zeros,
// e.g. 12500000 -> "12.5".
func Format(units uint64) string {
	return decimal.NewFromUint64(units).Shift(-Decimals).String()
}

// FormatFixed renders base units with all six decimals, e.g. "12.500000".
func FormatFixed(units uint64) string {
	return decimal.NewFromUint64(units).Shift(-Decimals).StringFixed(Decimals)
}

// Percent returns part/whole as a percentage rounded to two places.
func Percent(part, whole uint64) string {
	if whole == 0 {
		return "0"
	}
	p := decimal.NewFromUint64(part).Mul(decimal.NewFromInt(100))
	return p.Div(decimal.NewFromUint64(whole)).Round(2).String()
}
