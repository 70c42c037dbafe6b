// Package money converts between integer cents and display amounts. All stored
// and computed totals are integer cents; decimal is only used for percentages
// and formatting.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is the single currency the storefront trades in.
const Currency = "EUR"

const currencySymbol = "€"

// FromCents converts cents into a decimal amount in currency units.
func FromCents(cents int) decimal.Decimal {
	return decimal.NewFromInt(int64(cents)).Shift(-2)
}

// ToCents rounds a currency amount to the nearest cent.
func ToCents(amount decimal.Decimal) int {
	return int(amount.Shift(2).Round(0).IntPart())
}

// PercentOf returns percent% of cents, rounded half away from zero.
func PercentOf(cents, percent int) int {
	if cents == 0 || percent == 0 {
		return 0
	}
	d := decimal.NewFromInt(int64(cents)).
		Mul(decimal.NewFromInt(int64(percent))).
		Div(decimal.NewFromInt(100)).
		Round(0)
	return int(d.IntPart())
}

// Format renders cents as a euro amount with two decimals, e.g. "€10.00".
func Format(cents int) string {
	return currencySymbol + FromCents(cents).StringFixed(2)
}

// Parse reads a plain decimal amount such as "10" or "10.50" into cents.
// More than two fractional digits is rejected rather than rounded.
func Parse(value string) (int, error) {
	value = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), currencySymbol))
	if value == "" {
		return 0, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		return 0, fmt.Errorf("invalid amount %q: more than two decimals", value)
	}
	return ToCents(d), nil
}
