// Package core holds the transaction domain model and the pure pipeline that
// turns a raw transaction list into what the dashboard shows: time window,
// category and amount filters, and the category summary.
package core

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// plainAmount is the only syntax accepted for typed amounts. Exponent
// notation is refused: "1e-5000000" would make every comparison rescale a
// multi-million digit integer.
var plainAmount = regexp.MustCompile(`^\d+(\.\d+)?$`)

// ParseAmountInput parses a user typed amount such as "25", "$1,200.50" or
// " 12.3 ". It reports false for blank or malformed input so that callers
// can treat the bound as unset.
func ParseAmountInput(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if !plainAmount.MatchString(s) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// FormatCurrency renders an amount as "$12.34".
func FormatCurrency(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}
