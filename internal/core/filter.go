package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FilterCriteria narrows a transaction list. A nil field is "no constraint".
type FilterCriteria struct {
	Category  *string
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
}

// CriteriaFromInput builds criteria from the three free-text form fields.
// Blank or unparsable values leave the matching field unset.
func CriteriaFromInput(category, minAmount, maxAmount string) FilterCriteria {
	var c FilterCriteria
	if s := strings.TrimSpace(category); s != "" {
		c.Category = &s
	}
	if d, ok := ParseAmountInput(minAmount); ok {
		c.MinAmount = &d
	}
	if d, ok := ParseAmountInput(maxAmount); ok {
		c.MaxAmount = &d
	}
	return c
}

// Input converts the criteria back into form field values.
func (c FilterCriteria) Input() (category, minAmount, maxAmount string) {
	if c.Category != nil {
		category = *c.Category
	}
	if c.MinAmount != nil {
		minAmount = c.MinAmount.String()
	}
	if c.MaxAmount != nil {
		maxAmount = c.MaxAmount.String()
	}
	return category, minAmount, maxAmount
}

// IsEmpty reports whether no field is set.
func (c FilterCriteria) IsEmpty() bool { return c.ActiveCount() == 0 }

// ActiveCount is the number of set fields.
func (c FilterCriteria) ActiveCount() int {
	n := 0
	if c.Category != nil {
		n++
	}
	if c.MinAmount != nil {
		n++
	}
	if c.MaxAmount != nil {
		n++
	}
	return n
}

// HasAmountRange reports whether either amount bound is set.
func (c FilterCriteria) HasAmountRange() bool {
	return c.MinAmount != nil || c.MaxAmount != nil
}

// ApplyWindow keeps transactions whose timestamp lies inside w.
func ApplyWindow(txs []Transaction, w Window) []Transaction {
	return keep(txs, func(t Transaction) bool { return w.Contains(t.Timestamp) })
}

// ApplyCriteria runs the category stage and then the amount stage.
// With neither amount bound set the amount stage passes everything through;
// otherwise an unset minimum is 0 and an unset maximum is unbounded.
func ApplyCriteria(txs []Transaction, c FilterCriteria) []Transaction {
	out := txs
	if c.Category != nil && *c.Category != "" {
		cat := *c.Category
		out = keep(out, func(t Transaction) bool { return t.Category == cat })
	}
	if c.HasAmountRange() {
		lo := decimal.Zero
		if c.MinAmount != nil {
			lo = *c.MinAmount
		}
		hi := c.MaxAmount
		out = keep(out, func(t Transaction) bool {
			if t.Amount.LessThan(lo) {
				return false
			}
			return hi == nil || !t.Amount.GreaterThan(*hi)
		})
	}
	return out
}

// Filter applies the window, then the criteria.
func Filter(txs []Transaction, w Window, c FilterCriteria) []Transaction {
	return ApplyCriteria(ApplyWindow(txs, w), c)
}

func keep(txs []Transaction, pred func(Transaction) bool) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if pred(t) {
			out = append(out, t)
		}
	}
	return out
}
