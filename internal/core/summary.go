package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount decimal.Decimal
}

// Summary is the total and per-category breakdown of a transaction set.
// CategoryTotals is ordered by first occurrence in the input.
type Summary struct {
	TotalExpenses  decimal.Decimal
	CategoryTotals []CategoryAmount
}

// Summarize reduces txs to a Summary.
func Summarize(txs []Transaction) Summary {
	s := Summary{TotalExpenses: decimal.Zero, CategoryTotals: []CategoryAmount{}}
	idx := make(map[string]int)
	for _, t := range txs {
		s.TotalExpenses = s.TotalExpenses.Add(t.Amount)
		i, ok := idx[t.Category]
		if !ok {
			i = len(s.CategoryTotals)
			idx[t.Category] = i
			s.CategoryTotals = append(s.CategoryTotals, CategoryAmount{Name: t.Category, Amount: decimal.Zero})
		}
		s.CategoryTotals[i].Amount = s.CategoryTotals[i].Amount.Add(t.Amount)
	}
	return s
}

// Totals returns the category totals keyed by name.
func (s Summary) Totals() map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(s.CategoryTotals))
	for _, c := range s.CategoryTotals {
		m[c.Name] = c.Amount
	}
	return m
}

// Share returns the category's percentage of the total, or zero when the
// total is zero or the category is absent.
func (s Summary) Share(category string) decimal.Decimal {
	if s.TotalExpenses.IsZero() {
		return decimal.Zero
	}
	for _, c := range s.CategoryTotals {
		if c.Name == category {
			return c.Amount.Div(s.TotalExpenses).Mul(decimal.NewFromInt(100))
		}
	}
	return decimal.Zero
}

// SortByTimestampDesc returns a copy of txs, newest first.
// Transactions with equal timestamps keep their relative order.
func SortByTimestampDesc(txs []Transaction) []Transaction {
	out := make([]Transaction, len(txs))
	copy(out, txs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Categories returns the distinct categories in txs, sorted.
func Categories(txs []Transaction) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, t := range txs {
		if _, ok := seen[t.Category]; ok {
			continue
		}
		seen[t.Category] = struct{}{}
		out = append(out, t.Category)
	}
	sort.Strings(out)
	return out
}

// MaxAmount returns the largest amount in txs, zero when empty.
func MaxAmount(txs []Transaction) decimal.Decimal {
	m := decimal.Zero
	for _, t := range txs {
		if t.Amount.GreaterThan(m) {
			m = t.Amount
		}
	}
	return m
}
