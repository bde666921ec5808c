package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	s := Summarize(sample())
	assert.True(t, s.TotalExpenses.Equal(dec("100")))
	assert.Len(t, s.Totals(), 2)
	assert.True(t, s.Totals()["food"].Equal(dec("80")))
	assert.True(t, s.Totals()["transport"].Equal(dec("20")))
	assert.Equal(t, "food", s.CategoryTotals[0].Name, "first occurrence order")

	filtered := Summarize(ApplyCriteria(sample(), CriteriaFromInput("food", "", "")))
	assert.True(t, filtered.TotalExpenses.Equal(dec("80")))
	assert.Equal(t, []string{"food"}, []string{filtered.CategoryTotals[0].Name})
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.True(t, s.TotalExpenses.IsZero())
	assert.Empty(t, s.CategoryTotals)
	assert.True(t, s.Share("food").IsZero())
}

func TestSummaryTotalsAddUp(t *testing.T) {
	txs := []Transaction{
		tx("1", "0.10", "a", ts), tx("2", "0.20", "b", ts), tx("3", "19.99", "a", ts),
		tx("4", "1000", "c", ts), tx("5", "0", "b", ts), tx("6", "3.333", "c", ts),
	}
	s := Summarize(txs)
	sum := decimal.Zero
	for _, c := range s.CategoryTotals {
		sum = sum.Add(c.Amount)
	}
	assert.True(t, sum.Equal(s.TotalExpenses), "sum %s != total %s", sum, s.TotalExpenses)
}

func TestSummaryShare(t *testing.T) {
	s := Summarize(sample())
	assert.Equal(t, "80.0", s.Share("food").StringFixed(1))
	assert.Equal(t, "20.0", s.Share("transport").StringFixed(1))
	assert.True(t, s.Share("rent").IsZero())
}

func TestSortByTimestampDescIsStable(t *testing.T) {
	t1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)
	t3 := t2.Add(24 * time.Hour)
	in := []Transaction{
		tx("a", "1", "x", t1), tx("b", "1", "x", t3), tx("c", "1", "x", t2),
		tx("d", "1", "x", t3), tx("e", "1", "x", t1),
	}
	got := SortByTimestampDesc(in)
	assert.Equal(t, []string{"b", "d", "c", "a", "e"}, ids(got))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids(in), "input untouched")
}

func TestCategoriesAndMaxAmount(t *testing.T) {
	txs := []Transaction{tx("1", "5", "travel", ts), tx("2", "70.5", "food", ts), tx("3", "3", "travel", ts)}
	assert.Equal(t, []string{"food", "travel"}, Categories(txs))
	assert.True(t, MaxAmount(txs).Equal(dec("70.5")))
	assert.True(t, MaxAmount(nil).IsZero())
}
