package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// ViewModel is everything the transaction view renders for one state.
type ViewModel struct {
	TimeFrame     TimeFrame
	Window        Window
	Criteria      FilterCriteria
	Transactions  []Transaction // filtered, newest first
	Categories    []string      // from the windowed set, before category/amount filtering
	Summary       Summary
	MaxAmount     decimal.Decimal // upper end of the amount slider
	ActiveFilters int
	WindowedCount int
}

// DeriveView runs the full pipeline over raw: sort, window, category list,
// criteria, summary. raw is not modified.
func DeriveView(raw []Transaction, tf TimeFrame, c FilterCriteria, now time.Time) ViewModel {
	w := ResolveWindow(tf, now)
	windowed := ApplyWindow(SortByTimestampDesc(raw), w)
	filtered := ApplyCriteria(windowed, c)
	return ViewModel{
		TimeFrame:     tf,
		Window:        w,
		Criteria:      c,
		Transactions:  filtered,
		Categories:    Categories(windowed),
		Summary:       Summarize(filtered),
		MaxAmount:     MaxAmount(windowed),
		ActiveFilters: c.ActiveCount(),
		WindowedCount: len(windowed),
	}
}
