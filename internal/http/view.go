package http

import (
	"hash/fnv"
	"strconv"
	"time"

	"finboard/internal/core"
	"finboard/internal/dashboard"
	"finboard/internal/report"
)

type (
	timeFrameOption struct {
		Key, Label string
		Selected   bool
	}

	// filterChip is one removable active-filter badge.
	filterChip struct {
		Label string
		Which string // "category" or "amount"
	}

	categoryRow struct {
		Name, Amount, Share, Color string
	}

	transactionRow struct {
		ID, Name, Date, Time, Account, Category, Amount string
	}

	panelData struct {
		Phase          string
		Syncing        bool
		Stale          bool
		Err            string
		Notice         string
		TimeFrames     []timeFrameOption
		TimeFrameLabel string
		ActiveFilters  int
		Chips          []filterChip
		DrawerOpen     bool
		Categories     []string
		CategoryInput  string
		MinInput       string
		MaxInput       string
		SliderMax      string
		Total          string
		Breakdown      []categoryRow
		Rows           []transactionRow
		WindowedCount  int
		ChartVersion   string
		CanExport      bool
	}
)

func timeFrameOptions(selected core.TimeFrame) []timeFrameOption {
	tfs := core.TimeFrames()
	out := make([]timeFrameOption, len(tfs))
	for i, tf := range tfs {
		out[i] = timeFrameOption{Key: tf.String(), Label: tf.Label(), Selected: tf == selected}
	}
	return out
}

// amountChipLabel renders "Amount: $10 - Any" style labels. An unset lower
// bound shows as $0.
func amountChipLabel(minInput, maxInput string) string {
	lo, hi := "$0", "Any"
	if minInput != "" {
		lo = "$" + minInput
	}
	if maxInput != "" {
		hi = "$" + maxInput
	}
	return "Amount: " + lo + " - " + hi
}

func filterChips(c core.FilterCriteria) []filterChip {
	category, minIn, maxIn := c.Input()
	var chips []filterChip
	if category != "" {
		chips = append(chips, filterChip{Label: "Category: " + category, Which: "category"})
	}
	if c.HasAmountRange() {
		chips = append(chips, filterChip{Label: amountChipLabel(minIn, maxIn), Which: "amount"})
	}
	return chips
}

func buildPanel(s dashboard.State, view core.ViewModel, loc *time.Location) panelData {
	category, minIn, maxIn := s.Criteria.Input()
	p := panelData{
		Phase:          s.Phase.String(),
		Syncing:        s.Syncing,
		Stale:          s.Stale,
		Err:            s.Err,
		TimeFrames:     timeFrameOptions(s.TimeFrame),
		TimeFrameLabel: s.TimeFrame.Label(),
		ActiveFilters:  view.ActiveFilters,
		Chips:          filterChips(s.Criteria),
		DrawerOpen:     s.DrawerOpen,
		Categories:     view.Categories,
		CategoryInput:  category,
		MinInput:       minIn,
		MaxInput:       maxIn,
		SliderMax:      view.MaxAmount.Ceil().String(),
		Total:          core.FormatCurrency(view.Summary.TotalExpenses),
		WindowedCount:  view.WindowedCount,
		ChartVersion:   chartVersion(view.Summary),
	}
	for i, c := range view.Summary.CategoryTotals {
		p.Breakdown = append(p.Breakdown, categoryRow{
			Name:   c.Name,
			Amount: core.FormatCurrency(c.Amount),
			Share:  view.Summary.Share(c.Name).StringFixed(1),
			Color:  report.SliceColor(i),
		})
	}
	for _, t := range view.Transactions {
		p.Rows = append(p.Rows, transactionRow{
			ID:       t.ID,
			Name:     t.DisplayName(),
			Date:     report.FormatDate(t, loc),
			Time:     report.FormatTime(t, loc),
			Account:  report.AccountLine(t),
			Category: t.Category,
			Amount:   core.FormatCurrency(t.Amount),
		})
	}
	return p
}

// chartVersion changes whenever the summary does, so the chart image URL
// changes with it.
func chartVersion(sum core.Summary) string {
	h := fnv.New64a()
	for _, c := range sum.CategoryTotals {
		_, _ = h.Write([]byte(c.Name))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(c.Amount.String()))
		_, _ = h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 36)
}
