package sheets

import (
	"context"
	"time"

	"finboard/internal/core"
)

// ViewExporter writes a derived transaction view to an outbound store and
// returns a reference to what it wrote.
type ViewExporter interface {
	ExportView(ctx context.Context, title string, view core.ViewModel) (ref string, err error)
}

const timestampLayout = "2006-01-02 15:04"

// Rows lays out view as a block of cells: a header block with the summary,
// the category breakdown, then one row per transaction. Amounts are
// rendered with two decimals so the sheet does not reinterpret them.
func Rows(title string, view core.ViewModel, loc *time.Location) [][]any {
	rows := [][]any{
		{title},
		{"Time frame", view.TimeFrame.Label()},
		{"From", view.Window.Start.In(loc).Format(timestampLayout), "To", view.Window.End.In(loc).Format(timestampLayout)},
		{"Transactions", len(view.Transactions)},
		{"Total", view.Summary.TotalExpenses.StringFixed(2)},
		{},
		{"Category", "Amount", "Share %"},
	}
	for _, c := range view.Summary.CategoryTotals {
		rows = append(rows, []any{c.Name, c.Amount.StringFixed(2), view.Summary.Share(c.Name).StringFixed(1)})
	}
	rows = append(rows, []any{}, []any{"Date", "Name", "Category", "Institution", "Account", "Amount"})
	for _, t := range view.Transactions {
		rows = append(rows, []any{
			t.Timestamp.In(loc).Format(timestampLayout),
			t.DisplayName(),
			t.Category,
			t.Account.Institution,
			t.Account.Name,
			t.Amount.StringFixed(2),
		})
	}
	return rows
}
