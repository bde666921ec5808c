package report

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"finboard/internal/core"
	"finboard/internal/storage"
)

// WriteTable prints the filtered transactions followed by the category
// summary of view.
func WriteTable(w io.Writer, view core.ViewModel, loc *time.Location) {
	fmt.Fprintf(w, "%s: %s to %s, %d of %d transactions\n\n",
		view.TimeFrame.Label(),
		view.Window.Start.In(loc).Format("2006-01-02"),
		view.Window.End.In(loc).Format("2006-01-02"),
		len(view.Transactions), view.WindowedCount)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Date", "Name", "Account", "Amount"})
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT,
	})
	for _, t := range view.Transactions {
		table.Append([]string{
			FormatDateTime(t, loc),
			t.DisplayName(),
			AccountLine(t),
			core.FormatCurrency(t.Amount),
		})
	}
	table.SetFooter([]string{"", "", "Total", core.FormatCurrency(view.Summary.TotalExpenses)})
	table.Render()

	fmt.Fprintln(w)
	WriteSummaryTable(w, view.Summary)
}

// WriteSummaryTable prints one row per category in first-occurrence order.
func WriteSummaryTable(w io.Writer, s core.Summary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Category", "Amount", "Share"})
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
	})
	for _, c := range s.CategoryTotals {
		table.Append([]string{
			CategoryLabel(c.Name),
			core.FormatCurrency(c.Amount),
			s.Share(c.Name).StringFixed(1) + "%",
		})
	}
	table.Render()
}

// WriteAccountsTable prints the linked accounts.
func WriteAccountsTable(w io.Writer, accounts []core.Account) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Institution", "Account", "Type"})
	for _, a := range accounts {
		table.Append([]string{a.Institution, a.Name, a.AccountType})
	}
	table.Render()
}

// WriteRunsTable prints recorded refresh runs, newest first as given.
func WriteRunsTable(w io.Writer, runs []storage.RefreshRun, loc *time.Location) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Started", "Trigger", "Status", "Transactions", "Total", "Duration", "Error"})
	table.SetAutoWrapText(false)
	for _, r := range runs {
		table.Append([]string{
			r.StartedAt.In(loc).Format("2006-01-02 15:04:05"),
			r.Trigger,
			string(r.Status),
			fmt.Sprint(r.TransactionCount),
			core.FormatCurrency(r.TotalAmount),
			r.Duration().Round(time.Millisecond).String(),
			r.ErrorMessage,
		})
	}
	table.Render()
}
