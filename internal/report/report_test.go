package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/storage"
)

func tx(id, amount, category string, ts time.Time) core.Transaction {
	return core.Transaction{
		ID:          id,
		Amount:      decimal.RequireFromString(amount),
		Description: "desc " + id,
		Timestamp:   ts,
		Category:    category,
		Account:     core.Account{Name: "Checking", AccountType: "depository", Institution: "Chase"},
	}
}

func TestFormatDateTime(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	dateOnly := tx("1", "1", "FOOD", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	if got := FormatDateTime(dateOnly, ny); got != "Tue, Mar 5, 2024" {
		t.Errorf("date-only = %q", got)
	}

	timed := tx("2", "1", "FOOD", time.Date(2024, 3, 5, 18, 30, 0, 0, time.UTC))
	if got := FormatDateTime(timed, ny); got != "Tue, Mar 5, 2024 01:30 PM" {
		t.Errorf("timed = %q", got)
	}
	if got := FormatTime(dateOnly, ny); got != "" {
		t.Errorf("FormatTime(date-only) = %q", got)
	}
}

func TestAccountLine(t *testing.T) {
	tr := tx("1", "1", "TRAVEL", time.Now())
	if got := AccountLine(tr); got != "Chase • Checking • TRAVEL" {
		t.Errorf("got %q", got)
	}
	tr.Account.Institution = "Unknown"
	if got := AccountLine(tr); got != "Checking • TRAVEL" {
		t.Errorf("unknown institution: got %q", got)
	}
}

func TestCategoryLabel(t *testing.T) {
	tests := map[string]string{
		"FOOD_AND_DRINK": "Food And Drink",
		"UNCATEGORIZED":  "Uncategorized",
		"travel":         "Travel",
		"":               "",
	}
	for in, want := range tests {
		if got := CategoryLabel(in); got != want {
			t.Errorf("CategoryLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSliceColorCycles(t *testing.T) {
	if SliceColor(0) != "#0088FE" || SliceColor(len(Palette)) != "#0088FE" {
		t.Errorf("palette does not cycle: %s %s", SliceColor(0), SliceColor(len(Palette)))
	}
}

func TestWriteTable(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	raw := []core.Transaction{
		tx("a", "12.50", "FOOD", now.Add(-time.Hour)),
		tx("b", "7.50", "TRAVEL", now.Add(-2*time.Hour)),
	}
	view := core.DeriveView(raw, core.Month, core.FilterCriteria{}, now)

	var buf bytes.Buffer
	WriteTable(&buf, view, time.UTC)
	out := buf.String()

	for _, want := range []string{"desc a", "desc b", "$12.50", "$20.00", "Food", "62.5%", "2 of 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "desc a") > strings.Index(out, "desc b") {
		t.Error("expected newest transaction first")
	}
}

func TestWritePieSVG(t *testing.T) {
	s := core.Summarize([]core.Transaction{
		tx("a", "30", "FOOD", time.Now()),
		tx("b", "10", "TRAVEL", time.Now()),
	})
	var buf bytes.Buffer
	if err := WritePieSVG(&buf, s, 300); err != nil {
		t.Fatalf("WritePieSVG: %v", err)
	}
	if !strings.Contains(buf.String(), "<svg") {
		t.Errorf("expected svg output, got %q", buf.String())
	}
	if strings.Contains(buf.String(), "No expenses") {
		t.Error("non-empty summary rendered the placeholder")
	}
}

func TestWritePieSVGPlaceholder(t *testing.T) {
	for name, s := range map[string]core.Summary{
		"empty": core.Summarize(nil),
		"zero":  core.Summarize([]core.Transaction{tx("a", "0", "FOOD", time.Now())}),
	} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WritePieSVG(&buf, s, 200); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(buf.String(), "No expenses") {
				t.Errorf("expected placeholder, got %q", buf.String())
			}
		})
	}
}

func TestWriteRunsTable(t *testing.T) {
	start := time.Date(2024, 6, 15, 6, 0, 0, 0, time.UTC)
	runs := []storage.RefreshRun{
		{
			Trigger:          "schedule",
			StartedAt:        start,
			FinishedAt:       start.Add(1500 * time.Millisecond),
			Status:           storage.RunSucceeded,
			TransactionCount: 3,
			TotalAmount:      decimal.RequireFromString("142.5"),
		},
		{
			Trigger:      "cli",
			StartedAt:    start.Add(-time.Hour),
			FinishedAt:   start.Add(-time.Hour),
			Status:       storage.RunFailed,
			TotalAmount:  decimal.Zero,
			ErrorMessage: "backend unavailable",
		},
	}
	var buf bytes.Buffer
	WriteRunsTable(&buf, runs, time.UTC)
	out := buf.String()
	for _, want := range []string{"2024-06-15 06:00:00", "succeeded", "$142.50", "1.5s", "failed", "backend unavailable"} {
		if !strings.Contains(out, want) {
			t.Errorf("runs table missing %q:\n%s", want, out)
		}
	}
}
