// Package report renders a derived transaction view as text tables and
// charts for the CLI and the web front end.
package report

import (
	"strings"
	"time"

	"finboard/internal/core"
)

const (
	dateLayout = "Mon, Jan 2, 2006"
	timeLayout = "03:04 PM"

	unknownInstitution = "Unknown"
)

// FormatDate renders the posting date. Date-only postings are midnight UTC
// and are printed in UTC so they never shift to the previous day.
func FormatDate(t core.Transaction, loc *time.Location) string {
	if t.IsDateOnly() {
		return t.Timestamp.UTC().Format(dateLayout)
	}
	return t.Timestamp.In(loc).Format(dateLayout)
}

// FormatTime renders the time of day, or "" for date-only postings.
func FormatTime(t core.Transaction, loc *time.Location) string {
	if t.IsDateOnly() {
		return ""
	}
	return t.Timestamp.In(loc).Format(timeLayout)
}

// FormatDateTime joins FormatDate and FormatTime.
func FormatDateTime(t core.Transaction, loc *time.Location) string {
	d := FormatDate(t, loc)
	if tm := FormatTime(t, loc); tm != "" {
		return d + " " + tm
	}
	return d
}

// AccountLine renders "Institution • Account • Category", dropping the
// institution when the provider reported none.
func AccountLine(t core.Transaction) string {
	parts := make([]string, 0, 3)
	if inst := strings.TrimSpace(t.Account.Institution); inst != "" && inst != unknownInstitution {
		parts = append(parts, inst)
	}
	if name := strings.TrimSpace(t.Account.Name); name != "" {
		parts = append(parts, name)
	}
	parts = append(parts, t.Category)
	return strings.Join(parts, " • ")
}

// CategoryLabel turns backend category codes such as FOOD_AND_DRINK into
// "Food And Drink".
func CategoryLabel(category string) string {
	words := strings.Fields(strings.ReplaceAll(category, "_", " "))
	for i, w := range words {
		w = strings.ToLower(w)
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
