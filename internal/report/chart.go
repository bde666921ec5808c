package report

import (
	"fmt"
	"io"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"finboard/internal/core"
)

// Palette is the slice color order of the category pie.
var Palette = []string{
	"0088FE", "00C49F", "FFBB28", "FF8042", "8884D8",
	"82CA9D", "FFC658", "FF6B6B", "4ECDC4", "45B7D1",
}

// SliceColor returns the palette color for the i-th category, cycling.
func SliceColor(i int) string {
	return "#" + Palette[i%len(Palette)]
}

// WritePieSVG renders the category breakdown of s as an SVG pie. A summary
// with no positive totals renders a placeholder instead.
func WritePieSVG(w io.Writer, s core.Summary, size int) error {
	var values []chart.Value
	for i, c := range s.CategoryTotals {
		if !c.Amount.IsPositive() {
			continue
		}
		color := drawing.ColorFromHex(Palette[i%len(Palette)])
		values = append(values, chart.Value{
			Label: CategoryLabel(c.Name),
			Value: c.Amount.InexactFloat64(),
			Style: chart.Style{
				FillColor:   color,
				StrokeColor: drawing.ColorWhite,
				StrokeWidth: 1,
			},
		})
	}
	if len(values) == 0 {
		return writePlaceholder(w, size)
	}

	pie := chart.PieChart{
		Width:  size,
		Height: size,
		Values: values,
		Background: chart.Style{
			Padding: chart.Box{Top: 10, Left: 10, Right: 10, Bottom: 10},
		},
	}
	if err := pie.Render(chart.SVG, w); err != nil {
		return fmt.Errorf("render pie chart: %w", err)
	}
	return nil
}

func writePlaceholder(w io.Writer, size int) error {
	r := size / 2
	_, err := fmt.Fprintf(w,
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+
			`<circle cx="%d" cy="%d" r="%d" fill="#e5e7eb"/>`+
			`<text x="%d" y="%d" text-anchor="middle" font-family="sans-serif" font-size="14" fill="#6b7280">No expenses</text>`+
			`</svg>`,
		size, size, size, size, r, r, r-10, r, r+5)
	return err
}
