package cli

import (
	"fmt"
	"io"

	"dailyaed/internal/core"
)

func printAmount(w io.Writer, p palette, label string, m core.Money) {
	fmt.Fprintf(w, "%s %s\n", p.Label(fmt.Sprintf("%-9s", label)), p.Amount(m, fmt.Sprintf("%10s AED", m)))
}

func printRecord(w io.Writer, rec core.DailyRecord) {
	p := paletteFor(w)
	fmt.Fprintf(w, "%s %s\n", p.Label(fmt.Sprintf("%-9s", "Date")), p.Primary(rec.Date.String()))
	printAmount(w, p, "Income", rec.Income)
	printAmount(w, p, "Expenses", rec.Expenses)
	printAmount(w, p, "Profit", rec.Profit)
	if rec.Notes != "" {
		fmt.Fprintf(w, "%s %s\n", p.Label(fmt.Sprintf("%-9s", "Notes")), rec.Notes)
	}
	if !rec.Persisted() {
		fmt.Fprintln(w, p.Silent("(nothing recorded)"))
	}
}

func printMonth(w io.Writer, agg core.MonthlyAggregate) {
	p := paletteFor(w)
	fmt.Fprintf(w, "%s %s\n", p.Primary(agg.From.Format("January 2006")),
		p.Silent(fmt.Sprintf("(%d days recorded)", agg.Days)))
	printAmount(w, p, "Income", agg.Income)
	printAmount(w, p, "Expenses", agg.Expenses)
	printAmount(w, p, "Profit", agg.Profit)
}
