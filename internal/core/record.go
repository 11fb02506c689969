package core

import (
	"unicode/utf8"
)

// MaxNotesLength is the notes limit in characters.
const MaxNotesLength = 200

const (
	FieldIncome   = "income"
	FieldExpenses = "expenses"
	FieldNotes    = "notes"
	FieldDate     = "date"
)

type (
	// DailyRecord is one calendar day's activity. An empty ID means the
	// record has not been persisted.
	DailyRecord struct {
		ID       string `json:"id,omitempty"`
		Date     Date   `json:"date"`
		Income   Money  `json:"income"`
		Expenses Money  `json:"expenses"`
		Profit   Money  `json:"profit"`
		Notes    string `json:"notes"`
	}

	// RecordPatch is a partial update of a stored record. Nil fields are
	// left untouched. Stores recompute profit from the resulting income and
	// expenses in the same write.
	RecordPatch struct {
		Income   *Money
		Expenses *Money
		Notes    *string
	}

	// MonthlyAggregate is derived from the records in [From, To).
	MonthlyAggregate struct {
		From     Date  `json:"from"`
		To       Date  `json:"to"`
		Days     int   `json:"days"`
		Income   Money `json:"income"`
		Expenses Money `json:"expenses"`
		Profit   Money `json:"profit"`
	}
)

// ZeroRecord is the value shown for a date without a stored row.
func ZeroRecord(d Date) DailyRecord {
	return DailyRecord{Date: d}
}

// Persisted reports whether the record exists in the store.
func (r DailyRecord) Persisted() bool {
	return r.ID != ""
}

// ComputeProfit returns income minus expenses.
func ComputeProfit(income, expenses Money) Money {
	return income.Sub(expenses)
}

// ValidateNotes checks the notes length in characters.
func ValidateNotes(notes string) error {
	if utf8.RuneCountInString(notes) > MaxNotesLength {
		return Invalid(FieldNotes, ErrNotesTooLong)
	}
	return nil
}

// Aggregate reduces records into totals over [from, to). Profit is
// recomputed from the raw totals; stored per-day profit is ignored.
func Aggregate(from, to Date, recs []DailyRecord) MonthlyAggregate {
	agg := MonthlyAggregate{From: from, To: to}
	for _, r := range recs {
		agg.Income = agg.Income.Add(r.Income)
		agg.Expenses = agg.Expenses.Add(r.Expenses)
		agg.Days++
	}
	agg.Profit = ComputeProfit(agg.Income, agg.Expenses)
	return agg
}

// Merge combines two aggregates over adjacent ranges.
func (a MonthlyAggregate) Merge(b MonthlyAggregate) MonthlyAggregate {
	out := MonthlyAggregate{
		From:     a.From,
		To:       b.To,
		Days:     a.Days + b.Days,
		Income:   a.Income.Add(b.Income),
		Expenses: a.Expenses.Add(b.Expenses),
	}
	out.Profit = ComputeProfit(out.Income, out.Expenses)
	return out
}
