package google

import (
	"fmt"
	"strings"
	"time"

	"dailyaed/internal/core"
)

// Sheet layout: A account, B date, C income, D expenses, E profit,
// F notes, G updated at.
const lastColumn = "G"

func headerRow() []any {
	return []any{"Account", "Date", "Income", "Expenses", "Profit", "Notes", "Updated"}
}

func recordRow(accountID string, rec core.DailyRecord, now time.Time) []any {
	return []any{
		accountID,
		rec.Date.String(),
		rec.Income.Float(),
		rec.Expenses.Float(),
		rec.Profit.Float(),
		rec.Notes,
		now.UTC().Format(time.RFC3339),
	}
}

func rowKey(accountID, date string) string {
	return strings.TrimSpace(accountID) + "|" + strings.TrimSpace(date)
}

// indexRows maps account|date to its 1-based row. Rows without both
// columns, such as the header, are skipped. The first occurrence wins.
func indexRows(values [][]any) map[string]int {
	index := make(map[string]int, len(values))
	for i, row := range values {
		cols := toStrings(row)
		if len(cols) < 2 || cols[0] == "" || cols[1] == "" {
			continue
		}
		if _, err := core.ParseDate(cols[1]); err != nil {
			continue
		}
		key := rowKey(cols[0], cols[1])
		if _, seen := index[key]; !seen {
			index[key] = i + 1
		}
	}
	return index
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
