package sheets

import (
	"context"

	"dailyaed/internal/core"
)

// Ports for outbound adapters.
type (
	// RecordMirror keeps one spreadsheet row per account and day.
	RecordMirror interface {
		// Upsert writes rec for accountID, replacing the row of the same day
		// if one exists.
		Upsert(ctx context.Context, accountID string, rec core.DailyRecord) (rowRef string, err error)
	}
)
