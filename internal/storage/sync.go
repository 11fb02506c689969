package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"dailyaed/internal/core"
	"dailyaed/internal/records"
)

const syncColumns = `account_id, ` + recordColumns + `, version, sync_status, updated_at`

func scanSyncEntry(row interface{ Scan(...any) error }) (records.SyncEntry, error) {
	var (
		e       records.SyncEntry
		date    dateValue
		status  string
		updated timeValue
	)
	err := row.Scan(&e.AccountID,
		&e.Record.ID, &date, &e.Record.Income.Fils, &e.Record.Expenses.Fils, &e.Record.Profit.Fils, &e.Record.Notes,
		&e.Version, &status, &updated)
	if err != nil {
		return records.SyncEntry{}, err
	}
	e.Record.Date = date.Date
	e.Status = records.SyncStatus(status)
	e.UpdatedAt = updated.Time
	return e, nil
}

// PendingSync implements records.SyncLedger
func (r *Repository) PendingSync(ctx context.Context, limit int) ([]records.SyncEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		r.dialect.rebind(`SELECT `+syncColumns+` FROM daily_records
			WHERE sync_status != 'synced'
			ORDER BY updated_at
			LIMIT ?`),
		limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync records: %w", err)
	}
	defer rows.Close()

	var out []records.SyncEntry
	for rows.Next() {
		e, err := scanSyncEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync record: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync records: %w", err)
	}
	return out, nil
}

// GetForSync implements records.SyncLedger
func (r *Repository) GetForSync(ctx context.Context, accountID string, date core.Date) (records.SyncEntry, bool, error) {
	row := r.db.QueryRowContext(ctx,
		r.dialect.rebind(`SELECT `+syncColumns+` FROM daily_records WHERE account_id = ? AND date = ?`),
		accountID, r.dialect.dateArg(date))

	e, err := scanSyncEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return records.SyncEntry{}, false, nil
	}
	if err != nil {
		return records.SyncEntry{}, false, fmt.Errorf("get record for sync: %w", err)
	}
	return e, true, nil
}

// MarkSynced marks a record as mirrored, provided no newer write happened.
func (r *Repository) MarkSynced(ctx context.Context, accountID string, date core.Date, version int64) error {
	res, err := r.db.ExecContext(ctx,
		r.dialect.rebind(`UPDATE daily_records SET sync_status = 'synced'
			WHERE account_id = ? AND date = ? AND version = ?`),
		accountID, r.dialect.dateArg(date), version)
	if err != nil {
		return fmt.Errorf("mark record synced: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		slog.InfoContext(ctx, "Record changed since sync started, keeping it pending",
			"account_id", accountID, "date", date.String(), "version", version)
		return nil
	}

	slog.InfoContext(ctx, "Record marked as synced",
		"account_id", accountID, "date", date.String(), "version", version)
	return nil
}

// MarkSyncError marks a record as having sync errors
func (r *Repository) MarkSyncError(ctx context.Context, accountID string, date core.Date) error {
	_, err := r.db.ExecContext(ctx,
		r.dialect.rebind(`UPDATE daily_records SET sync_status = 'error'
			WHERE account_id = ? AND date = ?`),
		accountID, r.dialect.dateArg(date))
	if err != nil {
		return fmt.Errorf("mark record sync error: %w", err)
	}

	slog.WarnContext(ctx, "Record marked with sync error", "account_id", accountID, "date", date.String())
	return nil
}
