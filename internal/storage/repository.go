package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"dailyaed/internal/core"
	"dailyaed/internal/records"
)

// Provider hands out record stores scoped to one account.
type Provider interface {
	ForAccount(accountID string) records.RecordStore
	Close() error
}

// Repository is the SQL-backed record store shared by the SQLite and
// PostgreSQL backends.
type Repository struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations
	if err := runMigrations(sqliteDialect, dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open(sqliteDialect.driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{db: db, dialect: sqliteDialect, now: time.Now}, nil
}

func NewPostgresRepository(ctx context.Context, dsn string) (*Repository, error) {
	if err := runMigrations(postgresDialect, dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{db: db, dialect: postgresDialect, now: time.Now}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Backend returns the dialect name ("sqlite" or "postgres").
func (r *Repository) Backend() string {
	return r.dialect.name
}

// ForAccount implements Provider.
func (r *Repository) ForAccount(accountID string) records.RecordStore {
	return &accountRepository{repo: r, account: accountID}
}

type accountRepository struct {
	repo    *Repository
	account string
}

const recordColumns = `id, date, income_fils, expenses_fils, profit_fils, notes`

func scanRecord(row interface{ Scan(...any) error }) (core.DailyRecord, error) {
	var (
		rec  core.DailyRecord
		date dateValue
	)
	if err := row.Scan(&rec.ID, &date, &rec.Income.Fils, &rec.Expenses.Fils, &rec.Profit.Fils, &rec.Notes); err != nil {
		return core.DailyRecord{}, err
	}
	rec.Date = date.Date
	return rec, nil
}

// FindByDate implements records.RecordReader
func (a *accountRepository) FindByDate(ctx context.Context, date core.Date) (core.DailyRecord, bool, error) {
	d := a.repo.dialect
	row := a.repo.db.QueryRowContext(ctx,
		d.rebind(`SELECT `+recordColumns+` FROM daily_records WHERE account_id = ? AND date = ?`),
		a.account, d.dateArg(date))

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DailyRecord{}, false, nil
	}
	if err != nil {
		return core.DailyRecord{}, false, fmt.Errorf("find record %s: %w", date, err)
	}
	return rec, true, nil
}

// ListRange implements records.RecordReader
func (a *accountRepository) ListRange(ctx context.Context, from, to core.Date) ([]core.DailyRecord, error) {
	d := a.repo.dialect
	rows, err := a.repo.db.QueryContext(ctx,
		d.rebind(`SELECT `+recordColumns+` FROM daily_records
			WHERE account_id = ? AND date >= ? AND date < ?
			ORDER BY date`),
		a.account, d.dateArg(from), d.dateArg(to))
	if err != nil {
		return nil, fmt.Errorf("list records [%s, %s): %w", from, to, err)
	}
	defer rows.Close()

	var out []core.DailyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Insert implements records.RecordWriter. The unique (account_id, date)
// constraint turns a concurrent insert for the same day into
// core.ErrDuplicateDate.
func (a *accountRepository) Insert(ctx context.Context, rec core.DailyRecord) (string, error) {
	d := a.repo.dialect
	id := uuid.NewString()
	now := d.timeArg(a.repo.now())

	res, err := a.repo.db.ExecContext(ctx,
		d.rebind(`INSERT INTO daily_records
			(id, account_id, date, income_fils, expenses_fils, profit_fils, notes, version, sync_status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1, 'pending', ?, ?)
			ON CONFLICT (account_id, date) DO NOTHING`),
		id, a.account, d.dateArg(rec.Date),
		rec.Income.Fils, rec.Expenses.Fils, core.ComputeProfit(rec.Income, rec.Expenses).Fils,
		rec.Notes, now, now)
	if err != nil {
		return "", fmt.Errorf("insert record %s: %w", rec.Date, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("insert record %s: %w", rec.Date, err)
	}
	if n == 0 {
		return "", core.ErrDuplicateDate
	}

	slog.DebugContext(ctx, "Record inserted",
		"id", id,
		"account_id", a.account,
		"date", rec.Date.String(),
		"backend", d.name)
	return id, nil
}

// Update implements records.RecordWriter. Profit is recomputed from the
// resulting columns in the same statement.
func (a *accountRepository) Update(ctx context.Context, id string, patch core.RecordPatch) error {
	d := a.repo.dialect
	income := nullFils(patch.Income)
	expenses := nullFils(patch.Expenses)

	res, err := a.repo.db.ExecContext(ctx,
		d.rebind(`UPDATE daily_records SET
			income_fils = COALESCE(?, income_fils),
			expenses_fils = COALESCE(?, expenses_fils),
			profit_fils = COALESCE(?, income_fils) - COALESCE(?, expenses_fils),
			notes = COALESCE(?, notes),
			version = version + 1,
			sync_status = 'pending',
			updated_at = ?
			WHERE id = ? AND account_id = ?`),
		income, expenses, income, expenses, nullString(patch.Notes),
		d.timeArg(a.repo.now()), id, a.account)
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}
	if n == 0 {
		return core.ErrRecordNotFound
	}

	slog.DebugContext(ctx, "Record updated", "id", id, "account_id", a.account)
	return nil
}

// UpdateNotes implements records.RecordWriter
func (a *accountRepository) UpdateNotes(ctx context.Context, date core.Date, notes string) (bool, error) {
	d := a.repo.dialect
	res, err := a.repo.db.ExecContext(ctx,
		d.rebind(`UPDATE daily_records SET
			notes = ?,
			version = version + 1,
			sync_status = 'pending',
			updated_at = ?
			WHERE account_id = ? AND date = ?`),
		notes, d.timeArg(a.repo.now()), a.account, d.dateArg(date))
	if err != nil {
		return false, fmt.Errorf("update notes %s: %w", date, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update notes %s: %w", date, err)
	}
	return n > 0, nil
}
