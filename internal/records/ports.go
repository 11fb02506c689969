package records

import (
	"context"
	"time"

	"dailyaed/internal/core"
)

// Ports for the record store. A store value is already scoped to one
// account; dates are calendar days and ranges are half-open [from, to).
type (
	RecordReader interface {
		// FindByDate returns the record for date. found is false when no row
		// exists; err is reserved for failures of the store itself.
		FindByDate(ctx context.Context, date core.Date) (rec core.DailyRecord, found bool, err error)

		// ListRange returns records with from <= date < to, ordered by date.
		ListRange(ctx context.Context, from, to core.Date) ([]core.DailyRecord, error)
	}

	RecordWriter interface {
		// Insert persists a new record and returns its id. It returns
		// core.ErrDuplicateDate when a record already exists for the date.
		Insert(ctx context.Context, rec core.DailyRecord) (id string, err error)

		// Update applies patch to the record with id. It returns
		// core.ErrRecordNotFound when no such row exists.
		Update(ctx context.Context, id string, patch core.RecordPatch) error

		// UpdateNotes sets the notes of the record for date. updated is false
		// when there is no record for that date; no row is created.
		UpdateNotes(ctx context.Context, date core.Date, notes string) (updated bool, err error)
	}

	RecordStore interface {
		RecordReader
		RecordWriter
	}
)

// SyncStatus is the mirror state of a persisted record.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "error"
)

// SyncEntry is a persisted record with its mirror bookkeeping.
type SyncEntry struct {
	AccountID string
	Record    core.DailyRecord
	Version   int64
	Status    SyncStatus
	UpdatedAt time.Time
}

// SyncLedger tracks which records still need to be mirrored to the
// external spreadsheet. It spans all accounts.
type SyncLedger interface {
	// PendingSync returns up to limit records whose latest version has not
	// been mirrored yet (pending or error), oldest first.
	PendingSync(ctx context.Context, limit int) ([]SyncEntry, error)

	GetForSync(ctx context.Context, accountID string, date core.Date) (SyncEntry, bool, error)

	// MarkSynced flags the record as mirrored if it is still at version.
	// A newer write keeps the record pending.
	MarkSynced(ctx context.Context, accountID string, date core.Date, version int64) error

	MarkSyncError(ctx context.Context, accountID string, date core.Date) error
}
