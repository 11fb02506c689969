// Package memory is an in-process record store used for local runs and
// tests. Data lives only as long as the Store value.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dailyaed/internal/core"
	"dailyaed/internal/records"
)

type key struct {
	account string
	date    string
}

type row struct {
	account   string
	rec       core.DailyRecord
	version   int64
	status    records.SyncStatus
	createdAt time.Time
	updatedAt time.Time
}

type Store struct {
	mu   sync.Mutex
	rows map[key]*row
	ids  map[string]key
	now  func() time.Time
}

func New() *Store {
	return &Store{
		rows: make(map[key]*row),
		ids:  make(map[string]key),
		now:  time.Now,
	}
}

// ForAccount returns a RecordStore that only sees accountID's records.
func (s *Store) ForAccount(accountID string) records.RecordStore {
	return &accountStore{s: s, account: accountID}
}

func (s *Store) Close() error { return nil }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

type accountStore struct {
	s       *Store
	account string
}

func (a *accountStore) FindByDate(_ context.Context, date core.Date) (core.DailyRecord, bool, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	r, ok := a.s.rows[key{a.account, date.String()}]
	if !ok {
		return core.DailyRecord{}, false, nil
	}
	return r.rec, true, nil
}

func (a *accountStore) ListRange(_ context.Context, from, to core.Date) ([]core.DailyRecord, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	var out []core.DailyRecord
	for _, r := range a.s.rows {
		if r.account != a.account {
			continue
		}
		if r.rec.Date.Before(from) || !r.rec.Date.Before(to) {
			continue
		}
		out = append(out, r.rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (a *accountStore) Insert(_ context.Context, rec core.DailyRecord) (string, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	k := key{a.account, rec.Date.String()}
	if _, exists := a.s.rows[k]; exists {
		return "", core.ErrDuplicateDate
	}

	now := a.s.now()
	rec.ID = uuid.NewString()
	a.s.rows[k] = &row{
		account:   a.account,
		rec:       rec,
		version:   1,
		status:    records.SyncPending,
		createdAt: now,
		updatedAt: now,
	}
	a.s.ids[rec.ID] = k
	return rec.ID, nil
}

func (a *accountStore) Update(_ context.Context, id string, patch core.RecordPatch) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	k, ok := a.s.ids[id]
	if !ok || k.account != a.account {
		return core.ErrRecordNotFound
	}
	r := a.s.rows[k]
	if patch.Income != nil {
		r.rec.Income = *patch.Income
	}
	if patch.Expenses != nil {
		r.rec.Expenses = *patch.Expenses
	}
	if patch.Notes != nil {
		r.rec.Notes = *patch.Notes
	}
	r.rec.Profit = core.ComputeProfit(r.rec.Income, r.rec.Expenses)
	a.s.touch(r)
	return nil
}

func (a *accountStore) UpdateNotes(_ context.Context, date core.Date, notes string) (bool, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	r, ok := a.s.rows[key{a.account, date.String()}]
	if !ok {
		return false, nil
	}
	r.rec.Notes = notes
	a.s.touch(r)
	return true, nil
}

func (s *Store) touch(r *row) {
	r.version++
	r.status = records.SyncPending
	r.updatedAt = s.now()
}

func (r *row) entry() records.SyncEntry {
	return records.SyncEntry{
		AccountID: r.account,
		Record:    r.rec,
		Version:   r.version,
		Status:    r.status,
		UpdatedAt: r.updatedAt,
	}
}

// PendingSync implements records.SyncLedger.
func (s *Store) PendingSync(_ context.Context, limit int) ([]records.SyncEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []records.SyncEntry
	for _, r := range s.rows {
		if r.status != records.SyncSynced {
			out = append(out, r.entry())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetForSync(_ context.Context, accountID string, date core.Date) (records.SyncEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[key{accountID, date.String()}]
	if !ok {
		return records.SyncEntry{}, false, nil
	}
	return r.entry(), true, nil
}

func (s *Store) MarkSynced(_ context.Context, accountID string, date core.Date, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.rows[key{accountID, date.String()}]; ok && r.version == version {
		r.status = records.SyncSynced
	}
	return nil
}

func (s *Store) MarkSyncError(_ context.Context, accountID string, date core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.rows[key{accountID, date.String()}]; ok {
		r.status = records.SyncFailed
	}
	return nil
}
