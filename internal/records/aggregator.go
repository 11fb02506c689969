// Package records maps calendar days and date ranges to income, expenses and
// profit figures, and performs the create-or-update of the single record kept
// per day.
package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dailyaed/internal/core"
)

// Entry is a user submission for one numeric field of a day. A zero Date
// means today. Notes is optional and is only written when non-nil.
type Entry struct {
	Date   core.Date  `json:"date"`
	Amount core.Money `json:"amount"`
	Notes  *string    `json:"notes,omitempty"`
}

// Stage tells which half of a save failed.
type Stage string

const (
	StageLoad Stage = "load"
	StageSave Stage = "save"
)

// SaveError reports a store failure during a save. Pending holds the
// submitted values so the caller can show them again and retry.
type SaveError struct {
	Stage   Stage
	Field   string
	Pending Entry
	Err     error
}

func (e *SaveError) Error() string {
	switch e.Stage {
	case StageLoad:
		return fmt.Sprintf("failed to load current value: %v", e.Err)
	default:
		return fmt.Sprintf("failed to save new value: %v", e.Err)
	}
}

func (e *SaveError) Unwrap() error { return e.Err }

var errBadRange = errors.New("range end is before range start")

// Aggregator reads and writes daily records through a RecordStore bound to
// one account. It keeps no state besides its configuration and is safe for
// concurrent use.
type Aggregator struct {
	store RecordStore
	loc   *time.Location
	now   func() time.Time
}

type Option func(*Aggregator)

// WithLocation sets the location used to resolve "today".
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAggregator(store RecordStore, opts ...Option) *Aggregator {
	a := &Aggregator{
		store: store,
		loc:   time.Local,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Today returns the current calendar day in the aggregator's location.
func (a *Aggregator) Today() core.Date {
	return core.Today(a.now(), a.loc)
}

func (a *Aggregator) resolve(d core.Date) core.Date {
	if d.IsZero() {
		return a.Today()
	}
	return d
}

// GetDailyRecord returns the record for date, or the zero-value record when
// none is stored. The zero-value record is never persisted.
func (a *Aggregator) GetDailyRecord(ctx context.Context, date core.Date) (core.DailyRecord, error) {
	date = a.resolve(date)

	rec, found, err := a.store.FindByDate(ctx, date)
	if err != nil {
		return core.ZeroRecord(date), unavailable("find record", err)
	}
	if !found {
		return core.ZeroRecord(date), nil
	}
	return rec, nil
}

// GetMonthlyAggregate sums the month containing date. Profit is recomputed
// from the summed income and expenses.
func (a *Aggregator) GetMonthlyAggregate(ctx context.Context, date core.Date) (core.MonthlyAggregate, error) {
	date = a.resolve(date)
	return a.GetRangeAggregate(ctx, date.MonthStart(), date.NextMonthStart())
}

// GetRangeAggregate sums the records in [from, to).
func (a *Aggregator) GetRangeAggregate(ctx context.Context, from, to core.Date) (core.MonthlyAggregate, error) {
	if to.Before(from) {
		return core.MonthlyAggregate{}, core.Invalid(core.FieldDate, errBadRange)
	}
	if from.Equal(to) {
		return core.Aggregate(from, to, nil), nil
	}

	recs, err := a.store.ListRange(ctx, from, to)
	if err != nil {
		return core.MonthlyAggregate{From: from, To: to}, unavailable("list records", err)
	}
	return core.Aggregate(from, to, recs), nil
}

// SaveIncome sets the income of the entry's day and returns the record id.
func (a *Aggregator) SaveIncome(ctx context.Context, e Entry) (string, error) {
	rec, err := a.Save(ctx, core.FieldIncome, e)
	return rec.ID, err
}

// SaveExpenses sets the expenses of the entry's day and returns the record id.
func (a *Aggregator) SaveExpenses(ctx context.Context, e Entry) (string, error) {
	rec, err := a.Save(ctx, core.FieldExpenses, e)
	return rec.ID, err
}

// Save writes one numeric field of a day and returns the resulting record.
// field is core.FieldIncome or core.FieldExpenses.
//
// A missing record is inserted with the other field at zero. An existing one
// is updated in place and its profit recomputed against the stored value of
// the other field. If the insert loses a race against a concurrent insert for
// the same day, the record is read again and updated instead.
func (a *Aggregator) Save(ctx context.Context, field string, e Entry) (core.DailyRecord, error) {
	if field != core.FieldIncome && field != core.FieldExpenses {
		return core.DailyRecord{}, fmt.Errorf("save: unknown field %q", field)
	}
	if err := e.Amount.Validate(); err != nil {
		return core.DailyRecord{}, core.Invalid(field, err)
	}
	if e.Notes != nil {
		if err := core.ValidateNotes(*e.Notes); err != nil {
			return core.DailyRecord{}, err
		}
	}
	e.Date = a.resolve(e.Date)

	existing, found, err := a.store.FindByDate(ctx, e.Date)
	if err != nil {
		return core.DailyRecord{}, saveErr(StageLoad, field, e, unavailable("find record", err))
	}

	if !found {
		rec := newRecord(field, e)
		id, err := a.store.Insert(ctx, rec)
		if err == nil {
			rec.ID = id
			return rec, nil
		}
		if !errors.Is(err, core.ErrDuplicateDate) {
			return core.DailyRecord{}, saveErr(StageSave, field, e, unavailable("insert record", err))
		}

		existing, found, err = a.store.FindByDate(ctx, e.Date)
		if err != nil {
			return core.DailyRecord{}, saveErr(StageLoad, field, e, unavailable("find record", err))
		}
		if !found {
			return core.DailyRecord{}, saveErr(StageSave, field, e, unavailable("insert record", core.ErrDuplicateDate))
		}
	}

	rec, patch := applyEntry(field, existing, e)
	if err := a.store.Update(ctx, existing.ID, patch); err != nil {
		return core.DailyRecord{}, saveErr(StageSave, field, e, unavailable("update record", err))
	}
	return rec, nil
}

// SaveNotes replaces the notes of an existing record. It reports false
// without creating anything when the day has no record.
func (a *Aggregator) SaveNotes(ctx context.Context, date core.Date, notes string) (bool, error) {
	if err := core.ValidateNotes(notes); err != nil {
		return false, err
	}
	date = a.resolve(date)

	updated, err := a.store.UpdateNotes(ctx, date, notes)
	if err != nil {
		return false, saveErr(StageSave, core.FieldNotes, Entry{Date: date, Notes: &notes}, unavailable("update notes", err))
	}
	return updated, nil
}

func newRecord(field string, e Entry) core.DailyRecord {
	rec := core.ZeroRecord(e.Date)
	if field == core.FieldIncome {
		rec.Income = e.Amount
	} else {
		rec.Expenses = e.Amount
	}
	rec.Profit = core.ComputeProfit(rec.Income, rec.Expenses)
	if e.Notes != nil {
		rec.Notes = *e.Notes
	}
	return rec
}

func applyEntry(field string, rec core.DailyRecord, e Entry) (core.DailyRecord, core.RecordPatch) {
	var patch core.RecordPatch
	amount := e.Amount
	if field == core.FieldIncome {
		rec.Income = amount
		patch.Income = &amount
	} else {
		rec.Expenses = amount
		patch.Expenses = &amount
	}
	rec.Profit = core.ComputeProfit(rec.Income, rec.Expenses)
	if e.Notes != nil {
		notes := *e.Notes
		rec.Notes = notes
		patch.Notes = &notes
	}
	return rec, patch
}

func saveErr(stage Stage, field string, e Entry, err error) error {
	return &SaveError{Stage: stage, Field: field, Pending: e, Err: err}
}

// unavailable tags a store failure with core.ErrStoreUnavailable unless the
// store already did.
func unavailable(op string, err error) error {
	if errors.Is(err, core.ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", core.ErrStoreUnavailable, op, err)
}
