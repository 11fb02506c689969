package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"dailyaed/internal/cache"
	"dailyaed/internal/core"
	applog "dailyaed/internal/log"
	"dailyaed/internal/metrics"
	"dailyaed/internal/records"
	"dailyaed/internal/storage"
)

// SyncPublisher announces that a record changed and should be mirrored.
type SyncPublisher interface {
	PublishRecordSync(ctx context.Context, accountID string, date core.Date, version int64) error
	Close() error
}

// RecordService orchestrates record operations across the store, the month
// cache and AMQP.
type RecordService struct {
	provider  storage.Provider
	ledger    records.SyncLedger
	publisher SyncPublisher
	months    *cache.LRUCache[core.MonthlyAggregate]
	loc       *time.Location
	now       func() time.Time
	logger    *applog.StructuredLogger

	flights singleflight.Group

	mu     sync.Mutex
	epochs map[string]uint64
}

type Option func(*RecordService)

// WithLocation sets the default location used to resolve "today".
func WithLocation(loc *time.Location) Option {
	return func(s *RecordService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *RecordService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMonthCache caches monthly aggregates per account and month.
func WithMonthCache(c *cache.LRUCache[core.MonthlyAggregate]) Option {
	return func(s *RecordService) { s.months = c }
}

// WithPublisher enables sync messages after every save. ledger supplies the
// version of the saved row.
func WithPublisher(p SyncPublisher, ledger records.SyncLedger) Option {
	return func(s *RecordService) {
		s.publisher = p
		s.ledger = ledger
	}
}

func WithLogger(l *applog.Logger) Option {
	return func(s *RecordService) {
		if l != nil {
			s.logger = applog.NewStructuredLogger(l)
		}
	}
}

func NewRecordService(provider storage.Provider, opts ...Option) *RecordService {
	s := &RecordService{
		provider: provider,
		loc:      time.Local,
		now:      time.Now,
		logger:   applog.NewStructuredLogger(applog.New(applog.DefaultConfig())),
		epochs:   make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the default location.
func (s *RecordService) Location() *time.Location {
	return s.loc
}

// For returns the operations of one account. A nil loc uses the service
// default.
func (s *RecordService) For(accountID string, loc *time.Location) *AccountRecords {
	if loc == nil {
		loc = s.loc
	}
	return &AccountRecords{
		svc:     s,
		account: accountID,
		agg: records.NewAggregator(s.provider.ForAccount(accountID),
			records.WithLocation(loc),
			records.WithClock(s.now)),
	}
}

// Close closes the store and the publisher.
func (s *RecordService) Close() error {
	var errs []error

	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close record service: %w", errors.Join(errs...))
	}

	return nil
}

func monthKey(accountID string, date core.Date) string {
	return accountID + "|" + date.MonthStart().Format(core.MonthLayout)
}

func (s *RecordService) epoch(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epochs[key]
}

// invalidate drops the cached month and makes in-flight loads of it unable
// to repopulate the cache.
func (s *RecordService) invalidate(key string) {
	s.mu.Lock()
	s.epochs[key]++
	s.mu.Unlock()

	if s.months != nil {
		s.months.Delete(key)
	}
}

func (s *RecordService) storeMonth(key string, epoch uint64, agg core.MonthlyAggregate) {
	if s.months == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epochs[key] == epoch {
		s.months.Set(key, agg)
	}
}

func (s *RecordService) publish(ctx context.Context, accountID string, date core.Date) {
	if s.publisher == nil {
		return
	}

	var version int64
	if s.ledger != nil {
		entry, found, err := s.ledger.GetForSync(ctx, accountID, date)
		if err != nil {
			slog.WarnContext(ctx, "Could not read record version for sync message",
				"account_id", accountID, "date", date.String(), "error", err)
		} else if found {
			version = entry.Version
		}
	}

	if err := s.publisher.PublishRecordSync(ctx, accountID, date, version); err != nil {
		// The record is saved; the worker's pending scan picks it up later.
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"account_id", accountID, "date", date.String(), "error", err)
	}
}

func observe(op string, start time.Time, err error) {
	result := metrics.ResultSuccess
	var verr *core.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		result = metrics.ResultValidation
		metrics.IncValidationFailure(verr.Field)
	default:
		result = metrics.ResultError
	}
	metrics.ObserveRecordOp(op, result, time.Since(start))
}

// AccountRecords runs record operations for one account. It satisfies
// records.Loader, so it can back a records.Viewer.
type AccountRecords struct {
	svc     *RecordService
	account string
	agg     *records.Aggregator
}

func (a *AccountRecords) AccountID() string { return a.account }

// Today returns the current day in the handle's location.
func (a *AccountRecords) Today() core.Date {
	return a.agg.Today()
}

func (a *AccountRecords) resolve(d core.Date) core.Date {
	if d.IsZero() {
		return a.agg.Today()
	}
	return d
}

// GetDailyRecord returns the stored record or the zero-value record.
func (a *AccountRecords) GetDailyRecord(ctx context.Context, date core.Date) (rec core.DailyRecord, err error) {
	defer func(start time.Time) { observe(applog.OpRead, start, err) }(time.Now())
	return a.agg.GetDailyRecord(ctx, date)
}

// GetMonthlyAggregate returns the month containing date, from cache when
// possible. Concurrent loads of the same month share one store query.
func (a *AccountRecords) GetMonthlyAggregate(ctx context.Context, date core.Date) (agg core.MonthlyAggregate, err error) {
	defer func(start time.Time) { observe(applog.OpMonth, start, err) }(time.Now())

	date = a.resolve(date)
	key := monthKey(a.account, date)

	if a.svc.months != nil {
		if cached, ok := a.svc.months.Get(key); ok {
			metrics.ObserveMonthCache(true)
			return cached, nil
		}
		metrics.ObserveMonthCache(false)
	}

	epoch := a.svc.epoch(key)
	v, err, _ := a.svc.flights.Do(fmt.Sprintf("%s#%d", key, epoch), func() (any, error) {
		agg, err := a.agg.GetMonthlyAggregate(context.WithoutCancel(ctx), date)
		if err != nil {
			return agg, err
		}
		a.svc.storeMonth(key, epoch, agg)
		return agg, nil
	})
	return v.(core.MonthlyAggregate), err
}

// MonthRecords returns the stored days of the month containing date and
// their aggregate.
func (a *AccountRecords) MonthRecords(ctx context.Context, date core.Date) (recs []core.DailyRecord, agg core.MonthlyAggregate, err error) {
	defer func(start time.Time) { observe(applog.OpExport, start, err) }(time.Now())

	date = a.resolve(date)
	from, to := date.MonthStart(), date.NextMonthStart()
	recs, err = a.svc.provider.ForAccount(a.account).ListRange(ctx, from, to)
	if err != nil {
		return nil, core.MonthlyAggregate{From: from, To: to},
			fmt.Errorf("%w: list records: %w", core.ErrStoreUnavailable, err)
	}
	return recs, core.Aggregate(from, to, recs), nil
}

// SaveIncome sets the income of a day and returns the resulting record.
func (a *AccountRecords) SaveIncome(ctx context.Context, e records.Entry) (core.DailyRecord, error) {
	return a.save(ctx, core.FieldIncome, e)
}

// SaveExpenses sets the expenses of a day and returns the resulting record.
func (a *AccountRecords) SaveExpenses(ctx context.Context, e records.Entry) (core.DailyRecord, error) {
	return a.save(ctx, core.FieldExpenses, e)
}

func (a *AccountRecords) save(ctx context.Context, field string, e records.Entry) (rec core.DailyRecord, err error) {
	defer func(start time.Time) { observe(field, start, err) }(time.Now())

	e.Date = a.resolve(e.Date)
	rec, err = a.agg.Save(ctx, field, e)
	if err != nil {
		a.logFailure(ctx, field, e.Date, err)
		return rec, err
	}

	a.svc.invalidate(monthKey(a.account, rec.Date))
	a.svc.logger.LogRecordSaved(ctx, a.account, rec.Date.String(), field, e.Amount.Fils, rec.ID)
	a.svc.publish(ctx, a.account, rec.Date)
	return rec, nil
}

// SaveNotes replaces the notes of an existing day. It reports false when
// the day has no record.
func (a *AccountRecords) SaveNotes(ctx context.Context, date core.Date, notes string) (updated bool, err error) {
	defer func(start time.Time) { observe(applog.OpNotes, start, err) }(time.Now())

	date = a.resolve(date)
	updated, err = a.agg.SaveNotes(ctx, date, notes)
	if err != nil {
		a.logFailure(ctx, applog.OpNotes, date, err)
		return false, err
	}
	if updated {
		a.svc.publish(ctx, a.account, date)
	}
	return updated, nil
}

func (a *AccountRecords) logFailure(ctx context.Context, op string, date core.Date, err error) {
	if errors.Is(err, core.ErrValidation) {
		slog.DebugContext(ctx, "Rejected record input",
			applog.FieldAccountID, a.account,
			applog.FieldOperation, op,
			applog.FieldErrorType, applog.ErrorTypeValidation,
			applog.FieldError, err)
		return
	}

	fields := applog.NewFields().
		WithRecord(a.account, date.String()).
		WithErrorType(applog.ErrorTypeUnavailable)
	var serr *records.SaveError
	if errors.As(err, &serr) {
		fields[applog.FieldStage] = string(serr.Stage)
	}
	a.svc.logger.LogError(ctx, "Record save failed", err, applog.ComponentRecords, op, fields)
}
