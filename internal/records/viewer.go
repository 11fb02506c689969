package records

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"dailyaed/internal/core"
)

// ErrSuperseded is returned by Viewer.Select when a newer selection started
// before this one finished.
var ErrSuperseded = errors.New("selection superseded")

// Loader is the read side of an Aggregator.
type Loader interface {
	GetDailyRecord(ctx context.Context, date core.Date) (core.DailyRecord, error)
	GetMonthlyAggregate(ctx context.Context, date core.Date) (core.MonthlyAggregate, error)
}

// View is the committed result of a selection.
type View struct {
	Date   core.Date             `json:"date"`
	Record core.DailyRecord      `json:"record"`
	Month  core.MonthlyAggregate `json:"month"`
}

// Viewer keeps the figures shown for the most recently selected day. Only
// the latest selection may commit; older in-flight loads are cancelled and
// their results dropped.
type Viewer struct {
	src Loader

	mu        sync.Mutex
	gen       uint64
	cancel    context.CancelFunc
	current   View
	committed bool
}

func NewViewer(src Loader) *Viewer {
	return &Viewer{src: src}
}

// Select loads the day record and month aggregate for date concurrently and
// commits them as the current view.
func (v *Viewer) Select(ctx context.Context, date core.Date) (View, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	v.mu.Lock()
	v.gen++
	gen := v.gen
	if v.cancel != nil {
		v.cancel()
	}
	v.cancel = cancel
	v.mu.Unlock()

	var (
		rec   core.DailyRecord
		month core.MonthlyAggregate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rec, err = v.src.GetDailyRecord(gctx, date)
		return err
	})
	g.Go(func() error {
		var err error
		month, err = v.src.GetMonthlyAggregate(gctx, date)
		return err
	})
	err := g.Wait()

	v.mu.Lock()
	defer v.mu.Unlock()

	if gen != v.gen {
		return View{}, ErrSuperseded
	}
	v.cancel = nil
	if err != nil {
		return View{}, err
	}

	v.current = View{Date: rec.Date, Record: rec, Month: month}
	v.committed = true
	return v.current, nil
}

// Current returns the last committed view. ok is false until a selection
// has succeeded.
func (v *Viewer) Current() (view View, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current, v.committed
}
