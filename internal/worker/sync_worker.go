// Package worker mirrors saved records into the spreadsheet, driven by AMQP
// messages and a periodic scan of records still pending.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dailyaed/internal/amqp"
	"dailyaed/internal/core"
	"dailyaed/internal/metrics"
	"dailyaed/internal/records"
	"dailyaed/internal/sheets"
)

// SyncWorker handles synchronization of records from the store to the
// spreadsheet mirror.
type SyncWorker struct {
	ledger    records.SyncLedger
	mirror    sheets.RecordMirror
	batchSize int

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncWorker(ledger records.SyncLedger, mirror sheets.RecordMirror, batchSize int) *SyncWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	return &SyncWorker{
		ledger:    ledger,
		mirror:    mirror,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single record sync message from AMQP. The
// row is read again, so a message for an older version mirrors the latest
// state.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.RecordSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"account_id", msg.AccountID,
		"date", msg.Date.String(),
		"version", msg.Version)

	entry, found, err := w.ledger.GetForSync(ctx, msg.AccountID, msg.Date)
	if err != nil {
		return fmt.Errorf("get record from storage: %w", err)
	}
	if !found {
		slog.WarnContext(ctx, "Record for sync message not found, dropping",
			"account_id", msg.AccountID, "date", msg.Date.String())
		return nil
	}
	if entry.Status == records.SyncSynced {
		slog.DebugContext(ctx, "Record already synced",
			"account_id", msg.AccountID, "date", msg.Date.String(), "version", entry.Version)
		return nil
	}

	return w.syncEntry(ctx, entry)
}

// ProcessPendingRecords mirrors up to one batch of records that are still
// pending or failed. It is the backup path for lost AMQP messages.
func (w *SyncWorker) ProcessPendingRecords(ctx context.Context) (synced int, err error) {
	return w.processPending(ctx, w.batchSize)
}

// StartupSyncCheck processes a larger batch at worker start to recover
// from downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	slog.InfoContext(ctx, "Startup sync completed", "synced", synced)
	return nil
}

func (w *SyncWorker) processPending(ctx context.Context, limit int) (int, error) {
	pending, err := w.ledger.PendingSync(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get pending records: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending records", "count", len(pending))

	synced := 0
	for _, entry := range pending {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		if err := w.syncEntry(ctx, entry); err != nil {
			slog.ErrorContext(ctx, "Failed to sync record",
				"account_id", entry.AccountID, "date", entry.Record.Date.String(), "error", err)
			continue
		}
		synced++
	}
	return synced, nil
}

func (w *SyncWorker) syncEntry(ctx context.Context, entry records.SyncEntry) error {
	ref, err := w.mirror.Upsert(ctx, entry.AccountID, entry.Record)
	if err != nil {
		metrics.IncSync(metrics.ResultError)
		if markErr := w.ledger.MarkSyncError(ctx, entry.AccountID, entry.Record.Date); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error",
				"account_id", entry.AccountID, "date", entry.Record.Date.String(), "error", markErr)
		}
		return fmt.Errorf("upsert to sheets: %w", err)
	}

	metrics.IncSync(metrics.ResultSuccess)
	if err := w.ledger.MarkSynced(ctx, entry.AccountID, entry.Record.Date, entry.Version); err != nil {
		// The row is mirrored; the next scan rewrites the same values.
		slog.ErrorContext(ctx, "Failed to mark as synced",
			"account_id", entry.AccountID, "date", entry.Record.Date.String(), "error", err)
	}

	slog.InfoContext(ctx, "Successfully synced record",
		"account_id", entry.AccountID,
		"date", entry.Record.Date.String(),
		"version", entry.Version,
		"sheets_ref", ref)
	return nil
}

// Start runs the periodic pending scan every interval until Stop or ctx
// ends. It returns an error if already running.
func (w *SyncWorker) Start(ctx context.Context, interval time.Duration) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sync worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	go w.runLoop(ctx, interval, stopCh, doneCh)

	slog.InfoContext(ctx, "Sync worker started",
		"interval", interval,
		"batch_size", w.batchSize)
	return nil
}

// Stop signals the loop and waits for it, bounded by ctx.
func (w *SyncWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sync worker stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync worker stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the periodic scan is active
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *SyncWorker) runLoop(ctx context.Context, interval time.Duration, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessPendingRecords(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic sync failed", "error", err)
			}
		}
	}
}

// SyncDay mirrors a single day immediately, used by the CLI.
func (w *SyncWorker) SyncDay(ctx context.Context, accountID string, date core.Date) error {
	return w.HandleSyncMessage(ctx, &amqp.RecordSyncMessage{AccountID: accountID, Date: date})
}
