// Package worker consumes domain events and mirrors them to the spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finai/internal/amqp"
	"finai/internal/cache"
	"finai/internal/log"
	"finai/internal/sheets"
)

const (
	seenCacheSize = 4096
	seenCacheTTL  = 24 * time.Hour
)

// Consumer delivers events until ctx is done.
type Consumer interface {
	ConsumeEvents(ctx context.Context, handler amqp.Handler) error
}

// SyncWorker exports confirmed transactions to Google Sheets. Redelivered
// events that were already exported are skipped.
type SyncWorker struct {
	exporter sheets.Exporter
	logger   *log.Logger
	seen     *cache.LRUCache[string]
}

func NewSyncWorker(exporter sheets.Exporter, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncWorker{
		exporter: exporter,
		logger:   logger.WithComponent(log.ComponentWorker),
		seen:     cache.NewLRUCache[string](seenCacheSize, seenCacheTTL),
	}
}

// SeenCache exposes the redelivery cache so it can be swept by a cache.Manager.
func (w *SyncWorker) SeenCache() cache.Cleaner { return w.seen }

// Run consumes from c until ctx is cancelled.
func (w *SyncWorker) Run(ctx context.Context, c Consumer) error {
	w.logger.InfoContext(ctx, "Sync worker started", log.FieldOperation, log.OpStartup)
	err := c.ConsumeEvents(ctx, w.HandleEvent)
	if errors.Is(err, context.Canceled) {
		w.logger.InfoContext(ctx, "Sync worker stopped", log.FieldOperation, log.OpShutdown)
		return nil
	}
	return err
}

// HandleEvent processes one event. Errors ask the broker to redeliver.
func (w *SyncWorker) HandleEvent(ctx context.Context, e amqp.Event) error {
	if ref, ok := w.seen.Get(e.ID); ok {
		w.logger.DebugContext(ctx, "Skipping already processed event", "event_id", e.ID, "row_ref", ref)
		return nil
	}

	switch e.Type {
	case amqp.EventTransactionConfirmed:
		ref, err := w.export(ctx, e)
		if err != nil {
			return err
		}
		w.seen.Set(e.ID, ref)
	case amqp.EventCommitmentRetired:
		w.logger.InfoContext(ctx, "Installment plan finished",
			log.FieldEvent, e.Type,
			log.FieldUserID, e.UserID,
			log.FieldCommitmentID, e.Commitment.ID,
			"name", e.Commitment.Name)
		w.seen.Set(e.ID, "")
	default:
		w.logger.WarnContext(ctx, "Ignoring unknown event", log.FieldEvent, e.Type)
	}
	return nil
}

func (w *SyncWorker) export(ctx context.Context, e amqp.Event) (string, error) {
	row := sheets.RowFromTransaction(e.UserID, *e.Transaction)
	ref, err := w.exporter.Append(ctx, row)
	if errors.Is(err, sheets.ErrInvalidRow) {
		// Retrying cannot fix the payload.
		w.logger.ErrorContext(ctx, "Dropping unexportable transaction",
			log.FieldTransactionID, row.TransactionID, log.FieldError, err)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("export transaction %s: %w", row.TransactionID, err)
	}
	w.logger.InfoContext(ctx, "Transaction exported",
		log.FieldOperation, log.OpExport,
		log.FieldUserID, e.UserID,
		log.FieldTransactionID, row.TransactionID,
		log.FieldAmountCents, row.Amount.Cents,
		"row_ref", ref)
	return ref, nil
}
