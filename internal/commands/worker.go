package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"finai/internal/amqp"
	"finai/internal/cache"
	"finai/internal/log"
	"finai/internal/sheets"
	gsheet "finai/internal/sheets/google"
	"finai/internal/sheets/memory"
	"finai/internal/worker"
)

var errNoBroker = errors.New("worker needs an AMQP URL (FINAI_AMQP_URL)")

func newWorkerCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Export confirmed transactions from the broker to Google Sheets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.runWorker(ctx)
		},
	}
}

func (a *app) runWorker(ctx context.Context) error {
	logger := a.logger
	if a.cfg.AMQPURL == "" {
		return errNoBroker
	}
	logger.Info("Starting finai worker", log.FieldOperation, log.OpStartup)

	exporter, err := a.exporter(ctx)
	if err != nil {
		return err
	}

	client, err := amqp.NewClient(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	w := worker.NewSyncWorker(exporter, logger)
	caches := cache.NewManager(logger)
	caches.Register(w.SeenCache())
	caches.StartCleanup(cacheCleanupInterval)
	defer caches.Stop()

	return w.Run(ctx, client)
}

// exporter picks Google Sheets when a spreadsheet is configured. Otherwise
// rows are kept in memory, which only makes sense for local runs.
func (a *app) exporter(ctx context.Context) (sheets.Exporter, error) {
	if !a.cfg.SheetsEnabled() {
		a.logger.Warn("Google Sheets disabled - exported rows are kept in memory only")
		return memory.New(), nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   a.cfg.GoogleSpreadsheetID,
		SheetName:       a.cfg.GoogleSheetName,
		CredentialsFile: a.cfg.GoogleCredentialsFile,
		CredentialsJSON: a.cfg.GoogleCredentialsJSON,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("Google Sheets client initialized", "spreadsheet_id", a.cfg.GoogleSpreadsheetID)
	return client, nil
}
