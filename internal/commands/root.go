// Package commands wires configuration, storage and the domain services into
// the finai command line.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"finai/internal/amqp"
	"finai/internal/config"
	"finai/internal/log"
	"finai/internal/oracle"
	"finai/internal/receipts"
	"finai/internal/session"
	"finai/internal/storage"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

// ClassifierFactory builds the classifier every session talks to.
type ClassifierFactory func(ctx context.Context, cfg *config.Config, logger *log.Logger) (oracle.Classifier, error)

type app struct {
	cfg           *config.Config
	logger        *log.Logger
	newClassifier ClassifierFactory
	now           func() time.Time
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{newClassifier: geminiClassifier, now: time.Now})
}

func newRootCommand(a *app) *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:     "finai",
		Short:   "Conversational personal finance assistant",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional; production reads the real environment.
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a.cfg = cfg
			// Logs go to stderr so JSON printed by chat and report stays clean.
			a.logger = log.New(log.Config{
				Level:  log.ParseLevel(cfg.LogLevel),
				Output: cmd.ErrOrStderr(),
			})
			log.SetDefault(a.logger)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCommand(a))
	rootCmd.AddCommand(newWorkerCommand(a))
	rootCmd.AddCommand(newChatCommand(a))
	rootCmd.AddCommand(newReportCommand(a))
	rootCmd.AddCommand(newRecurringCommand(a))

	return rootCmd
}

// geminiClassifier talks to Gemini behind the fallback wrapper. Without an
// API key every message degrades to a clarification.
func geminiClassifier(ctx context.Context, cfg *config.Config, logger *log.Logger) (oracle.Classifier, error) {
	if cfg.GeminiAPIKey == "" {
		logger.Warn("Gemini API key not set, every message will ask for clarification")
		offline := oracle.Func(func(context.Context, oracle.Request) (oracle.Result, error) {
			return oracle.Result{}, errors.New("classifier not configured")
		})
		return oracle.NewFallback(offline, cfg.GeminiTimeout, logger), nil
	}
	g, err := oracle.NewGeminiClassifier(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, fmt.Errorf("create gemini classifier: %w", err)
	}
	return oracle.NewFallback(g, cfg.GeminiTimeout, logger), nil
}

// sessionDeps opens the collaborators shared by every session. The returned
// cleanup releases them in reverse order.
func (a *app) sessionDeps(ctx context.Context) (session.Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, err := storage.Open(storage.Config{
		Type:       storage.BackendType(a.cfg.DataBackend),
		SQLitePath: a.cfg.SQLiteDBPath,
	})
	if err != nil {
		return session.Deps{}, nil, fmt.Errorf("open %s store: %w", a.cfg.DataBackend, err)
	}
	closers = append(closers, func() {
		if err := store.Close(); err != nil {
			a.logger.Error("Failed to close store", log.FieldError, err)
		}
	})
	a.logger.Info("Storage backend initialized", "backend", a.cfg.DataBackend)

	classifier, err := a.newClassifier(ctx, a.cfg, a.logger)
	if err != nil {
		cleanup()
		return session.Deps{}, nil, err
	}

	deps := session.Deps{
		Store:         store,
		Classifier:    classifier,
		Logger:        a.logger,
		SaveDelay:     a.cfg.SaveDelay,
		Now:           a.now,
		AutoRecurring: a.cfg.AutoRecurring,
	}

	if a.cfg.AMQPURL != "" {
		client, err := amqp.NewClient(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue, a.logger)
		if err != nil {
			// Events are best effort; the ledger still works without a broker.
			a.logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			closers = append(closers, func() { _ = client.Close() })
			deps.Publisher = amqp.NewPublisher(client)
			a.logger.Info("AMQP client initialized", "exchange", a.cfg.AMQPExchange)
		}
	} else {
		a.logger.Info("AMQP disabled - confirmed transactions will not be exported")
	}

	if a.cfg.ReceiptsBucket != "" {
		archiver, closeGCS, err := receipts.NewGCSArchiver(ctx, a.cfg.ReceiptsBucket, a.logger)
		if err != nil {
			a.logger.Warn("Failed to initialize receipt archive, continuing without it", log.FieldError, err)
		} else {
			closers = append(closers, func() { _ = closeGCS() })
			deps.Receipts = archiver
			a.logger.Info("Receipt archive initialized", "bucket", a.cfg.ReceiptsBucket)
		}
	}

	return deps, cleanup, nil
}

// userSession opens the session of one user for a one-shot command. The
// returned close flushes it and releases everything sessionDeps opened.
func (a *app) userSession(ctx context.Context, userID, userName string) (*session.Session, func() error, error) {
	deps, cleanup, err := a.sessionDeps(ctx)
	if err != nil {
		return nil, nil, err
	}
	if userName == "" {
		userName = userID
	}
	sess, err := session.Open(ctx, userID, userName, deps)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closeFn := func() error {
		defer cleanup()
		return sess.Close(ctx)
	}
	return sess, closeFn, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
