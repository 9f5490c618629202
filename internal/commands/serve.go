package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"finai/internal/cache"
	apphttp "finai/internal/http"
	"finai/internal/log"
	"finai/internal/middleware/ratelimit"
	"finai/internal/session"
)

const (
	shutdownTimeout      = 30 * time.Second
	cacheCleanupInterval = time.Minute
)

func newServeCommand(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				a.cfg.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides config)")

	return cmd
}

func (a *app) serve(ctx context.Context) error {
	logger := a.logger
	logger.Info("Starting finai", log.FieldOperation, log.OpStartup, "port", a.cfg.Port)

	deps, cleanup, err := a.sessionDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	sessions := session.NewManager(deps, a.cfg.SessionCacheSize, a.cfg.SessionTTL)
	caches := cache.NewManager(logger)
	caches.Register(sessions.Cache())
	caches.StartCleanup(cacheCleanupInterval)
	defer caches.Stop()

	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: a.cfg.RateLimitPerMinute})

	srv := apphttp.NewServer(":"+a.cfg.Port, apphttp.Deps{
		Sessions: sessions,
		Limiter:  limiter,
		Logger:   logger,
		Now:      a.now,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
		logger.Error("Server failed", log.FieldError, serveErr)
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	// Shutdown also flushes every live session, so it runs on failure too.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", log.FieldError, err)
		return errors.Join(serveErr, err)
	}
	m := srv.TraceMetrics()
	logger.Info("Server stopped gracefully",
		"requests", m.TotalRequests,
		"avg_response_us", m.AverageResponseTime,
		"rate_limited", limiter.GetMetrics().Rejected)
	return serveErr
}
