package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"finai/internal/log"
	"finai/internal/middleware/ratelimit"
	"finai/internal/middleware/trace"
	"finai/internal/session"
)

// SessionProvider hands out the live session of a user. The session stays
// open until release is called.
type SessionProvider interface {
	Acquire(ctx context.Context, userID, userName string) (s *session.Session, release func(), err error)
}

type Deps struct {
	Sessions SessionProvider
	// Limiter throttles chat messages per user. Nil disables it.
	Limiter *ratelimit.Limiter
	Logger  *log.Logger
	Now     func() time.Time
}

type Server struct {
	http.Server
	sessions SessionProvider
	limiter  *ratelimit.Limiter
	logger   *log.Logger
	trace    *trace.Middleware
	now      func() time.Time

	shutdownOnce sync.Once
}

// sessionHandler is a handler that runs against the caller's session.
type sessionHandler func(w http.ResponseWriter, r *http.Request, s *session.Session)

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{
		sessions: deps.Sessions,
		limiter:  deps.Limiter,
		logger:   deps.Logger.WithComponent(log.ComponentHTTP),
		trace:    trace.NewMiddleware(deps.Logger, clientIP),
		now:      deps.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.Handle("POST /api/messages", s.rateLimited(s.withSession(s.handleMessage)))

	mux.Handle("GET /api/transactions", s.withSession(s.handleListTransactions))
	mux.Handle("GET /api/transactions/{id}", s.withSession(s.handleGetTransaction))
	mux.Handle("POST /api/transactions/{id}/confirm", s.withSession(s.handleConfirm))
	mux.Handle("PATCH /api/transactions/{id}", s.withSession(s.handleEdit))
	mux.Handle("DELETE /api/transactions/{id}", s.withSession(s.handleReject))
	mux.Handle("GET /api/months", s.withSession(s.handleMonths))

	mux.Handle("GET /api/incomes", s.withSession(s.handleListIncomes))
	mux.Handle("POST /api/incomes", s.withSession(s.handleCreateIncome))
	mux.Handle("DELETE /api/incomes/{id}", s.withSession(s.handleDeleteIncome))

	mux.Handle("GET /api/fixed-expenses", s.withSession(s.handleListFixedExpenses))
	mux.Handle("POST /api/fixed-expenses", s.withSession(s.handleCreateFixedExpense))
	mux.Handle("DELETE /api/fixed-expenses/{id}", s.withSession(s.handleDeleteFixedExpense))

	mux.Handle("GET /api/categories", s.withSession(s.handleListCategories))
	mux.Handle("POST /api/categories", s.withSession(s.handleCreateCategory))
	mux.Handle("DELETE /api/categories/{id}", s.withSession(s.handleDeleteCategory))

	mux.Handle("GET /api/metrics", s.withSession(s.handleMetrics))
	mux.Handle("GET /api/metrics/daily", s.withSession(s.handleDailyFlow))
	mux.Handle("GET /api/projection", s.withSession(s.handleProjection))

	mux.Handle("GET /api/sync", s.withSession(s.handleSyncStatus))
	mux.Handle("POST /api/sync", s.withSession(s.handleFlush))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.trace.Middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Chat requests wait on the classifier.
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}
	return s
}

// withSession resolves the caller and their session before running h.
func (s *Server) withSession(h sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, userName := userFromRequest(r)
		if userID == "" {
			UnauthorizedError("missing " + userIDHeader + " header").Write(w)
			return
		}
		sess, release, err := s.sessions.Acquire(r.Context(), userID, userName)
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer release()
		ctx := log.WithContext(r.Context(), log.FromContext(r.Context()).With(log.FieldUserID, userID))
		h(w, r.WithContext(ctx), sess)
	})
}

// rateLimited applies the per-user limiter, when configured.
func (s *Server) rateLimited(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	extract := func(r *http.Request) string {
		id, _ := userFromRequest(r)
		return id
	}
	onLimit := func(w http.ResponseWriter, r *http.Request) {
		id, _ := userFromRequest(r)
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded", log.FieldUserID, id)
		ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.").Write(w)
	}
	return s.limiter.Middleware(extract, onLimit)(next)
}

// Shutdown stops the listener, then the limiter, then flushes every live
// session when the provider supports it.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
		if s.limiter != nil {
			s.limiter.Stop()
		}
		if c, ok := s.sessions.(interface{ Close() }); ok {
			c.Close()
		}
		s.logger.InfoContext(ctx, "HTTP server stopped", log.FieldOperation, log.OpShutdown)
	})
	return shutdownErr
}

// TraceMetrics reports request counters from the trace middleware.
func (s *Server) TraceMetrics() trace.Metrics { return s.trace.GetMetrics() }

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
