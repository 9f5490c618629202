package http

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"finai/internal/categories"
	"finai/internal/commitments"
	"finai/internal/core"
	"finai/internal/ledger"
	"finai/internal/log"
	"finai/internal/middleware/trace"
	"finai/internal/services"
	"finai/internal/session"
)

const (
	userIDHeader   = "X-User-ID"
	userNameHeader = "X-User-Name"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, commitments.ErrNotFound),
		errors.Is(err, categories.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotPending),
		errors.Is(err, session.ErrNotConfirmable),
		errors.Is(err, categories.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDay),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidDirection),
		errors.Is(err, core.ErrInvalidStatus),
		errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, session.ErrEmptyMessage),
		errors.Is(err, services.ErrInvalidProjectionRange),
		errors.Is(err, ErrInvalidImage),
		errors.Is(err, ErrInvalidMonth):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and writes the error envelope. The
// message of a 5xx is generic so internals do not leak; it carries the
// request id instead.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		ctx := r.Context()
		logger := log.FromContext(ctx)
		log.NewStructuredLogger(logger).LogError(ctx, "Request failed", err, logger.Component(), r.Pattern, nil)
		msg = http.StatusText(status)
		if id := trace.GetRequestID(ctx); id != "" {
			msg += " (request " + id + ")"
		}
	}

	var b *ResponseBuilder
	switch status {
	case http.StatusNotFound:
		b = NotFoundError(msg)
	case http.StatusConflict:
		b = ConflictError(msg)
	case http.StatusUnprocessableEntity:
		b = UnprocessableEntityError(msg)
	case http.StatusInternalServerError:
		b = InternalServerError(msg)
	default:
		b = ErrorResponse(status, msg)
	}
	b.Write(w)
}

// writeData writes v with the session's sync warning, if any.
func writeData(w http.ResponseWriter, s *session.Session, status int, v any) {
	NewResponse().Status(status).Warning(s.SyncStatus().Warning).Data(v).Write(w)
}

// userFromRequest returns the caller identity. Authentication happens
// upstream; the gateway forwards the user in headers.
func userFromRequest(r *http.Request) (id, name string) {
	id = sanitizeInput(r.Header.Get(userIDHeader))
	name = sanitizeInput(r.Header.Get(userNameHeader))
	if name == "" {
		name = id
	}
	return id, name
}

// clientIP returns the caller address, preferring proxy headers.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
