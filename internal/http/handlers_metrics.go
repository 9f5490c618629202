package http

import (
	"net/http"

	"finai/internal/session"
)

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeData(w, sess, http.StatusOK, sess.Summary())
}

func (s *Server) handleDailyFlow(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeData(w, sess, http.StatusOK, nonNil(sess.DailyFlow()))
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	months, err := parseMonths(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	p, err := sess.Project(months)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, sess, http.StatusOK, p)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeData(w, sess, http.StatusOK, sess.SyncStatus())
}

// handleFlush writes pending changes now. A failed write is reported in the
// returned status rather than as an error response; the session stays dirty
// and retries on the next change.
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	_ = sess.Flush(r.Context())
	writeData(w, sess, http.StatusOK, sess.SyncStatus())
}
