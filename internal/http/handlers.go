package http

import (
	"errors"
	"net/http"

	"finai/internal/ledger"
	"finai/internal/log"
	"finai/internal/session"
)

type messageRequest struct {
	Text        string `json:"text"`
	ImageBase64 string `json:"image_base64,omitempty"`
	ImageMIME   string `json:"image_mime,omitempty"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	img, err := ParseImage(req.ImageBase64, req.ImageMIME)
	if err != nil {
		writeError(w, r, err)
		return
	}

	reply, err := sess.SubmitMessage(r.Context(), session.Message{Text: sanitizeInput(req.Text), Image: img})
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).DebugContext(r.Context(), "Message handled",
		log.FieldIntent, reply.Type, "message_id", reply.MessageID)
	writeData(w, sess, http.StatusOK, reply)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	f, err := ParseFilter(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, sess, http.StatusOK, nonNil(sess.DescribeTransactions(f)))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	tx, ok := sess.DescribeTransaction(r.PathValue("id"))
	if !ok {
		writeError(w, r, ledger.ErrNotFound)
		return
	}
	writeData(w, sess, http.StatusOK, tx)
}

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeData(w, sess, http.StatusOK, nonNil(sess.Months()))
}

// handleConfirm accepts an optional body of edits applied before confirming.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var edits *session.Edits
	var body session.Edits
	switch err := decodeJSON(w, r, &body); {
	case err == nil:
		edits = &body
	case errors.Is(err, errEmptyBody):
	default:
		BadRequestError(err.Error()).Write(w)
		return
	}

	out, err := sess.Confirm(r.Context(), r.PathValue("id"), edits)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, sess, http.StatusOK, out)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var edits session.Edits
	if err := decodeJSON(w, r, &edits); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	tx, err := sess.Edit(r.Context(), r.PathValue("id"), edits)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, sess, http.StatusOK, tx)
}

// handleReject discards a pending transaction. Confirmed history is not
// deletable through the API.
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.Reject(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	NoContent().Warning(sess.SyncStatus().Warning).Write(w)
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

