package http

import (
	"net/http"

	"finai/internal/core"
	"finai/internal/session"
)

type incomeRequest struct {
	Name string `json:"name"`
	amountInput
	Day int `json:"day"`
}

type fixedExpenseRequest struct {
	Name string `json:"name"`
	amountInput
	Category          string                `json:"category"`
	Day               int                   `json:"day"`
	Type              core.FixedExpenseType `json:"type"`
	TotalInstallments *int                  `json:"total_installments,omitempty"`
}

type categoryRequest struct {
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeData(w, sess, http.StatusOK, nonNil(sess.Incomes()))
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req incomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	amount, err := req.money()
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := sess.AddIncome(r.Context(), core.Income{
		Name:   sanitizeInput(req.Name),
		Amount: amount,
		Day:    req.Day,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, sess, http.StatusCreated, in)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.DeleteIncome(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	NoContent().Warning(sess.SyncStatus().Warning).Write(w)
}

func (s *Server) handleListFixedExpenses(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeData(w, sess, http.StatusOK, nonNil(sess.FixedExpenses()))
}

// handleCreateFixedExpense defaults the type to subscription. Installments
// start their countdown at total_installments.
func (s *Server) handleCreateFixedExpense(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req fixedExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	amount, err := req.money()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Type == "" {
		req.Type = core.Subscription
	}
	f, err := sess.AddFixedExpense(r.Context(), core.FixedExpense{
		Name:              sanitizeInput(req.Name),
		Amount:            amount,
		Category:          sanitizeInput(req.Category),
		Day:               req.Day,
		Type:              req.Type,
		TotalInstallments: req.TotalInstallments,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, sess, http.StatusCreated, f)
}

func (s *Server) handleDeleteFixedExpense(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.DeleteFixedExpense(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	NoContent().Warning(sess.SyncStatus().Warning).Write(w)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeData(w, sess, http.StatusOK, nonNil(sess.Categories()))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	c, err := sess.AddCategory(r.Context(), sanitizeInput(req.Name), sanitizeInput(req.Icon), sanitizeInput(req.Color))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, sess, http.StatusCreated, c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	NoContent().Warning(sess.SyncStatus().Warning).Write(w)
}
