package session

import (
	"context"
	"strings"
	"time"

	"finai/internal/core"
	"finai/internal/ledger"
	"finai/internal/log"
	"finai/internal/services"
)

func (s *Session) AddIncome(ctx context.Context, in core.Income) (core.Income, error) {
	var out core.Income
	err := s.mutate(func() error {
		var err error
		out, err = s.commitments.AddIncome(in)
		return err
	})
	if err == nil {
		s.logger.InfoContext(ctx, "Income added", log.FieldCommitmentID, out.ID, log.FieldAmountCents, out.Amount.Cents)
	}
	return out, err
}

func (s *Session) DeleteIncome(_ context.Context, id string) error {
	return s.mutate(func() error { return s.commitments.DeleteIncome(id) })
}

func (s *Session) Incomes() []core.Income {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitments.Incomes()
}

func (s *Session) AddFixedExpense(ctx context.Context, f core.FixedExpense) (core.FixedExpense, error) {
	var out core.FixedExpense
	err := s.mutate(func() error {
		if strings.TrimSpace(f.Category) == "" {
			f.Category = core.DefaultCategoryName
		}
		var err error
		out, err = s.commitments.AddFixedExpense(f)
		return err
	})
	if err == nil {
		s.logger.InfoContext(ctx, "Fixed expense added",
			log.FieldCommitmentID, out.ID, log.FieldAmountCents, out.Amount.Cents, "type", out.Type)
	}
	return out, err
}

func (s *Session) DeleteFixedExpense(_ context.Context, id string) error {
	return s.mutate(func() error { return s.commitments.DeleteFixedExpense(id) })
}

func (s *Session) FixedExpenses() []core.FixedExpense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitments.FixedExpenses()
}

func (s *Session) AddCategory(_ context.Context, name, icon, color string) (core.Category, error) {
	var out core.Category
	err := s.mutate(func() error {
		var err error
		out, err = s.categories.Add(name, icon, color)
		return err
	})
	return out, err
}

func (s *Session) DeleteCategory(_ context.Context, id string) error {
	return s.mutate(func() error { return s.categories.Delete(id) })
}

func (s *Session) Categories() []core.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.categories.List()
}

// Settings returns a copy of the persisted configuration root.
func (s *Session) Settings() core.UserSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Filter narrows Transactions. Zero fields match everything; Status
// core.StatusStaging matches every pending status.
type Filter struct {
	Status core.Status
	Year   int
	Month  time.Month
	Query  string
}

func (f Filter) hasMonth() bool { return f.Year > 0 && f.Month >= time.January && f.Month <= time.December }

// Transactions lists the ledger newest first. Confirmed transactions of a
// given month are ordered by date, as in the history view.
func (s *Session) Transactions(f Filter) []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.Status == core.StatusConfirmed && f.hasMonth() {
		return s.ledger.History(f.Year, f.Month, f.Query)
	}

	var txs []core.Transaction
	if f.Status != "" {
		txs = s.ledger.Filter(f.Status)
	} else {
		txs = s.ledger.All()
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := txs[:0]
	for _, tx := range txs {
		if f.hasMonth() && !tx.InMonth(f.Year, f.Month) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(tx.Merchant), q) &&
			!strings.Contains(strings.ToLower(tx.Category), q) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func (s *Session) Transaction(id string) (core.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Get(id)
}

// TransactionView is a transaction with its category resolved for display.
// A category that was deleted shows as core.UnknownCategory.
type TransactionView struct {
	core.Transaction
	CategoryInfo core.Category `json:"category_info"`
}

// DescribeTransactions is Transactions with categories resolved.
func (s *Session) DescribeTransactions(f Filter) []TransactionView {
	txs := s.Transactions(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TransactionView, len(txs))
	for i, tx := range txs {
		out[i] = TransactionView{Transaction: tx, CategoryInfo: s.categories.Lookup(tx.Category)}
	}
	return out
}

func (s *Session) DescribeTransaction(id string) (TransactionView, bool) {
	tx, ok := s.Transaction(id)
	if !ok {
		return TransactionView{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return TransactionView{Transaction: tx, CategoryInfo: s.categories.Lookup(tx.Category)}, true
}

func (s *Session) Months() []ledger.Month {
	now := s.deps.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Months(now)
}

func (s *Session) Summary() services.Summary {
	now := s.deps.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := s.metrics.Summarize(s.ledger.All(), s.commitments.Incomes(), s.commitments.FixedExpenses(), now)
	for i, ct := range sum.Categories {
		c := s.categories.Lookup(ct.Category)
		sum.Categories[i].Icon = c.Icon
		sum.Categories[i].Color = c.Color
	}
	return sum
}

func (s *Session) DailyFlow() []services.DailyPoint {
	now := s.deps.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics.DailyFlow(s.ledger.All(), now)
}

func (s *Session) Project(months int) (services.Projection, error) {
	now := s.deps.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics.Project(s.commitments.Incomes(), s.commitments.FixedExpenses(), months, now)
}
