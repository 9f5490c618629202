// Package commitments manages recurring incomes and fixed expenses.
package commitments

import (
	"errors"
	"strings"

	"finai/internal/core"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("commitment not found")

const (
	IncomePrefix       = "i-"
	FixedExpensePrefix = "f-"
)

// NewID returns a unique id carrying prefix.
func NewID(prefix string) string {
	return prefix + uuid.NewString()
}

// Registry holds the two commitment collections of a user. It is not safe for
// concurrent use.
type Registry struct {
	incomes []core.Income
	fixed   []core.FixedExpense
}

func New(incomes []core.Income, fixed []core.FixedExpense) *Registry {
	if incomes == nil {
		incomes = []core.Income{}
	}
	if fixed == nil {
		fixed = []core.FixedExpense{}
	}
	return &Registry{incomes: incomes, fixed: fixed}
}

// AddIncome validates and stores in. A missing id is generated.
func (r *Registry) AddIncome(in core.Income) (core.Income, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}
	if in.ID == "" {
		in.ID = NewID(IncomePrefix)
	}
	r.incomes = append(r.incomes, in)
	return in, nil
}

func (r *Registry) DeleteIncome(id string) error {
	for i, in := range r.incomes {
		if in.ID == id {
			r.incomes = append(r.incomes[:i], r.incomes[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (r *Registry) Incomes() []core.Income {
	return append([]core.Income{}, r.incomes...)
}

// AddFixedExpense validates and stores f. Installments start their countdown
// at TotalInstallments, or 1 when neither count is set.
func (r *Registry) AddFixedExpense(f core.FixedExpense) (core.FixedExpense, error) {
	f.Name = strings.TrimSpace(f.Name)
	if err := f.Validate(); err != nil {
		return core.FixedExpense{}, err
	}
	if f.ID == "" {
		f.ID = NewID(FixedExpensePrefix)
	}
	if f.Type == core.Installment {
		if f.TotalInstallments == nil || *f.TotalInstallments < 1 {
			f.TotalInstallments = core.IntPtr(1)
		}
		if f.RemainingMonths == nil {
			f.RemainingMonths = core.IntPtr(*f.TotalInstallments)
		}
	} else {
		f.RemainingMonths = nil
		f.TotalInstallments = nil
	}
	r.fixed = append(r.fixed, f)
	return f, nil
}

func (r *Registry) DeleteFixedExpense(id string) error {
	for i, f := range r.fixed {
		if f.ID == id {
			r.fixed = append(r.fixed[:i], r.fixed[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// FixedExpense looks up a fixed expense by id. A missing id is not an error.
func (r *Registry) FixedExpense(id string) (core.FixedExpense, bool) {
	for _, f := range r.fixed {
		if f.ID == id {
			return f.Clone(), true
		}
	}
	return core.FixedExpense{}, false
}

// SetRemaining overwrites the countdown of the fixed expense with id.
func (r *Registry) SetRemaining(id string, remaining int) bool {
	for i := range r.fixed {
		if r.fixed[i].ID == id {
			r.fixed[i].RemainingMonths = core.IntPtr(remaining)
			return true
		}
	}
	return false
}

func (r *Registry) FixedExpenses() []core.FixedExpense {
	out := make([]core.FixedExpense, 0, len(r.fixed))
	for _, f := range r.fixed {
		out = append(out, f.Clone())
	}
	return out
}

// Names lists income names followed by fixed expense names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.incomes)+len(r.fixed))
	for _, in := range r.incomes {
		names = append(names, in.Name)
	}
	for _, f := range r.fixed {
		names = append(names, f.Name)
	}
	return names
}

// Snapshot returns deep copies of both collections.
func (r *Registry) Snapshot() ([]core.Income, []core.FixedExpense) {
	s := core.UserSettings{Incomes: r.incomes, FixedExpenses: r.fixed}.Clone()
	return s.Incomes, s.FixedExpenses
}
