package services

import (
	"errors"
	"sort"
	"time"

	"finai/internal/core"

	"github.com/shopspring/decimal"
)

var ErrInvalidProjectionRange = errors.New("projection range must be 1, 3 or 6 months")

// ProjectionRanges lists the supported projection horizons in months.
var ProjectionRanges = []int{1, 3, 6}

// CategoryTotal is one row of the spending breakdown. Icon and Color are
// filled in by the caller, which knows the user's categories.
type CategoryTotal struct {
	Category string `json:"category"`
	Icon     string `json:"icon,omitempty"`
	Color    string `json:"color,omitempty"`
	Total    int64  `json:"total_cents"`
}

// Summary is the month-to-date dashboard snapshot. Money fields are cents.
type Summary struct {
	Year                 int             `json:"year"`
	Month                time.Month      `json:"month"`
	Inflow               int64           `json:"inflow_cents"`
	Outflow              int64           `json:"outflow_cents"`
	Available            int64           `json:"available_cents"`
	EffectiveIncome      int64           `json:"effective_income_cents"`
	Balance              int64           `json:"balance_cents"`
	SavingsRate          float64         `json:"savings_rate"`
	FixedCommitmentRatio float64         `json:"fixed_commitment_ratio"`
	FixedTotal           int64           `json:"fixed_total_cents"`
	Categories           []CategoryTotal `json:"categories"`
	IncomeCount          int             `json:"income_count"`
	SubscriptionCount    int             `json:"subscription_count"`
	InstallmentCount     int             `json:"installment_count"`
	PendingCount         int             `json:"pending_count"`
}

type DailyPoint struct {
	Day     int   `json:"day"`
	Inflow  int64 `json:"inflow_cents"`
	Outflow int64 `json:"outflow_cents"`
}

type ProjectedMonth struct {
	Offset  int        `json:"offset"`
	Year    int        `json:"year"`
	Month   time.Month `json:"month"`
	Income  int64      `json:"income_cents"`
	Expense int64      `json:"expense_cents"`
	Balance int64      `json:"balance_cents"`
}

type ProjectionTotal struct {
	Income  int64 `json:"income_cents"`
	Expense int64 `json:"expense_cents"`
	Balance int64 `json:"balance_cents"`
}

type Projection struct {
	Months []ProjectedMonth `json:"months"`
	Total  ProjectionTotal  `json:"total"`
}

// Metrics derives read-only aggregates. Only confirmed transactions count.
type Metrics struct{}

func NewMetrics() *Metrics { return &Metrics{} }

// Summarize computes the snapshot for the calendar month of now.
func (Metrics) Summarize(txs []core.Transaction, incomes []core.Income, fixed []core.FixedExpense, now time.Time) Summary {
	s := Summary{Year: now.Year(), Month: now.Month(), Categories: []CategoryTotal{}}
	byCategory := map[string]int64{}

	for _, tx := range txs {
		if tx.Status.Pending() {
			s.PendingCount++
		}
		if tx.Status != core.StatusConfirmed {
			continue
		}
		s.Available += tx.Signed()
		if !tx.InMonth(now.Year(), now.Month()) {
			continue
		}
		if tx.Direction == core.Inflow {
			s.Inflow += tx.Amount.Cents
		} else {
			s.Outflow += tx.Amount.Cents
			byCategory[tx.Category] += tx.Amount.Cents
		}
	}

	var configured int64
	for _, in := range incomes {
		configured += in.Amount.Cents
	}
	s.IncomeCount = len(incomes)
	for _, f := range fixed {
		s.FixedTotal += f.Amount.Cents
		if f.Type == core.Installment {
			s.InstallmentCount++
		} else {
			s.SubscriptionCount++
		}
	}

	s.EffectiveIncome = max(s.Inflow, configured)
	s.Balance = s.EffectiveIncome - s.Outflow
	s.SavingsRate = percent(s.EffectiveIncome-s.Outflow, s.EffectiveIncome)
	s.FixedCommitmentRatio = percent(s.FixedTotal, s.EffectiveIncome)

	for name, total := range byCategory {
		s.Categories = append(s.Categories, CategoryTotal{Category: name, Total: total})
	}
	sort.Slice(s.Categories, func(i, j int) bool {
		if s.Categories[i].Total != s.Categories[j].Total {
			return s.Categories[i].Total > s.Categories[j].Total
		}
		return s.Categories[i].Category < s.Categories[j].Category
	})
	return s
}

// DailyFlow returns confirmed inflow and outflow per day of the current month,
// from day 1 through today.
func (Metrics) DailyFlow(txs []core.Transaction, now time.Time) []DailyPoint {
	points := make([]DailyPoint, now.Day())
	for i := range points {
		points[i].Day = i + 1
	}
	for _, tx := range txs {
		if tx.Status != core.StatusConfirmed || !tx.InMonth(now.Year(), now.Month()) {
			continue
		}
		d := tx.Date.Day()
		if d > len(points) {
			continue
		}
		if tx.Direction == core.Inflow {
			points[d-1].Inflow += tx.Amount.Cents
		} else {
			points[d-1].Outflow += tx.Amount.Cents
		}
	}
	return points
}

// Project simulates the next n months from the current commitments. Incomes
// are flat; an installment counts at offset i only while its remaining count
// exceeds i. Nothing is mutated.
func (Metrics) Project(incomes []core.Income, fixed []core.FixedExpense, n int, now time.Time) (Projection, error) {
	if !validRange(n) {
		return Projection{}, ErrInvalidProjectionRange
	}
	var income int64
	for _, in := range incomes {
		income += in.Amount.Cents
	}

	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	p := Projection{Months: make([]ProjectedMonth, 0, n)}
	for i := 0; i < n; i++ {
		var expense int64
		for _, f := range fixed {
			// An installment without a known remaining count is not projected.
			if f.Type == core.Installment && (f.RemainingMonths == nil || *f.RemainingMonths <= i) {
				continue
			}
			expense += f.Amount.Cents
		}
		m := first.AddDate(0, i, 0)
		p.Months = append(p.Months, ProjectedMonth{
			Offset:  i,
			Year:    m.Year(),
			Month:   m.Month(),
			Income:  income,
			Expense: expense,
			Balance: income - expense,
		})
		p.Total.Income += income
		p.Total.Expense += expense
	}
	p.Total.Balance = p.Total.Income - p.Total.Expense
	return p, nil
}

func validRange(n int) bool {
	for _, r := range ProjectionRanges {
		if n == r {
			return true
		}
	}
	return false
}

// percent returns part/whole*100 rounded to two places, or 0 for an empty whole.
func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return decimal.NewFromInt(part).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(whole)).
		Round(2).
		InexactFloat64()
}
