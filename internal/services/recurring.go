package services

import (
	"time"

	"finai/internal/commitments"
	"finai/internal/core"
)

// RecurringGenerator creates the monthly instances of recurring commitments
// as pending_fixed transactions awaiting review.
type RecurringGenerator struct {
	newID func(prefix string) string
}

func NewRecurringGenerator() *RecurringGenerator {
	return &RecurringGenerator{newID: commitments.NewID}
}

// IsDue reports whether a commitment paid on day has come due in the month of
// now. Days past the end of the month are clamped to its last day.
func IsDue(day int, now time.Time) bool {
	target := core.DayInMonth(now.Year(), now.Month(), day, now.Location())
	return now.Day() >= target.Day()
}

// Due returns a pending_fixed transaction for every commitment due this month
// that has no transaction linked to it in the same month yet.
func (g *RecurringGenerator) Due(settings core.UserSettings, txs []core.Transaction, now time.Time) []core.Transaction {
	posted := map[string]bool{}
	for _, tx := range txs {
		if !tx.InMonth(now.Year(), now.Month()) {
			continue
		}
		if tx.CommitmentID != "" {
			posted[tx.CommitmentID] = true
		}
		if tx.InstallmentInfo != nil {
			posted[tx.InstallmentInfo.ParentID] = true
		}
	}

	var out []core.Transaction
	for _, in := range settings.Incomes {
		if posted[in.ID] || !IsDue(in.Day, now) {
			continue
		}
		out = append(out, g.instance(in.ID, in.Name, in.Amount, core.DefaultCategoryName, in.Day, core.Inflow, now))
	}
	for _, f := range settings.FixedExpenses {
		if posted[f.ID] || !IsDue(f.Day, now) {
			continue
		}
		tx := g.instance(f.ID, f.Name, f.Amount, f.Category, f.Day, core.Outflow, now)
		if f.Type == core.Installment {
			total := f.Remaining()
			if f.TotalInstallments != nil {
				total = *f.TotalInstallments
			}
			tx.InstallmentInfo = &core.InstallmentInfo{
				Current:  max(total-f.Remaining()+1, 1),
				Total:    total,
				ParentID: f.ID,
			}
		}
		out = append(out, tx)
	}
	return out
}

func (g *RecurringGenerator) instance(commitmentID, name string, amount core.Money, category string, day int, dir core.Direction, now time.Time) core.Transaction {
	return core.Transaction{
		ID:           g.newID(TransactionPrefix),
		Amount:       amount,
		Merchant:     name,
		Category:     orDefault(category, core.DefaultCategoryName),
		Date:         core.DayInMonth(now.Year(), now.Month(), day, now.Location()),
		Direction:    dir,
		Status:       core.StatusPendingFixed,
		IntentLabel:  "Recorrente",
		CommitmentID: commitmentID,
	}
}
