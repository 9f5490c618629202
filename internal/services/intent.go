// Package services holds the engines that turn classifications into ledger
// entries, reconcile installments and compute dashboard metrics.
package services

import (
	"strings"
	"time"

	"finai/internal/commitments"
	"finai/internal/core"
	"finai/internal/oracle"
)

const TransactionPrefix = "t-"

// DuplicateWarning is appended to the assistant message when an entry looks
// like one the user already has.
const DuplicateWarning = "\n⚠️ Notei que você já possui um lançamento similar na nuvem. Deseja manter ambos ou atualizar o anterior?"

// Resolution is what a single classification produces. At most one of Income
// and FixedExpense is set, and Transaction is set for every non-clarification.
type Resolution struct {
	Type             oracle.Type
	Income           *core.Income
	FixedExpense     *core.FixedExpense
	Transaction      *core.Transaction
	AssistantMessage string
}

// Empty reports whether nothing is to be recorded.
func (r Resolution) Empty() bool {
	return r.Income == nil && r.FixedExpense == nil && r.Transaction == nil
}

// IntentResolver maps oracle results onto new records. It never touches state;
// callers apply the returned records.
type IntentResolver struct {
	newID func(prefix string) string
}

func NewIntentResolver() *IntentResolver {
	return &IntentResolver{newID: commitments.NewID}
}

// Resolve turns res into records dated relative to now.
func (r *IntentResolver) Resolve(res oracle.Result, now time.Time) Resolution {
	p := res.Transaction
	if res.Type == oracle.Clarification || !res.Type.Valid() || malformed(p) {
		return Resolution{Type: oracle.Clarification, AssistantMessage: clarificationMessage(res)}
	}

	amount := core.MoneyFromFloat(p.Amount)
	merchant := strings.TrimSpace(p.Merchant)
	category := strings.TrimSpace(p.Category)
	day, hasDay := statedDay(p.Day)
	commitmentDay := now.Day()
	date := now
	if hasDay {
		commitmentDay = day
		date = core.DayInMonth(now.Year(), now.Month(), day, now.Location())
	}

	out := Resolution{Type: res.Type, AssistantMessage: res.Response}
	tx := core.Transaction{
		ID:          r.newID(TransactionPrefix),
		Amount:      amount,
		Merchant:    merchant,
		Category:    orDefault(category, core.DefaultCategoryName),
		Date:        date,
		Direction:   direction(p.Direction, core.Outflow),
		Status:      core.StatusStaging,
		IntentLabel: res.IntentLabel,
	}

	switch res.Type {
	case oracle.FixedIncome:
		in := core.Income{
			ID:     r.newID(commitments.IncomePrefix),
			Name:   merchant,
			Amount: amount,
			Day:    commitmentDay,
		}
		out.Income = &in
		tx.Direction = core.Inflow
		tx.CommitmentID = in.ID
	case oracle.FixedExpense:
		f := core.FixedExpense{
			ID:       r.newID(commitments.FixedExpensePrefix),
			Name:     merchant,
			Amount:   amount,
			Category: orDefault(category, core.DefaultCategoryName),
			Day:      commitmentDay,
			Type:     core.Subscription,
		}
		out.FixedExpense = &f
		tx.Direction = core.Outflow
		tx.CommitmentID = f.ID
	case oracle.Installment:
		total := 1
		if p.TotalInstallments != nil && *p.TotalInstallments > 0 {
			total = *p.TotalInstallments
		}
		f := core.FixedExpense{
			ID:                r.newID(commitments.FixedExpensePrefix),
			Name:              merchant,
			Amount:            amount,
			Category:          orDefault(category, core.DefaultInstallmentCategory),
			Day:               commitmentDay,
			Type:              core.Installment,
			RemainingMonths:   core.IntPtr(total),
			TotalInstallments: core.IntPtr(total),
		}
		out.FixedExpense = &f
		tx.InstallmentInfo = &core.InstallmentInfo{Current: 1, Total: total, ParentID: f.ID}
		tx.CommitmentID = f.ID
	}
	out.Transaction = &tx

	if res.IsPotentialDuplicate {
		out.AssistantMessage += DuplicateWarning
	}
	return out
}

func malformed(p *oracle.Payload) bool {
	return p == nil || p.Amount <= 0 || strings.TrimSpace(p.Merchant) == "" ||
		core.MoneyFromFloat(p.Amount).Cents <= 0
}

func clarificationMessage(res oracle.Result) string {
	if strings.TrimSpace(res.Response) == "" {
		return oracle.FallbackResponse
	}
	return res.Response
}

// statedDay returns the day the user mentioned, ignoring values no month has.
func statedDay(day *int) (int, bool) {
	if day == nil || *day < 1 || *day > 31 {
		return 0, false
	}
	return *day, true
}

func direction(s string, fallback core.Direction) core.Direction {
	d := core.Direction(strings.ToLower(strings.TrimSpace(s)))
	if d.Valid() {
		return d
	}
	return fallback
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
