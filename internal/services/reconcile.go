package services

import (
	"finai/internal/core"
)

// CommitmentStore is the part of the commitment registry reconciliation needs.
type CommitmentStore interface {
	FixedExpense(id string) (core.FixedExpense, bool)
	SetRemaining(id string, remaining int) bool
	DeleteFixedExpense(id string) error
}

// Reconciliation describes what confirming a transaction did to its parent.
type Reconciliation struct {
	ParentID  string
	Remaining int
	Retired   bool
	Retiree   *core.FixedExpense
}

// Reconciler advances installment plans as their transactions are confirmed.
type Reconciler struct{}

func NewReconciler() *Reconciler { return &Reconciler{} }

// OnTransactionConfirmed decrements the countdown of the fixed expense that tx
// points at and retires installments that reach zero. It reports false when
// tx carries no installment link or the parent no longer exists.
func (Reconciler) OnTransactionConfirmed(tx core.Transaction, store CommitmentStore) (Reconciliation, bool) {
	if tx.InstallmentInfo == nil {
		return Reconciliation{}, false
	}
	parentID := tx.InstallmentInfo.ParentID
	parent, ok := store.FixedExpense(parentID)
	if !ok {
		return Reconciliation{}, false
	}

	remaining := parent.Remaining() - 1
	out := Reconciliation{ParentID: parentID, Remaining: remaining}
	if parent.Type == core.Installment && remaining <= 0 {
		if err := store.DeleteFixedExpense(parentID); err == nil {
			parent.RemainingMonths = core.IntPtr(remaining)
			out.Retired = true
			out.Retiree = &parent
		}
		return out, true
	}
	store.SetRemaining(parentID, remaining)
	return out, true
}
