// Package ledger holds a user's transactions, newest first.
package ledger

import (
	"errors"
	"sort"
	"strings"
	"time"

	"finai/internal/core"
)

var ErrNotFound = errors.New("transaction not found")

// Month identifies a calendar month.
type Month struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

func MonthOf(t time.Time) Month { return Month{Year: t.Year(), Month: t.Month()} }

func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

// Ledger is an ordered collection of transactions. It is not safe for
// concurrent use.
type Ledger struct {
	txs []core.Transaction
}

func New(txs []core.Transaction) *Ledger {
	if txs == nil {
		txs = []core.Transaction{}
	}
	return &Ledger{txs: txs}
}

func (l *Ledger) Len() int { return len(l.txs) }

// All returns a copy of every transaction in display order.
func (l *Ledger) All() []core.Transaction {
	out := make([]core.Transaction, len(l.txs))
	for i, tx := range l.txs {
		out[i] = tx.Clone()
	}
	return out
}

// Prepend inserts tx at the head of the ledger.
func (l *Ledger) Prepend(tx core.Transaction) {
	l.txs = append([]core.Transaction{tx}, l.txs...)
}

func (l *Ledger) Get(id string) (core.Transaction, bool) {
	i := l.index(id)
	if i < 0 {
		return core.Transaction{}, false
	}
	return l.txs[i].Clone(), true
}

// Update replaces the transaction with the same id, keeping its position.
func (l *Ledger) Update(tx core.Transaction) error {
	i := l.index(tx.ID)
	if i < 0 {
		return ErrNotFound
	}
	l.txs[i] = tx
	return nil
}

func (l *Ledger) Delete(id string) error {
	i := l.index(id)
	if i < 0 {
		return ErrNotFound
	}
	l.txs = append(l.txs[:i], l.txs[i+1:]...)
	return nil
}

func (l *Ledger) index(id string) int {
	for i, tx := range l.txs {
		if tx.ID == id {
			return i
		}
	}
	return -1
}

// Filter returns the transactions matching status. Pending matches both
// staging and pending_fixed when status is core.StatusStaging.
func (l *Ledger) Filter(status core.Status) []core.Transaction {
	return l.where(func(tx core.Transaction) bool {
		if status == core.StatusStaging {
			return tx.Status.Pending()
		}
		return tx.Status == status
	})
}

func (l *Ledger) Pending() []core.Transaction {
	return l.where(func(tx core.Transaction) bool { return tx.Status.Pending() })
}

func (l *Ledger) Confirmed() []core.Transaction {
	return l.Filter(core.StatusConfirmed)
}

// InMonth returns the transactions of any status dated in year/month.
func (l *Ledger) InMonth(year int, month time.Month) []core.Transaction {
	return l.where(func(tx core.Transaction) bool { return tx.InMonth(year, month) })
}

// History returns confirmed transactions of the given month whose merchant or
// category contains search, newest date first. An empty search matches all.
func (l *Ledger) History(year int, month time.Month, search string) []core.Transaction {
	search = strings.ToLower(strings.TrimSpace(search))
	out := l.where(func(tx core.Transaction) bool {
		if tx.Status != core.StatusConfirmed || !tx.InMonth(year, month) {
			return false
		}
		if search == "" {
			return true
		}
		return strings.Contains(strings.ToLower(tx.Merchant), search) ||
			strings.Contains(strings.ToLower(tx.Category), search)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// Months lists the months that have at least one transaction plus the month
// of now, newest first.
func (l *Ledger) Months(now time.Time) []Month {
	seen := map[Month]bool{MonthOf(now): true}
	out := []Month{MonthOf(now)}
	for _, tx := range l.txs {
		m := MonthOf(tx.Date)
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[j].Before(out[i]) })
	return out
}

func (l *Ledger) where(keep func(core.Transaction) bool) []core.Transaction {
	out := []core.Transaction{}
	for _, tx := range l.txs {
		if keep(tx) {
			out = append(out, tx.Clone())
		}
	}
	return out
}
