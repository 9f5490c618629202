package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Inflow  Direction = "inflow"
	Outflow Direction = "outflow"
)

const (
	StatusStaging      Status = "staging"
	StatusPendingFixed Status = "pending_fixed"
	StatusConfirmed    Status = "confirmed"
	StatusRejected     Status = "rejected"
)

const (
	Subscription FixedExpenseType = "subscription"
	Installment  FixedExpenseType = "installment"
)

type (
	Direction        string
	Status           string
	FixedExpenseType string

	Category struct {
		ID    string `json:"id"`
		Name  string `json:"name"` // display key, referenced by transactions and fixed expenses
		Icon  string `json:"icon"`
		Color string `json:"color"`
	}

	// Income is a recurring inflow. It never expires.
	Income struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Amount Money  `json:"amount_cents"`
		Day    int    `json:"day"`
	}

	// FixedExpense is a recurring outflow. Installments carry a countdown in
	// RemainingMonths and are retired once it reaches zero.
	FixedExpense struct {
		ID                string           `json:"id"`
		Name              string           `json:"name"`
		Amount            Money            `json:"amount_cents"`
		Category          string           `json:"category"`
		Day               int              `json:"day"`
		Type              FixedExpenseType `json:"type"`
		RemainingMonths   *int             `json:"remaining_months,omitempty"`
		TotalInstallments *int             `json:"total_installments,omitempty"`
	}

	// InstallmentInfo links a transaction to its installment plan. ParentID is
	// a weak reference and may dangle once the plan is retired.
	InstallmentInfo struct {
		Current  int    `json:"current"`
		Total    int    `json:"total"`
		ParentID string `json:"parent_id"`
	}

	Transaction struct {
		ID              string           `json:"id"`
		Amount          Money            `json:"amount_cents"`
		Merchant        string           `json:"merchant"`
		Category        string           `json:"category"`
		Date            time.Time        `json:"date"`
		Direction       Direction        `json:"direction"`
		Status          Status           `json:"status"`
		IntentLabel     string           `json:"intent_label,omitempty"`
		RawInput        string           `json:"raw_input,omitempty"`
		InstallmentInfo *InstallmentInfo `json:"installment_info,omitempty"`
		// CommitmentID links the monthly instance of a recurring income or
		// fixed expense to its commitment. Weak reference, like ParentID.
		CommitmentID string `json:"commitment_id,omitempty"`
	}

	// UserSettings is the configuration root persisted as one document.
	UserSettings struct {
		Incomes       []Income       `json:"incomes"`
		FixedExpenses []FixedExpense `json:"fixed_expenses"`
		Categories    []Category     `json:"categories"`
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyName        = errors.New("empty name")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrInvalidType      = errors.New("invalid fixed expense type")
	ErrInvalidDate      = errors.New("invalid date")
)

func (d Direction) Valid() bool { return d == Inflow || d == Outflow }

func (s Status) Valid() bool {
	switch s {
	case StatusStaging, StatusPendingFixed, StatusConfirmed, StatusRejected:
		return true
	}
	return false
}

// Pending reports whether the transaction still awaits review. Staging and
// pending_fixed behave the same everywhere.
func (s Status) Pending() bool { return s == StatusStaging || s == StatusPendingFixed }

func (t FixedExpenseType) Valid() bool { return t == Subscription || t == Installment }

func validDay(day int) bool { return day >= 1 && day <= 31 }

func validName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	return nil
}

func (c Category) Validate() error {
	return validName(c.Name)
}

func (i Income) Validate() error {
	if err := validName(i.Name); err != nil {
		return err
	}
	if err := i.Amount.Validate(); err != nil {
		return err
	}
	if !validDay(i.Day) {
		return ErrInvalidDay
	}
	return nil
}

func (f FixedExpense) Validate() error {
	if err := validName(f.Name); err != nil {
		return err
	}
	if err := f.Amount.Validate(); err != nil {
		return err
	}
	if !validDay(f.Day) {
		return ErrInvalidDay
	}
	if !f.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

// Remaining returns the installment countdown, treating an absent value as 1.
func (f FixedExpense) Remaining() int {
	if f.RemainingMonths == nil {
		return 1
	}
	return *f.RemainingMonths
}

func (t Transaction) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Merchant) == "" {
		return ErrEmptyName
	}
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if !t.Direction.Valid() {
		return ErrInvalidDirection
	}
	if !t.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// Signed returns the amount in cents, negative for outflows.
func (t Transaction) Signed() int64 {
	if t.Direction == Inflow {
		return t.Amount.Cents
	}
	return -t.Amount.Cents
}

// InMonth reports whether the transaction date falls in the given calendar month.
func (t Transaction) InMonth(year int, month time.Month) bool {
	return t.Date.Year() == year && t.Date.Month() == month
}

// DefaultSettings returns the configuration a new user starts from.
func DefaultSettings() UserSettings {
	return UserSettings{
		Incomes:       []Income{},
		FixedExpenses: []FixedExpense{},
		Categories:    DefaultCategories(),
	}
}

// Clone returns a deep copy so callers can hand settings to a background
// writer without sharing slices or pointers.
func (s UserSettings) Clone() UserSettings {
	out := UserSettings{
		Incomes:       append([]Income{}, s.Incomes...),
		FixedExpenses: make([]FixedExpense, len(s.FixedExpenses)),
		Categories:    append([]Category{}, s.Categories...),
	}
	for i, f := range s.FixedExpenses {
		out.FixedExpenses[i] = f.Clone()
	}
	return out
}

// Clone returns a copy with its own countdown pointers.
func (f FixedExpense) Clone() FixedExpense {
	if f.RemainingMonths != nil {
		f.RemainingMonths = IntPtr(*f.RemainingMonths)
	}
	if f.TotalInstallments != nil {
		f.TotalInstallments = IntPtr(*f.TotalInstallments)
	}
	return f
}

// Clone returns a copy of the transaction with its own InstallmentInfo.
func (t Transaction) Clone() Transaction {
	if t.InstallmentInfo != nil {
		info := *t.InstallmentInfo
		t.InstallmentInfo = &info
	}
	return t
}

func IntPtr(v int) *int { return &v }

// DayInMonth builds midnight of the given day in year/month, clamping the day
// to the last day of that month.
func DayInMonth(year int, month time.Month, day int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}
