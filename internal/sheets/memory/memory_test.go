package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"finai/internal/core"
	ports "finai/internal/sheets"
)

func TestStoreAppend(t *testing.T) {
	s := New()
	tx := core.Transaction{
		ID:          "t-1",
		Amount:      core.Cents(123),
		Merchant:    "Uber",
		Category:    "Transporte",
		Date:        time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC),
		Direction:   core.Outflow,
		IntentLabel: "Gasto",
	}

	ref, err := s.Append(context.Background(), ports.RowFromTransaction("u1", tx))
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	rows := s.Rows()
	if len(rows) != 1 || rows[0].Date != "2025-04-10" || rows[0].UserID != "u1" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestStoreAppendRejectsInvalidRows(t *testing.T) {
	s := New()
	if _, err := s.Append(context.Background(), ports.Row{UserID: "u1", Merchant: "x", Direction: core.Outflow}); !errors.Is(err, ports.ErrInvalidRow) {
		t.Fatalf("err = %v", err)
	}
	boom := errors.New("quota")
	s.SetFail(boom)
	row := ports.Row{UserID: "u1", Merchant: "x", Direction: core.Inflow, Amount: core.Cents(1)}
	if _, err := s.Append(context.Background(), row); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if len(s.Rows()) != 0 {
		t.Fatal("failed appends must not be stored")
	}
}
