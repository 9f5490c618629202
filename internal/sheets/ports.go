// Package sheets exports confirmed transactions to a spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"finai/internal/core"
)

const DateLayout = "2006-01-02"

var ErrInvalidRow = errors.New("invalid export row")

// Row is one exported transaction. Amount is unsigned; Direction carries the
// sign.
type Row struct {
	TransactionID string
	Date          string
	Merchant      string
	Category      string
	Direction     core.Direction
	Amount        core.Money
	IntentLabel   string
	UserID        string
}

// RowFromTransaction flattens tx for export on behalf of userID.
func RowFromTransaction(userID string, tx core.Transaction) Row {
	return Row{
		TransactionID: tx.ID,
		Date:          tx.Date.Format(DateLayout),
		Merchant:      tx.Merchant,
		Category:      tx.Category,
		Direction:     tx.Direction,
		Amount:        tx.Amount,
		IntentLabel:   tx.IntentLabel,
		UserID:        userID,
	}
}

func (r Row) Validate() error {
	switch {
	case strings.TrimSpace(r.UserID) == "":
		return fmt.Errorf("%w: missing user", ErrInvalidRow)
	case strings.TrimSpace(r.Merchant) == "":
		return fmt.Errorf("%w: missing merchant", ErrInvalidRow)
	case r.Amount.Cents <= 0:
		return fmt.Errorf("%w: %w", ErrInvalidRow, core.ErrInvalidAmount)
	case !r.Direction.Valid():
		return fmt.Errorf("%w: %w", ErrInvalidRow, core.ErrInvalidDirection)
	}
	return nil
}

// Values renders the spreadsheet columns:
// date, merchant, category, direction, amount, intent, user.
func (r Row) Values() []any {
	return []any{
		r.Date,
		r.Merchant,
		r.Category,
		string(r.Direction),
		r.Amount.Decimal().StringFixed(2),
		r.IntentLabel,
		r.UserID,
	}
}

// Exporter appends rows to the destination sheet and returns a reference to
// where the row landed.
type Exporter interface {
	Append(ctx context.Context, row Row) (rowRef string, err error)
}
