// Package storage persists each user's settings and ledger as two
// independent documents, replaced wholesale on every save.
package storage

import (
	"context"
	"errors"

	"finai/internal/core"
)

var ErrClosed = errors.New("store is closed")

// Store is the remote persistence port. Loads return found=false with a nil
// error for users that have never saved anything.
type Store interface {
	LoadSettings(ctx context.Context, userID string) (*core.UserSettings, bool, error)
	SaveSettings(ctx context.Context, userID string, settings core.UserSettings) error
	LoadLedger(ctx context.Context, userID string) ([]core.Transaction, bool, error)
	SaveLedger(ctx context.Context, userID string, txs []core.Transaction) error
	Close() error
}
