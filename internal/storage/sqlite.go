package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"finai/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps one row per user in profiles and ledgers, each holding a
// JSON document.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) LoadSettings(ctx context.Context, userID string) (*core.UserSettings, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT settings FROM profiles WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load settings: %w", err)
	}
	var settings core.UserSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, false, fmt.Errorf("decode settings: %w", err)
	}
	return &settings, true, nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, userID string, settings core.UserSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, settings, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET settings = excluded.settings, updated_at = excluded.updated_at`,
		userID, string(raw), s.now().UTC())
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	slog.DebugContext(ctx, "Settings saved", "user_id", userID, "bytes", len(raw))
	return nil
}

func (s *SQLiteStore) LoadLedger(ctx context.Context, userID string) ([]core.Transaction, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM ledgers WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load ledger: %w", err)
	}
	var txs []core.Transaction
	if err := json.Unmarshal([]byte(raw), &txs); err != nil {
		return nil, false, fmt.Errorf("decode ledger: %w", err)
	}
	return txs, true, nil
}

func (s *SQLiteStore) SaveLedger(ctx context.Context, userID string, txs []core.Transaction) error {
	if txs == nil {
		txs = []core.Transaction{}
	}
	raw, err := json.Marshal(txs)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledgers (user_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		userID, string(raw), s.now().UTC())
	if err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	slog.DebugContext(ctx, "Ledger saved", "user_id", userID, "transactions", len(txs))
	return nil
}
