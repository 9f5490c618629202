package storage

import (
	"context"
	"encoding/json"
	"sync"

	"finai/internal/core"
)

// MemoryStore keeps documents in process. Documents round-trip through JSON so
// callers never share memory with the store.
type MemoryStore struct {
	mu       sync.Mutex
	settings map[string][]byte
	ledgers  map[string][]byte
	closed   bool

	// FailLoad and FailSave, when set, are returned by the matching calls.
	FailLoad error
	FailSave error

	saves int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settings: make(map[string][]byte),
		ledgers:  make(map[string][]byte),
	}
}

func (m *MemoryStore) LoadSettings(_ context.Context, userID string) (*core.UserSettings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(m.FailLoad); err != nil {
		return nil, false, err
	}
	raw, ok := m.settings[userID]
	if !ok {
		return nil, false, nil
	}
	var s core.UserSettings
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

func (m *MemoryStore) SaveSettings(_ context.Context, userID string, settings core.UserSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(m.FailSave); err != nil {
		return err
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	m.settings[userID] = raw
	m.saves++
	return nil
}

func (m *MemoryStore) LoadLedger(_ context.Context, userID string) ([]core.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(m.FailLoad); err != nil {
		return nil, false, err
	}
	raw, ok := m.ledgers[userID]
	if !ok {
		return nil, false, nil
	}
	var txs []core.Transaction
	if err := json.Unmarshal(raw, &txs); err != nil {
		return nil, false, err
	}
	return txs, true, nil
}

func (m *MemoryStore) SaveLedger(_ context.Context, userID string, txs []core.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(m.FailSave); err != nil {
		return err
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	raw, err := json.Marshal(txs)
	if err != nil {
		return err
	}
	m.ledgers[userID] = raw
	m.saves++
	return nil
}

// SetFailSave swaps the injected save error under the store lock.
func (m *MemoryStore) SetFailSave(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailSave = err
}

// Saves counts successful document writes.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryStore) check(injected error) error {
	if m.closed {
		return ErrClosed
	}
	return injected
}
