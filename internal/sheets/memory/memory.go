package memory

import (
	"context"
	"fmt"
	"sync"

	ports "finai/internal/sheets"
)

// Store keeps exported rows in memory.
type Store struct {
	mu   sync.Mutex
	rows []ports.Row
	// Fail, when set, is returned by Append.
	Fail error
}

var _ ports.Exporter = (*Store)(nil)

func New() *Store { return &Store{} }

// Append stores the row and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, row ports.Row) (string, error) {
	if err := row.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return "", s.Fail
	}
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

func (s *Store) Rows() []ports.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.Row(nil), s.rows...)
}

// SetFail swaps the injected error.
func (s *Store) SetFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fail = err
}
