package storage

import (
	"fmt"
	"strings"
)

// BackendType selects the Store implementation.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string { return string(bt) }

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// BackendTypes returns all valid backend type strings.
func BackendTypes() []string {
	return []string{SQLiteBackend.String(), MemoryBackend.String()}
}

type Config struct {
	Type       BackendType
	SQLitePath string
}

func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type %q (valid: %s)", c.Type, strings.Join(BackendTypes(), ", "))
	}
	if c.Type == SQLiteBackend && c.SQLitePath == "" {
		return fmt.Errorf("sqlite path is required for sqlite backend")
	}
	return nil
}

// Open creates the Store selected by cfg.
func Open(cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case SQLiteBackend:
		s, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return NewMemoryStore(), nil
	}
}
