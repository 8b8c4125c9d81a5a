package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	cerrors "github.com/micurley/chunkdata/internal/errors"
)

// Manager maps connection aliases to stores, opening each on first use.
type Manager struct {
	mu     sync.Mutex
	paths  map[string]string
	stores map[string]*SQLiteStore
	schema Schema
	closed bool
}

// NewManager creates a manager for the given alias to database path map.
func NewManager(paths map[string]string, schema Schema) *Manager {
	copied := make(map[string]string, len(paths))
	for alias, p := range paths {
		copied[alias] = p
	}
	return &Manager{
		paths:  copied,
		stores: make(map[string]*SQLiteStore),
		schema: schema,
	}
}

// Aliases returns the configured aliases in sorted order.
func (m *Manager) Aliases() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	aliases := make([]string, 0, len(m.paths))
	for alias := range m.paths {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// Get returns the store for alias, opening it if needed. An empty alias
// means DefaultAlias.
func (m *Manager) Get(ctx context.Context, alias string) (*SQLiteStore, error) {
	if alias == "" {
		alias = DefaultAlias
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("store: manager is closed")
	}
	if s, ok := m.stores[alias]; ok {
		return s, nil
	}

	path, ok := m.paths[alias]
	if !ok {
		return nil, cerrors.NewValidationError(fmt.Sprintf("unknown database alias: %s", alias)).
			WithDetails(map[string]interface{}{"alias": alias})
	}

	s, err := OpenSQLite(ctx, path, m.schema)
	if err != nil {
		return nil, err
	}
	m.stores[alias] = s
	return s, nil
}

// Close closes every opened store.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var lastErr error
	for alias, s := range m.stores {
		if err := s.Close(); err != nil {
			lastErr = err
		}
		delete(m.stores, alias)
	}
	return lastErr
}
