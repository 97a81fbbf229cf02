// Package kvstore provides the durable string-keyed store behind the analysis
// cache and the history list.
package kvstore

import (
	"context"
	"sync"
)

// Store is a durable string key/value store.
type Store interface {
	// GetString returns the value for key and whether it was present.
	GetString(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, value string) error
	// SetStrings writes every pair atomically: readers observe all or none.
	SetStrings(ctx context.Context, values map[string]string) error
	Remove(ctx context.Context, keys ...string) error
}

// MemoryStore is an in-process Store. It does not survive restarts and is
// meant for tests and single-process development.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) GetString(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) SetString(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) SetStrings(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	for k, v := range values {
		m.data[k] = v
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.data, k)
	}
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
