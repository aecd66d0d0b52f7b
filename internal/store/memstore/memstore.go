// Package memstore keeps values in process memory. Nothing survives a restart.
package memstore

import (
	"context"
	"sync"

	"gallery/internal/store"
)

type MemStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

var _ store.KV = (*MemStore)(nil)

func New() *MemStore {
	return &MemStore{values: make(map[string][]byte)}
}

func (m *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.values[key] = append([]byte(nil), value...)
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Close() error { return nil }
