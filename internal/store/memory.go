package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nao1215/cyberbuddy/internal/model"
)

// MemoryStore is an in-process Store used for tests and ephemeral runs.
type MemoryStore struct {
	mu     sync.Mutex
	data   map[string]json.RawMessage
	closed bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]json.RawMessage)}
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, model.ErrStoreUnavailable
	}

	result := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			result[k] = append(json.RawMessage(nil), v...)
		}
	}
	return result, nil
}

// Set implements Store.
func (m *MemoryStore) Set(ctx context.Context, values map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded, err := encodeValues(values)
	if err != nil {
		return fmt.Errorf("failed to encode values: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return model.ErrStoreUnavailable
	}
	for k, v := range encoded {
		m.data[k] = v
	}
	return nil
}

// Remove implements Store.
func (m *MemoryStore) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return model.ErrStoreUnavailable
	}
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
