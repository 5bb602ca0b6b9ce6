// Package store implements the persistent, namespaced cache store: envelopes
// of {payload, cachedAt, expiresAt} serialized over a plain key/value
// backend, with prefix-scoped bulk clears and diagnostic stats.
//
// The store is strictly fail-soft. A backend or serialization error degrades
// to a miss (reads) or a false result (writes); it is logged and never
// propagates to the caller. Cached data is best effort — a total storage
// outage must degrade to "always fetch fresh", not to an application error.
package store

import (
	"context"
	"sync"
)

// KV is the minimal key/value contract the store serializes envelopes over.
// Implementations must be safe for concurrent use; per-key operations are
// expected to be individually atomic, nothing more.
type KV interface {
	// Get returns the raw bytes stored under key. The boolean reports
	// presence; absence is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores val under key, overwriting any previous value.
	Set(ctx context.Context, key string, val []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Keys lists every key currently present. Used only for prefix clears
	// and stats, never on the read path.
	Keys(ctx context.Context) ([]string, error)
}

// Memory is an in-process KV used in tests and demos, and as the substitute
// store when no persistent backend is configured.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemory creates an empty in-memory KV.
func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

// Get returns a copy of the bytes stored under key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set stores a copy of val under key.
func (m *Memory) Set(_ context.Context, key string, val []byte) error {
	cp := make([]byte, len(val))
	copy(cp, val)
	m.mu.Lock()
	m.items[key] = cp
	m.mu.Unlock()
	return nil
}

// Remove deletes key.
func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Keys lists all stored keys.
func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	return keys, nil
}
