// Package storage defines the key/value boundary the client persists its
// state through, plus in-memory, file and sealed implementations.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/and161185/lendclient/internal/errs"
)

// Fault marks err, raised by op on a backend, as errs.ErrStorage.
func Fault(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("storage %s: %w: %w", op, errs.ErrStorage, err)
}

// Storage is a string key/value store with browser-storage semantics:
// Get of a missing key reports ok=false without error.
type Storage interface {
	// Get returns the value stored under key.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key; removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// Keys lists stored keys in lexical order.
	Keys(ctx context.Context) ([]string, error)
}

// Memory is a process-local Storage.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ Storage = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory { return &Memory{data: map[string]string{}} }

// Get returns the value stored under key.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Remove deletes key.
func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Keys lists stored keys.
func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.data), nil
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
