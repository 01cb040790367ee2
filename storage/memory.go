package storage

import (
	"context"
	"sync"
)

type memoryEntry struct {
	value   []byte
	version uint64
}

// Memory is a process-local [Backend]. It is the zero-config default for a
// Store and the medium of choice in tests; nothing survives a restart.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{entries: map[string]memoryEntry{}}
}

// Get implements [Backend].
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := m.GetVersioned(ctx, key)
	if err != nil {
		return nil, err
	}
	return v.Value, nil
}

// GetVersioned implements [Backend].
func (m *Memory) GetVersioned(_ context.Context, key string) (Versioned, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key]
	if !ok {
		return Versioned{}, ErrNotFound
	}
	return Versioned{Value: cloneBytes(entry.value), Version: entry.version}, nil
}

// Set implements [Backend].
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.entries[key]
	m.entries[key] = memoryEntry{value: cloneBytes(value), version: entry.version + 1}
	return nil
}

// CompareAndSwap implements [Backend].
func (m *Memory) CompareAndSwap(_ context.Context, key string, expected uint64, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.entries[key]
	if entry.version != expected {
		return entry.version, ErrVersionMismatch
	}

	next := entry.version + 1
	m.entries[key] = memoryEntry{value: cloneBytes(value), version: next}
	return next, nil
}

// Delete implements [Backend].
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
