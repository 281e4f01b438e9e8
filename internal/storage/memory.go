package storage

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps snapshots in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]Snapshot)}
}

func (m *MemoryStore) Load(_ context.Context, period string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[period]
	if !ok {
		return EmptySnapshot(), nil
	}
	return snap.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, period string, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[period] = snap.Clone()
	return nil
}

func (m *MemoryStore) Periods(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.snapshots))
	for name := range m.snapshots {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Ephemeral() bool { return true }
