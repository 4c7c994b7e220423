package store

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/podscript/pkg/script"
)

// MemoryStore is a [Store] that keeps encoded snapshots in a map. Snapshots
// are stored as JSON so that callers never share memory with the store.
// The zero value is ready to use.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memItem
}

type memItem struct {
	data  []byte
	entry Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save implements [Store].
func (m *MemoryStore) Save(_ context.Context, id string, s *script.Snapshot) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := checkSnapshot(id, s); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return fmt.Errorf("store: save %q: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]memItem)
	}
	m.items[id] = memItem{data: buf.Bytes(), entry: entryOf(id, s, time.Now().UTC())}
	return nil
}

// Load implements [Store].
func (m *MemoryStore) Load(_ context.Context, id string) (*script.Snapshot, error) {
	m.mu.RLock()
	it, ok := m.items[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: load %q: %w", id, ErrNotFound)
	}
	s, err := script.DecodeSnapshot(bytes.NewReader(it.data))
	if err != nil {
		return nil, fmt.Errorf("store: load %q: %w", id, err)
	}
	if err := checkSnapshot(id, s); err != nil {
		return nil, err
	}
	return s, nil
}

// List implements [Store].
func (m *MemoryStore) List(context.Context) ([]Entry, error) {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it.entry)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// Delete implements [Store].
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return fmt.Errorf("store: delete %q: %w", id, ErrNotFound)
	}
	delete(m.items, id)
	return nil
}

// Ping implements [Pinger]. A memory store is always reachable.
func (m *MemoryStore) Ping(context.Context) error { return nil }
