package statstore

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory stats store for testing and defaults.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]Stats
	closed bool
}

// NewMemoryStore creates a new in-memory stats store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Stats),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(s Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.data[s.Topic] = s
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(topic string) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Stats{}, ErrStoreClosed
	}

	s, ok := m.data[topic]
	if !ok {
		return Stats{}, ErrNotFound
	}
	return s, nil
}

// List implements Store.
func (m *MemoryStore) List() ([]Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	all := make([]Stats, 0, len(m.data))
	for _, s := range m.data {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Topic < all[j].Topic
	})
	return all, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.data, topic)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}

// Len returns the number of stored records. Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
