// Package memory keeps the most recent entries of a run.
package memory

import "sync"

// Memory is a bounded, concurrency-safe history. Storing past capacity
// drops the oldest entry.
type Memory[T any] struct {
	entries  []T
	capacity int
	mu       sync.RWMutex
}

func NewMemory[T any](capacity int) *Memory[T] {
	return &Memory[T]{
		entries:  make([]T, 0, capacity),
		capacity: capacity,
	}
}

// All returns a copy of the entries, oldest first
func (m *Memory[T]) All() []T {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]T, len(m.entries))
	copy(entries, m.entries)
	return entries
}

// Last returns the newest entry
func (m *Memory[T]) Last() (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var zero T
	if len(m.entries) == 0 {
		return zero, false
	}
	return m.entries[len(m.entries)-1], true
}

func (m *Memory[T]) Store(entry T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, entry)
	if len(m.entries) > m.capacity {
		m.entries = m.entries[1:]
	}
}
