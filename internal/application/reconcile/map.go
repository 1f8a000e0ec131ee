package reconcile

import (
	"errors"
	"fmt"
)

// ErrDuplicateKey is returned when a key is inserted twice. Within one run no
// input may ever receive two remote entities; hitting this is a programming
// error, not an expected runtime case.
var ErrDuplicateKey = errors.New("reconcile: duplicate key")

// Map is a unique-key mapping from input to remote entity.
// Insertion order is irrelevant; duplicate insertion fails loudly.
type Map[K comparable, V any] struct {
	entries map[K]V
}

// NewMap creates an empty reconciliation map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{entries: make(map[K]V)}
}

// Put inserts a key/value pair. Inserting an existing key returns
// ErrDuplicateKey without overwriting.
func (m *Map[K, V]) Put(key K, value V) error {
	if _, exists := m.entries[key]; exists {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, key)
	}
	m.entries[key] = value
	return nil
}

// Get returns the value for key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	v, ok := m.entries[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map[K, V]) Has(key K) bool {
	_, ok := m.entries[key]
	return ok
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	return len(m.entries)
}

// Keys returns all keys in unspecified order.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

// Merge inserts every entry of other into m. Overlapping key sets surface
// ErrDuplicateKey; by then m may hold part of other's entries, so callers
// must treat the error as fatal for the whole map.
func (m *Map[K, V]) Merge(other *Map[K, V]) error {
	for k, v := range other.entries {
		if err := m.Put(k, v); err != nil {
			return err
		}
	}
	return nil
}
