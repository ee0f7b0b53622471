// Package containers provides insertion-ordered bounded collections used by the
// wristclaw monitor for its dedup sets and lookup caches. Eviction is always
// oldest-first, so a container with capacity C never holds more than C entries.
package containers

import "fmt"

type mapEntry[K comparable, V any] struct {
	key   K
	value V
	prev  *mapEntry[K, V]
	next  *mapEntry[K, V]
}

// BoundedMap is a map that preserves insertion order and evicts its oldest
// entries when it grows past capacity. Set re-inserts existing keys, making
// them the freshest entry. Not safe for concurrent use.
type BoundedMap[K comparable, V any] struct {
	capacity int
	entries  map[K]*mapEntry[K, V]
	head     *mapEntry[K, V] // oldest
	tail     *mapEntry[K, V] // freshest
}

// NewBoundedMap creates a BoundedMap with the given capacity. Panics if
// capacity < 1; callers pass compile-time constants.
func NewBoundedMap[K comparable, V any](capacity int) *BoundedMap[K, V] {
	if capacity < 1 {
		panic(fmt.Sprintf("containers: invalid capacity %d", capacity))
	}
	return &BoundedMap[K, V]{
		capacity: capacity,
		entries:  make(map[K]*mapEntry[K, V]),
	}
}

// Len returns the number of stored entries.
func (m *BoundedMap[K, V]) Len() int { return len(m.entries) }

// Get returns the value for key and whether it was present.
func (m *BoundedMap[K, V]) Get(key K) (V, bool) {
	if e, ok := m.entries[key]; ok {
		return e.value, true
	}
	var zero V
	return zero, false
}

// Set stores key → value. An existing key is removed first so the key becomes
// the freshest entry. Oldest entries are evicted until Len() <= capacity.
func (m *BoundedMap[K, V]) Set(key K, value V) {
	if e, ok := m.entries[key]; ok {
		m.unlink(e)
		delete(m.entries, key)
	}
	e := &mapEntry[K, V]{key: key, value: value}
	m.entries[key] = e
	m.pushTail(e)
	for len(m.entries) > m.capacity {
		oldest := m.head
		m.unlink(oldest)
		delete(m.entries, oldest.key)
	}
}

// Delete removes key and reports whether it was present.
func (m *BoundedMap[K, V]) Delete(key K) bool {
	e, ok := m.entries[key]
	if !ok {
		return false
	}
	m.unlink(e)
	delete(m.entries, key)
	return true
}

// EvictOldest removes up to n oldest entries and returns how many were removed.
func (m *BoundedMap[K, V]) EvictOldest(n int) int {
	removed := 0
	for removed < n && m.head != nil {
		oldest := m.head
		m.unlink(oldest)
		delete(m.entries, oldest.key)
		removed++
	}
	return removed
}

// Range calls fn for each entry in insertion order (oldest first) until fn
// returns false.
func (m *BoundedMap[K, V]) Range(fn func(key K, value V) bool) {
	for e := m.head; e != nil; e = e.next {
		if !fn(e.key, e.value) {
			return
		}
	}
}

func (m *BoundedMap[K, V]) pushTail(e *mapEntry[K, V]) {
	e.prev = m.tail
	e.next = nil
	if m.tail != nil {
		m.tail.next = e
	}
	m.tail = e
	if m.head == nil {
		m.head = e
	}
}

func (m *BoundedMap[K, V]) unlink(e *mapEntry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		m.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		m.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

// BoundedSet is an insertion-ordered set with capacity-driven eviction.
// Not safe for concurrent use.
type BoundedSet[V comparable] struct {
	m *BoundedMap[V, struct{}]
}

// NewBoundedSet creates a BoundedSet with the given capacity (>= 1).
func NewBoundedSet[V comparable](capacity int) *BoundedSet[V] {
	return &BoundedSet[V]{m: NewBoundedMap[V, struct{}](capacity)}
}

// Len returns the number of stored values.
func (s *BoundedSet[V]) Len() int { return s.m.Len() }

// Has reports whether value is in the set.
func (s *BoundedSet[V]) Has(value V) bool {
	_, ok := s.m.Get(value)
	return ok
}

// Add inserts value and returns true if it was new. Adding an existing value
// is a no-op and returns false (the value keeps its original position).
func (s *BoundedSet[V]) Add(value V) bool {
	if s.Has(value) {
		return false
	}
	s.m.Set(value, struct{}{})
	return true
}

// EvictOldest removes up to n oldest values and returns how many were removed.
func (s *BoundedSet[V]) EvictOldest(n int) int { return s.m.EvictOldest(n) }

// Range calls fn for each value in insertion order until fn returns false.
func (s *BoundedSet[V]) Range(fn func(value V) bool) {
	s.m.Range(func(k V, _ struct{}) bool { return fn(k) })
}
