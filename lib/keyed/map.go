// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keyed

import "iter"

// Map is an insertion-ordered map from Key to V. The zero value is
// ready to use.
type Map[V any] struct {
	index map[Key]*entry[V]

	// head and tail form a doubly linked list in insertion order.
	head, tail *entry[V]
}

type entry[V any] struct {
	key        Key
	value      V
	prev, next *entry[V]
	removed    bool
}

// Len returns the number of entries.
func (m *Map[V]) Len() int {
	return len(m.index)
}

// Get returns the value for key and whether it was present.
func (m *Map[V]) Get(key Key) (V, bool) {
	if e, ok := m.index[key]; ok {
		return e.value, true
	}
	var zero V
	return zero, false
}

// Has reports whether key is present.
func (m *Map[V]) Has(key Key) bool {
	_, ok := m.index[key]
	return ok
}

// Set stores value under key. Returns true if the key was newly added,
// false if an existing value was replaced (the entry keeps its position).
func (m *Map[V]) Set(key Key, value V) bool {
	if e, ok := m.index[key]; ok {
		e.value = value
		return false
	}
	if m.index == nil {
		m.index = make(map[Key]*entry[V])
	}
	e := &entry[V]{key: key, value: value, prev: m.tail}
	if m.tail != nil {
		m.tail.next = e
	} else {
		m.head = e
	}
	m.tail = e
	m.index[key] = e
	return true
}

// Delete removes key. Returns true if it was present.
func (m *Map[V]) Delete(key Key) bool {
	e, ok := m.index[key]
	if !ok {
		return false
	}
	delete(m.index, key)
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
	// Leave e.next intact so an iterator parked on e can continue.
	e.removed = true
	return true
}

// Clear removes every entry and returns how many there were.
func (m *Map[V]) Clear() int {
	size := len(m.index)
	for e := m.head; e != nil; e = e.next {
		e.removed = true
	}
	m.index = nil
	m.head, m.tail = nil, nil
	return size
}

// All iterates entries in insertion order. Entries may be deleted
// during iteration; entries added during iteration are visited.
func (m *Map[V]) All() iter.Seq2[Key, V] {
	return func(yield func(Key, V) bool) {
		for e := m.head; e != nil; e = e.next {
			if e.removed {
				continue
			}
			if !yield(e.key, e.value) {
				return
			}
		}
	}
}

// Keys iterates keys in insertion order.
func (m *Map[V]) Keys() iter.Seq[Key] {
	return func(yield func(Key) bool) {
		for key := range m.All() {
			if !yield(key) {
				return
			}
		}
	}
}

// Values iterates values in insertion order.
func (m *Map[V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, value := range m.All() {
			if !yield(value) {
				return
			}
		}
	}
}

// Clone returns a shallow copy with the same iteration order.
func (m *Map[V]) Clone() *Map[V] {
	clone := &Map[V]{}
	for key, value := range m.All() {
		clone.Set(key, value)
	}
	return clone
}
