// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keyed

import "iter"

// Set is an insertion-ordered set of keys. The zero value is ready to use.
type Set struct {
	m Map[struct{}]
}

// NewSet returns a set containing keys, in order, without duplicates.
func NewSet(keys ...Key) *Set {
	s := &Set{}
	for _, key := range keys {
		s.Add(key)
	}
	return s
}

// Len returns the number of keys.
func (s *Set) Len() int { return s.m.Len() }

// Add inserts key. Returns true if it was not already present.
func (s *Set) Add(key Key) bool { return s.m.Set(key, struct{}{}) }

// Has reports whether key is present.
func (s *Set) Has(key Key) bool { return s.m.Has(key) }

// Delete removes key. Returns true if it was present.
func (s *Set) Delete(key Key) bool { return s.m.Delete(key) }

// Clear removes every key and returns how many there were.
func (s *Set) Clear() int { return s.m.Clear() }

// All iterates keys in insertion order.
func (s *Set) All() iter.Seq[Key] { return s.m.Keys() }

// Slice returns the keys in insertion order.
func (s *Set) Slice() []Key {
	out := make([]Key, 0, s.Len())
	for key := range s.All() {
		out = append(out, key)
	}
	return out
}

// Overlaps reports whether s and other share at least one key.
func (s *Set) Overlaps(other *Set) bool {
	small, large := s, other
	if large.Len() < small.Len() {
		small, large = large, small
	}
	for key := range small.All() {
		if large.Has(key) {
			return true
		}
	}
	return false
}
