package cache

import "sync"

// Store is a thread-safe keyed snapshot store. Writers replace whole values
// (last write wins); readers get copies so stream handlers never race with
// accessors. Values containing reference types supply a clone func.
type Store[T any] struct {
	mu    sync.RWMutex
	m     map[string]T
	clone func(T) T
}

// NewStore returns an empty store. clone deep-copies a value on read; pass
// nil when T is a plain value type.
func NewStore[T any](clone func(T) T) *Store[T] {
	return &Store[T]{
		m:     make(map[string]T),
		clone: clone,
	}
}

// Set replaces the value under key.
func (s *Store[T]) Set(key string, v T) {
	s.mu.Lock()
	s.m[key] = v
	s.mu.Unlock()
}

// Get returns a copy of the value under key. ok is false for unknown keys;
// callers distinguish "never seen" from zero-valued data this way.
func (s *Store[T]) Get(key string) (v T, ok bool) {
	s.mu.RLock()
	v, ok = s.m[key]
	s.mu.RUnlock()
	if ok && s.clone != nil {
		v = s.clone(v)
	}
	return v, ok
}

// Delete removes key. Removing an absent key is a no-op.
func (s *Store[T]) Delete(key string) {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

// ReplaceAll swaps the entire contents for m. Used by feeds that push
// whole snapshots rather than per-key updates.
func (s *Store[T]) ReplaceAll(m map[string]T) {
	next := make(map[string]T, len(m))
	for k, v := range m {
		next[k] = v
	}
	s.mu.Lock()
	s.m = next
	s.mu.Unlock()
}

// All returns a copy of every value keyed by its key.
func (s *Store[T]) All() map[string]T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]T, len(s.m))
	for k, v := range s.m {
		if s.clone != nil {
			v = s.clone(v)
		}
		out[k] = v
	}
	return out
}

// Len returns the number of stored keys.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Clear drops every entry.
func (s *Store[T]) Clear() {
	s.mu.Lock()
	s.m = make(map[string]T)
	s.mu.Unlock()
}

// CloneSlice copies a slice of value-type elements, for use as a Store
// clone func.
func CloneSlice[E any](in []E) []E {
	if in == nil {
		return nil
	}
	out := make([]E, len(in))
	copy(out, in)
	return out
}
