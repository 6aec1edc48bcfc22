// Package cache keeps at most one live object per id, no matter how many
// code paths race to create it.
package cache

import "sync"

// Hooks tell a Store how to handle one entity kind.
type Hooks[D any, E any] struct {
	// ID extracts the key from a descriptor.
	ID func(D) string
	// New builds the entity the first time an id is seen. It runs under the
	// store lock and must not call back into the same Store.
	New func(D) E
	// Attach runs under the store lock when AddIfNeeded hits an existing
	// entity. It may fill fields that are still unset, never overwrite.
	Attach func(E, D)
	// Live filters Available. Nil means every entity is live.
	Live func(E) bool
}

// Store is a threadsafe id -> entity map for one kind. Entities are never
// removed; leaving and cancellation are states of the entity itself.
type Store[D any, E any] struct {
	hooks Hooks[D, E]

	mu    sync.RWMutex
	items map[string]E
	order []string
}

func New[D any, E any](hooks Hooks[D, E]) *Store[D, E] {
	return &Store[D, E]{
		hooks: hooks,
		items: make(map[string]E),
	}
}

func (s *Store[D, E]) Find(id string) (E, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[id]
	return e, ok
}

// AddIfNeeded returns the entity for the descriptor's id, creating it if
// this is the first mention. created is true only for the call that
// inserted it.
func (s *Store[D, E]) AddIfNeeded(d D) (e E, created bool) {
	id := s.hooks.ID(d)

	s.mu.RLock()
	e, ok := s.items[id]
	s.mu.RUnlock()
	if ok && s.hooks.Attach == nil {
		return e, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.items[id]; ok {
		if s.hooks.Attach != nil {
			s.hooks.Attach(e, d)
		}
		return e, false
	}
	e = s.hooks.New(d)
	s.items[id] = e
	s.order = append(s.order, id)
	return e, true
}

// All returns every entity in insertion order, including left or canceled
// ones.
func (s *Store[D, E]) All() []E {
	return s.collect(nil)
}

// Available returns entities that pass the Live hook, in insertion order.
func (s *Store[D, E]) Available() []E {
	return s.collect(s.hooks.Live)
}

// Filter returns entities matching keep, in insertion order.
func (s *Store[D, E]) Filter(keep func(E) bool) []E {
	return s.collect(keep)
}

// collect snapshots under the lock and filters outside it, so keep may
// look other entities up in the same store.
func (s *Store[D, E]) collect(keep func(E) bool) []E {
	s.mu.RLock()
	all := make([]E, 0, len(s.order))
	for _, id := range s.order {
		all = append(all, s.items[id])
	}
	s.mu.RUnlock()
	if keep == nil {
		return all
	}
	out := all[:0]
	for _, e := range all {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store[D, E]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
