package approval

import "sync"

// Store is the session-scoped approval cache. It maps serialized canonical
// keys to cached decisions. One store belongs to exactly one session; it is
// created empty at session start and cleared once at teardown.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Decision
}

// NewStore creates an empty approval store.
func NewStore() *Store {
	return &Store{entries: make(map[string]Decision)}
}

// Get returns the cached decision for a key, if any.
func (s *Store) Get(key Key) (Decision, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.entries[key.Canonical()]
	return d, ok
}

// Put caches a decision for a key. Non-cacheable decisions are a no-op:
// "once" approvals and denials are single-use and never remembered.
func (s *Store) Put(key Key, d Decision) {
	if !d.Cacheable() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key.Canonical()] = d
}

// PutAll caches a decision for every key under one lock acquisition, so no
// partial application is observable between keys.
func (s *Store) PutAll(keys []Key, d Decision) {
	if !d.Cacheable() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.entries[k.Canonical()] = d
	}
}

// IsRejectedForSession reports whether the key was rejected for the whole
// session.
func (s *Store) IsRejectedForSession(key Key) bool {
	d, ok := s.Get(key)
	return ok && d == Abort
}

// AllApprovedForSession reports whether every key carries a session-wide
// approval. The empty set returns false: an empty change set cannot be
// considered approved.
func (s *Store) AllApprovedForSession(keys []Key) bool {
	if len(keys) == 0 {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range keys {
		if s.entries[k.Canonical()] != ApprovedForSession {
			return false
		}
	}
	return true
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes all entries. Called exactly once, at session teardown.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Decision)
}
