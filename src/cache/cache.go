// Package cache provides in-memory key/value stores with absolute TTL
// expiration. Entries expire a fixed duration after insertion; reads never
// extend an entry's lifetime. Expired entries are deleted lazily on the next
// access to their key, and every write triggers an opportunistic sweep so the
// store cannot grow without bound between reads.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL is used when a store is constructed without an explicit TTL.
const DefaultTTL = 5 * time.Minute

// entry pairs a cached value with its insertion time. Entries are replaced
// wholesale on overwrite, never mutated in place, so a value handed to one
// caller is not aliased by a later Set.
type entry[V any] struct {
	value      V
	insertedAt time.Time
}

func (e entry[V]) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.insertedAt) >= ttl
}

// Store is a thread-safe string-keyed cache with absolute TTL expiration.
// Distinct stores carry independent TTLs and key namespaces.
type Store[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	ttl     time.Duration

	// now is swappable for deterministic expiry tests.
	now func() time.Time
}

// NewStore creates a store whose entries expire ttl after insertion.
// A non-positive ttl falls back to DefaultTTL.
func NewStore[V any](ttl time.Duration) *Store[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// TTL returns the store's expiration window.
func (s *Store[V]) TTL() time.Duration {
	return s.ttl
}

// Get returns the value for key if it is present and not expired. If the
// entry has expired it is deleted as a side effect and Get reports a miss.
func (s *Store[V]) Get(key string) (V, bool) {
	var zero V

	// Fast path: read lock only.
	s.mu.RLock()
	ent, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return zero, false
	}

	if !ent.expired(s.now(), s.ttl) {
		return ent.value, true
	}

	// Expired: upgrade to the write lock and re-check, since another
	// goroutine may have replaced the entry in the meantime.
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[key]; ok && cur.expired(s.now(), s.ttl) {
		delete(s.entries, key)
	}
	return zero, false
}

// Set inserts or overwrites key with value, stamped with the current time,
// then sweeps expired entries.
func (s *Store[V]) Set(key string, value V) {
	now := s.now()
	s.mu.Lock()
	s.entries[key] = entry[V]{value: value, insertedAt: now}
	s.cleanupLocked(now)
	s.mu.Unlock()
}

// Cleanup scans the store and deletes every expired entry.
func (s *Store[V]) Cleanup() {
	now := s.now()
	s.mu.Lock()
	s.cleanupLocked(now)
	s.mu.Unlock()
}

func (s *Store[V]) cleanupLocked(now time.Time) {
	for key, ent := range s.entries {
		if ent.expired(now, s.ttl) {
			delete(s.entries, key)
		}
	}
}

// Clear drops all entries unconditionally.
func (s *Store[V]) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]entry[V])
	s.mu.Unlock()
}

// Len reports the number of entries currently held, including entries that
// have expired but not yet been swept.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// setClock overrides the store's time source. Test hook.
func (s *Store[V]) setClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}
