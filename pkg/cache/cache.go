// Package cache provides the TTL store that fronts the package
// registry. It keeps two kinds of entries: positive entries holding
// fetched package metadata, and negative entries recording that a
// package was confirmed absent so it is not re-queried on every run.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultPositiveTTL is how long fetched package metadata stays fresh.
	DefaultPositiveTTL = 24 * time.Hour
	// DefaultNegativeTTL is how long a confirmed "not found" is trusted.
	DefaultNegativeTTL = 7 * 24 * time.Hour
)

type entry struct {
	value    interface{}
	expires  time.Time
	negative bool
}

// Stats are the run-scoped hit/request counters.
type Stats struct {
	Hits     int64
	Requests int64
}

// Store is a TTL cache safe for concurrent use. Entries are keyed by
// package name; a key holds either a positive value or a negative
// ("not found") marker, never both.
type Store struct {
	mu          sync.RWMutex
	entries     map[string]entry
	positiveTTL time.Duration
	negativeTTL time.Duration

	hits     atomic.Int64
	requests atomic.Int64

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Store with the given TTLs; zero values select the defaults.
func New(positiveTTL, negativeTTL time.Duration) *Store {
	if positiveTTL <= 0 {
		positiveTTL = DefaultPositiveTTL
	}
	if negativeTTL <= 0 {
		negativeTTL = DefaultNegativeTTL
	}
	return &Store{
		entries:     make(map[string]entry),
		positiveTTL: positiveTTL,
		negativeTTL: negativeTTL,
		now:         time.Now,
	}
}

// Get returns the cached value for key. negative reports a live
// "not found" marker; ok reports any live entry (positive or negative).
func (s *Store) Get(key string) (value interface{}, negative, ok bool) {
	s.requests.Add(1)

	s.mu.RLock()
	e, found := s.entries[key]
	s.mu.RUnlock()

	if !found {
		return nil, false, false
	}
	if s.now().After(e.expires) {
		// reclaim the slot now rather than waiting for an overwrite
		s.mu.Lock()
		if cur, live := s.entries[key]; live && s.now().After(cur.expires) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false, false
	}
	s.hits.Add(1)
	return e.value, e.negative, true
}

// RecordBypass counts a lookup that skipped the read path, so hit-rate
// telemetry still sees every request made against the store.
func (s *Store) RecordBypass() {
	s.requests.Add(1)
}

// Set stores a positive entry.
func (s *Store) Set(key string, value interface{}) {
	s.mu.Lock()
	s.entries[key] = entry{value: value, expires: s.now().Add(s.positiveTTL)}
	s.mu.Unlock()
}

// SetNegative records that key was confirmed absent upstream.
func (s *Store) SetNegative(key string) {
	s.mu.Lock()
	s.entries[key] = entry{negative: true, expires: s.now().Add(s.negativeTTL)}
	s.mu.Unlock()
}

// Delete removes any entry for key. Used to clear a stale negative
// entry when a bypassing fetch finds the package after all.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Stats returns the counters accumulated since the last Reset.
func (s *Store) Stats() Stats {
	return Stats{Hits: s.hits.Load(), Requests: s.requests.Load()}
}

// ResetStats zeroes the run-scoped counters. Called at the start of
// each analysis run; cached entries survive.
func (s *Store) ResetStats() {
	s.hits.Store(0)
	s.requests.Store(0)
}
