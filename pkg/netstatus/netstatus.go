// Package netstatus tracks which external sources degraded during one
// analysis run. A tracker is created per run and passed explicitly to
// the clients that talk to the network; there is no process-wide state.
package netstatus

import (
	"sort"
	"sync"
)

// Tracker records degraded external sources for one run.
type Tracker struct {
	mu       sync.Mutex
	degraded map[string]int
}

// NewTracker returns an empty per-run tracker.
func NewTracker() *Tracker {
	return &Tracker{degraded: make(map[string]int)}
}

// MarkDegraded records a failure against the named source.
func (t *Tracker) MarkDegraded(source string) {
	t.mu.Lock()
	t.degraded[source]++
	t.mu.Unlock()
}

// Degraded reports whether any source failed during the run.
func (t *Tracker) Degraded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.degraded) > 0
}

// Sources returns the names of degraded sources, sorted.
func (t *Tracker) Sources() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.degraded))
	for name := range t.degraded {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Failures returns the failure count recorded for one source.
func (t *Tracker) Failures(source string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.degraded[source]
}
