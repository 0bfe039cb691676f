package app

import (
	"sync"
)

// Counter names exposed through the statistics surface
const (
	CounterTotal          = "total"
	CounterSuccess        = "success"
	CounterFailed         = "failed"
	CounterTimeout        = "timeout"
	CounterCacheHit       = "cache_hit"
	CounterStoreHit       = "store_hit"
	CounterStoreFlood     = "store_flood"
	CounterStoreSkipped   = "store_skipped"
	CounterAPISuccess     = "api_success"
	CounterAPIError       = "api_error"
	CounterAuthFailure    = "auth_failure"
	CounterLegacySuccess  = "legacy_success"
	CounterLegacyError    = "legacy_error"
	CounterUnsafeRejected = "unsafe_rejected"
	CounterCoalesced      = "coalesced"
)

// Stats holds monotonically increasing outcome counters. Each pipeline owns
// its own instance.
type Stats struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewStats creates an empty counter set
func NewStats() *Stats {
	return &Stats{counters: make(map[string]int64)}
}

// Inc increments the named counter by one
func (s *Stats) Inc(name string) {
	s.mu.Lock()
	s.counters[name]++
	s.mu.Unlock()
}

// Get returns the current value of a counter
func (s *Stats) Get(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[name]
}

// Snapshot returns a copy of every counter plus success_rate, the
// percentage of total requests that succeeded
func (s *Stats) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]any, len(s.counters)+1)
	for name, value := range s.counters {
		snapshot[name] = value
	}

	rate := 0.0
	if total := s.counters[CounterTotal]; total > 0 {
		rate = float64(s.counters[CounterSuccess]) / float64(total) * 100
	}
	snapshot["success_rate"] = rate
	return snapshot
}

// Reset zeroes every counter
func (s *Stats) Reset() {
	s.mu.Lock()
	s.counters = make(map[string]int64)
	s.mu.Unlock()
}
