package resilience

import (
	"fmt"
	"sync"
)

// RetryStats holds per-operation retry counters.
type RetryStats struct {
	TotalCalls      int64
	SuccessfulCalls int64
	FailedCalls     int64
	TotalAttempts   int64
	MaxAttemptsUsed int64
}

// FallbackStats holds per-handler-tier fallback counters.
type FallbackStats struct {
	Attempts  int64
	Successes int64
	Failures  int64
}

// TierPrimary is the fallback tier name recorded for the primary handler.
const TierPrimary = "primary"

// TierFor returns the stats tier name for a fallback priority.
func TierFor(priority int) string {
	return fmt.Sprintf("fallback_%d", priority)
}

// Stats accumulates retry and fallback counters across operations.
// Constructed explicitly and shared by injection; safe for concurrent use.
type Stats struct {
	mu        sync.Mutex
	retries   map[string]*RetryStats
	fallbacks map[string]map[string]*FallbackStats
}

// NewStats creates an empty stats recorder.
func NewStats() *Stats {
	return &Stats{
		retries:   make(map[string]*RetryStats),
		fallbacks: make(map[string]map[string]*FallbackStats),
	}
}

// RecordRetry records one completed retry-executor call for an operation,
// with the number of attempts it used.
func (s *Stats) RecordRetry(name string, attempts int, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.retries[name]
	if !ok {
		rs = &RetryStats{}
		s.retries[name] = rs
	}

	rs.TotalCalls++
	rs.TotalAttempts += int64(attempts)
	if int64(attempts) > rs.MaxAttemptsUsed {
		rs.MaxAttemptsUsed = int64(attempts)
	}
	if success {
		rs.SuccessfulCalls++
	} else {
		rs.FailedCalls++
	}
}

// RecordFallback records one handler invocation for an operation at the
// given tier (TierPrimary or TierFor(priority)).
func (s *Stats) RecordFallback(name, tier string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tiers, ok := s.fallbacks[name]
	if !ok {
		tiers = make(map[string]*FallbackStats)
		s.fallbacks[name] = tiers
	}
	fs, ok := tiers[tier]
	if !ok {
		fs = &FallbackStats{}
		tiers[tier] = fs
	}

	fs.Attempts++
	if success {
		fs.Successes++
	} else {
		fs.Failures++
	}
}

// RetrySnapshot returns a copy of the per-operation retry counters.
func (s *Stats) RetrySnapshot() map[string]RetryStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]RetryStats, len(s.retries))
	for name, rs := range s.retries {
		out[name] = *rs
	}
	return out
}

// FallbackSnapshot returns a copy of the per-operation, per-tier fallback
// counters.
func (s *Stats) FallbackSnapshot() map[string]map[string]FallbackStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]map[string]FallbackStats, len(s.fallbacks))
	for name, tiers := range s.fallbacks {
		m := make(map[string]FallbackStats, len(tiers))
		for tier, fs := range tiers {
			m[tier] = *fs
		}
		out[name] = m
	}
	return out
}

// Reset clears all counters.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.retries = make(map[string]*RetryStats)
	s.fallbacks = make(map[string]map[string]*FallbackStats)
}
