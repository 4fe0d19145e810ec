package providers

import (
	"sync"
	"time"
)

// ProviderStats are the per-provider counters exposed by the API.
type ProviderStats struct {
	Provider     string  `json:"provider"`
	Searches     int64   `json:"searches"`
	Results      int64   `json:"results"`
	Failures     int64   `json:"failures"`
	CacheHits    int64   `json:"cacheHits"`
	Skipped      int64   `json:"skipped"`
	AvgLatencyMS float64 `json:"avgLatencyMs"`
}

// Stats aggregates search counters per provider.
type Stats struct {
	mu      sync.Mutex
	entries map[string]*statsEntry
}

type statsEntry struct {
	searches  int64
	results   int64
	failures  int64
	cacheHits int64
	skipped   int64
	totalMS   float64
	timed     int64
}

// NewStats creates an empty stats aggregator.
func NewStats() *Stats {
	return &Stats{entries: make(map[string]*statsEntry)}
}

func (s *Stats) entry(provider string) *statsEntry {
	e, ok := s.entries[provider]
	if !ok {
		e = &statsEntry{}
		s.entries[provider] = e
	}
	return e
}

// RecordSearch counts a successful search with its result count and latency.
func (s *Stats) RecordSearch(provider string, results int, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(provider)
	e.searches++
	e.results += int64(results)
	e.totalMS += float64(latency.Milliseconds())
	e.timed++
}

// RecordFailure counts a failed search.
func (s *Stats) RecordFailure(provider string, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(provider)
	e.failures++
	e.totalMS += float64(latency.Milliseconds())
	e.timed++
}

// RecordCacheHit counts a search served from cache.
func (s *Stats) RecordCacheHit(provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(provider).cacheHits++
}

// RecordSkipped counts a search skipped by an open breaker.
func (s *Stats) RecordSkipped(provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(provider).skipped++
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() []ProviderStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ProviderStats, 0, len(s.entries))
	for provider, e := range s.entries {
		stats := ProviderStats{
			Provider:  provider,
			Searches:  e.searches,
			Results:   e.results,
			Failures:  e.failures,
			CacheHits: e.cacheHits,
			Skipped:   e.skipped,
		}
		if e.timed > 0 {
			stats.AvgLatencyMS = e.totalMS / float64(e.timed)
		}
		out = append(out, stats)
	}
	return out
}
