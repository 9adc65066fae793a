package api

import (
	"math"
	"sync"
	"time"
)

// Stats accumulates process-wide query counters for GET /api/stats.
type Stats struct {
	mu                sync.Mutex
	totalQueries      int
	cacheHits         int
	cacheMisses       int
	totalResponseTime float64
}

// NewStats creates zeroed counters.
func NewStats() *Stats {
	return &Stats{}
}

// RecordHit counts a query answered from cache.
func (s *Stats) RecordHit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalQueries++
	s.cacheHits++
}

// RecordMiss counts a query answered upstream in d.
func (s *Stats) RecordMiss(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalQueries++
	s.cacheMisses++
	s.totalResponseTime += d.Seconds()
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	TotalQueries        int     `json:"total_queries"`
	CacheHits           int     `json:"cache_hits"`
	CacheMisses         int     `json:"cache_misses"`
	CacheHitRate        float64 `json:"cache_hit_rate"`
	AverageResponseTime float64 `json:"average_response_time"`
}

// Snapshot returns the current counters with derived rates.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		TotalQueries: s.totalQueries,
		CacheHits:    s.cacheHits,
		CacheMisses:  s.cacheMisses,
	}
	if s.totalQueries > 0 {
		snap.CacheHitRate = round2(float64(s.cacheHits) / float64(s.totalQueries) * 100)
		snap.AverageResponseTime = round2(s.totalResponseTime / float64(s.totalQueries))
	}
	return snap
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
