package api

import (
	"sync"
	"time"
)

// Limiter is a per-client sliding-window rate limiter. A zero or negative
// max disables limiting entirely.
type Limiter struct {
	mu       sync.Mutex
	max      int
	window   time.Duration
	requests map[string][]time.Time
	now      func() time.Time
}

// NewLimiter allows up to max requests per client within window.
func NewLimiter(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:      max,
		window:   window,
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Allow records a request for clientID and reports whether it is within the
// window budget.
func (l *Limiter) Allow(clientID string) bool {
	if l.max <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.prune(clientID)
	if len(recent) >= l.max {
		l.requests[clientID] = recent
		return false
	}
	l.requests[clientID] = append(recent, l.now())
	return true
}

// Remaining returns the number of requests clientID has left in the window.
func (l *Limiter) Remaining(clientID string) int {
	if l.max <= 0 {
		return -1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.max - len(l.prune(clientID))
	if n < 0 {
		n = 0
	}
	return n
}

// prune drops entries older than the window. Caller holds the lock.
func (l *Limiter) prune(clientID string) []time.Time {
	cutoff := l.now().Add(-l.window)
	var recent []time.Time
	for _, ts := range l.requests[clientID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	return recent
}
