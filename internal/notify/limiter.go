package notify

import (
	"sync"
	"time"
)

// RateLimiter lets at most one event per key through in each window.
type RateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

// NewRateLimiter returns a limiter. A window of zero or less allows everything.
func NewRateLimiter(window time.Duration) *RateLimiter {
	return &RateLimiter{window: window, last: make(map[string]time.Time)}
}

// Allow reports whether an event for key may pass at now, and records it if so.
func (l *RateLimiter) Allow(key string, now time.Time) bool {
	if l.window <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.last[key]; ok && now.Sub(last) < l.window {
		return false
	}
	l.last[key] = now
	return true
}
