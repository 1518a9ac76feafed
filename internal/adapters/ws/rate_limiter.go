package ws

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window command limiter keyed by connection.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

// Allow records an attempt and reports whether it fits in the window.
func (rl *RateLimiter) Allow(id string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}
	fresh = append(fresh, now)
	rl.history[id] = fresh
	return true
}

// Forget drops a connection's window when it closes.
func (rl *RateLimiter) Forget(id string) {
	rl.mu.Lock()
	delete(rl.history, id)
	rl.mu.Unlock()
}
