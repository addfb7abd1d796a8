// Package policy enforces the gateway's request-admission rules: per-session
// rate limiting, brain-URL scheme/allow-list validation, payload size caps,
// and can_use_tool decision shape validation (spec §4.7).
package policy

import (
	"sync"
	"time"
)

// DefaultRateLimit is the default sliding-window bound (spec §4.4 item 1:
// "default 240/min").
const DefaultRateLimit = 240

// DefaultRateWindow is the default sliding window duration.
const DefaultRateWindow = time.Minute

// RateLimiter is a per-session sliding-window request limiter. Modeled on
// the teacher's per-user RateLimiter, keyed by session id instead of user
// id since the gateway has no user/account concept — each session is
// throttled independently (spec §4.4 item 1). Unlike the teacher's
// background-ticker eviction, stale keys here are evicted lazily: on every
// Allow call for a key (trimming expired timestamps) and explicitly via
// Remove when a session is torn down (spec §5: "limiter state is evicted
// lazily when a session is removed").
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a limiter allowing up to limit requests per window,
// per key.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow reports whether one more request for key is permitted right now,
// recording it if so.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Remove evicts key's limiter state, called when its owning session is
// removed from the registry.
func (r *RateLimiter) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, key)
}
