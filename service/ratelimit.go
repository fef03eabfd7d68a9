package service

import (
	"sync"
	"time"
)

// rateLimiter is a sliding-window event limiter guarding notification
// creation against bursts.
type rateLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	maxEvents int
	events    []time.Time
}

func newRateLimiter(window time.Duration, maxEvents int) *rateLimiter {
	return &rateLimiter{
		window:    window,
		maxEvents: maxEvents,
		events:    make([]time.Time, 0, maxEvents),
	}
}

// Allow records an event and reports whether it fits inside the window
func (r *rateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	kept := r.events[:0]
	for _, t := range r.events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.events = kept

	if len(r.events) >= r.maxEvents {
		return false
	}
	r.events = append(r.events, now)
	return true
}
