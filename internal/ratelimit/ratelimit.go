// Package ratelimit provides a sliding-window rate limiter used to pace
// outbound transcription API calls.
package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow admits up to maxRequests within any window of the configured
// length. It performs no I/O and is safe for concurrent use.
type SlidingWindow struct {
	mu          sync.Mutex
	window      time.Duration
	maxRequests int
	timestamps  []time.Time
	now         func() time.Time
}

// New creates a sliding-window limiter.
func New(window time.Duration, maxRequests int) *SlidingWindow {
	return &SlidingWindow{
		window:      window,
		maxRequests: maxRequests,
		now:         time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (l *SlidingWindow) WithClock(now func() time.Time) *SlidingWindow {
	l.now = now
	return l
}

// Acquire attempts to admit a request. When admitted, the current time is
// recorded against the window. When denied, wait is how long the caller
// should sleep before the oldest in-window request expires.
func (l *SlidingWindow) Acquire() (admitted bool, wait time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	// Drop timestamps that have slid out of the window.
	keep := 0
	for _, ts := range l.timestamps {
		if ts.After(cutoff) {
			l.timestamps[keep] = ts
			keep++
		}
	}
	l.timestamps = l.timestamps[:keep]

	if len(l.timestamps) < l.maxRequests {
		l.timestamps = append(l.timestamps, now)
		return true, 0
	}

	wait = l.window - now.Sub(l.timestamps[0])
	if wait < 0 {
		wait = 0
	}
	return false, wait
}
