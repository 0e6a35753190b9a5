package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/tendant/simple-2fa/pkg/clock"
)

const (
	// DefaultThreshold is the maximum number of attempts per window.
	DefaultThreshold = 5
	// DefaultWindow is the trailing window duration.
	DefaultWindow = 15 * time.Minute
)

// ExceededError is returned when an attempt would exceed the threshold.
// RetryAfter is how long until the oldest recorded attempt leaves the window.
type ExceededError struct {
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// Result reports the state of a key's window after a recorded attempt.
type Result struct {
	AttemptsRemaining int
	ResetAt           time.Time
}

// attemptWindow holds the ordered attempt timestamps for one key.
// The mutex serializes the prune-check-append sequence: without it two
// concurrent callers can both read "4 of 5 used" and both record, allowing
// a sixth attempt.
type attemptWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
	lastSeen   time.Time
}

// SlidingWindowLimiter caps attempts per (subject, attempt kind) key within
// a trailing window. It is an explicit store object meant to be injected
// into its consumer, never a package-level singleton.
type SlidingWindowLimiter struct {
	windows   map[string]*attemptWindow
	threshold int
	window    time.Duration
	ttl       time.Duration
	clock     clock.Clock
	mu        sync.RWMutex
}

type Option func(*SlidingWindowLimiter)

// WithClock overrides the time source, used by tests to advance time.
func WithClock(c clock.Clock) Option {
	return func(l *SlidingWindowLimiter) {
		l.clock = c
	}
}

// WithIdleTTL enables a background sweep that drops windows idle for longer
// than ttl. Without it, windows are only dropped by Clear.
func WithIdleTTL(ttl time.Duration) Option {
	return func(l *SlidingWindowLimiter) {
		l.ttl = ttl
	}
}

// NewSlidingWindowLimiter creates a limiter allowing threshold attempts per
// key within the trailing window.
func NewSlidingWindowLimiter(threshold int, window time.Duration, opts ...Option) *SlidingWindowLimiter {
	l := &SlidingWindowLimiter{
		windows:   make(map[string]*attemptWindow),
		threshold: threshold,
		window:    window,
		clock:     clock.NewSystemClock(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.ttl > 0 {
		go l.cleanup()
	}

	return l
}

func windowKey(subjectID, attemptKind string) string {
	return subjectID + ":" + attemptKind
}

// CheckAndRecord prunes expired attempts for the key, then either records
// the new attempt or rejects it. On rejection the attempt is NOT recorded
// and the returned error is an *ExceededError with RetryAfter > 0.
func (l *SlidingWindowLimiter) CheckAndRecord(subjectID, attemptKind string) (Result, error) {
	now := l.clock.Now()
	w := l.getWindow(windowKey(subjectID, attemptKind), now)

	w.mu.Lock()
	defer w.mu.Unlock()

	// Prune timestamps older than now - window.
	cutoff := now.Add(-l.window)
	kept := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.timestamps = kept

	if len(w.timestamps) >= l.threshold {
		oldest := w.timestamps[0]
		return Result{}, &ExceededError{
			RetryAfter: l.window - now.Sub(oldest),
		}
	}

	w.timestamps = append(w.timestamps, now)

	return Result{
		AttemptsRemaining: l.threshold - len(w.timestamps),
		ResetAt:           w.timestamps[0].Add(l.window),
	}, nil
}

// Clear drops the window for a key entirely. Called after a successful
// verification so earlier failed attempts stop counting against the subject.
func (l *SlidingWindowLimiter) Clear(subjectID, attemptKind string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, windowKey(subjectID, attemptKind))
}

func (l *SlidingWindowLimiter) getWindow(key string, now time.Time) *attemptWindow {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, exists := l.windows[key]
	if !exists {
		w = &attemptWindow{}
		l.windows[key] = w
	}
	w.lastSeen = now
	return w
}

// cleanup periodically removes idle windows
func (l *SlidingWindowLimiter) cleanup() {
	ticker := time.NewTicker(l.ttl)
	defer ticker.Stop()

	for range ticker.C {
		now := l.clock.Now()
		l.mu.Lock()
		for key, w := range l.windows {
			if now.Sub(w.lastSeen) > l.ttl {
				delete(l.windows, key)
			}
		}
		l.mu.Unlock()
	}
}

// Stats returns statistics about the limiter
type Stats struct {
	ActiveWindows int
	Threshold     int
	Window        time.Duration
}

// GetStats returns current statistics
func (l *SlidingWindowLimiter) GetStats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return Stats{
		ActiveWindows: len(l.windows),
		Threshold:     l.threshold,
		Window:        l.window,
	}
}
