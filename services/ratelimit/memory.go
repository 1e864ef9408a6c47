package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is an in-process sliding-window limiter. It keeps the
// ordered admission timestamps per key and purges expired ones lazily on
// each check, so a burst followed by silence costs nothing to maintain.
//
// Suitable for a single gateway instance; a fleet shares state through
// RedisLimiter instead.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

// NewMemoryLimiter creates a new in-process limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow implements Limiter. The check-and-record step is atomic per key:
// two concurrent requests against a window with one slot left admit exactly
// one of them.
func (l *MemoryLimiter) Allow(_ context.Context, key string, policy Policy) (Result, error) {
	if policy.Max <= 0 || policy.Window <= 0 {
		return Result{Allowed: true, Remaining: 0}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-policy.Window)

	stamps := l.windows[key]
	// Timestamps are appended in order, so the live window is a suffix.
	live := 0
	for live < len(stamps) && !stamps[live].After(cutoff) {
		live++
	}
	if live > 0 {
		stamps = append(stamps[:0], stamps[live:]...)
	}

	if len(stamps) >= policy.Max {
		// The window frees up when its oldest admission ages out.
		oldest := stamps[0]
		retryAfter := oldest.Add(policy.Window).Sub(now)
		retryAfter = ceilSeconds(retryAfter)

		l.windows[key] = stamps
		return Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	stamps = append(stamps, now)
	l.windows[key] = stamps
	return Result{Allowed: true, Remaining: policy.Max - len(stamps)}, nil
}

// Reset clears the window for a key.
func (l *MemoryLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Len reports the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Cleanup drops keys whose entire window has expired. Called periodically
// so keys seen once do not accumulate forever.
func (l *MemoryLimiter) Cleanup(olderThan time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-olderThan)
	removed := 0
	for key, stamps := range l.windows {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker runs Cleanup on the given interval until ctx ends.
func (l *MemoryLimiter) StartCleanupWorker(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Cleanup(retention)
		case <-ctx.Done():
			return
		}
	}
}

// ceilSeconds rounds a duration up to a whole second, minimum one. Clients
// treat the value as "seconds to wait", so rounding down would invite a
// retry that still rejects.
func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	secs := d / time.Second
	if d%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs * time.Second
}
