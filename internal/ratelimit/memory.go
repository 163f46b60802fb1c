package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	window int64
	count  int
}

// MemoryLimiter implements a fixed-window in-memory rate limiter. Windows are
// sized for credential endpoints, where the budget spans minutes rather than
// seconds.
type MemoryLimiter struct {
	window   time.Duration
	mu       sync.Mutex
	counters map[string]*memoryEntry
}

// NewMemoryLimiter constructs a MemoryLimiter with the given window size.
func NewMemoryLimiter(window time.Duration) *MemoryLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		window:   window,
		counters: make(map[string]*memoryEntry),
	}
}

// Allow checks whether the request should be allowed in the current window.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	windowStart := now.Truncate(l.window)
	reset := windowStart.Add(l.window).UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.counters[key]
	if entry == nil {
		entry = &memoryEntry{window: windowStart.Unix()}
		l.counters[key] = entry
	}
	if entry.window != windowStart.Unix() {
		entry.window = windowStart.Unix()
		entry.count = 0
		l.pruneLocked(windowStart.Unix())
	}
	if entry.count >= limit {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	entry.count++
	return Result{Allowed: true, Remaining: limit - entry.count, Reset: reset}, nil
}

// pruneLocked drops counters from past windows. Caller holds the lock.
func (l *MemoryLimiter) pruneLocked(currentWindow int64) {
	for key, entry := range l.counters {
		if entry.window != currentWindow {
			delete(l.counters, key)
		}
	}
}
