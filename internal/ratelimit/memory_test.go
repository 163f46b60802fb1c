package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	limiter := NewMemoryLimiter(time.Minute)
	now := time.Date(2026, 8, 29, 12, 0, 30, 0, time.UTC)

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(context.Background(), "login:1.2.3.4", 3, now)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !result.Allowed {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
		if result.Remaining != 3-(i+1) {
			t.Fatalf("expected remaining %d, got %d", 3-(i+1), result.Remaining)
		}
	}

	result, err := limiter.Allow(context.Background(), "login:1.2.3.4", 3, now)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Allowed {
		t.Fatalf("expected fourth request to be limited")
	}
	if !result.Reset.Equal(time.Date(2026, 8, 29, 12, 1, 0, 0, time.UTC)) {
		t.Fatalf("unexpected reset %v", result.Reset)
	}

	// A different key has its own budget.
	other, _ := limiter.Allow(context.Background(), "login:5.6.7.8", 3, now)
	if !other.Allowed {
		t.Fatalf("expected independent budget per key")
	}

	// The next window starts fresh.
	next, _ := limiter.Allow(context.Background(), "login:1.2.3.4", 3, now.Add(time.Minute))
	if !next.Allowed {
		t.Fatalf("expected new window to reset the budget")
	}
}

func TestMemoryLimiter_ZeroLimitDisables(t *testing.T) {
	limiter := NewMemoryLimiter(time.Minute)
	result, err := limiter.Allow(context.Background(), "login:1.2.3.4", 0, time.Now().UTC())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result.Allowed {
		t.Fatalf("expected zero limit to disable the limiter")
	}
}
