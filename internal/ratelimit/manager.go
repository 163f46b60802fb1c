package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// redisBreakerDuration is how long Redis is benched after a failure before
// the manager tries it again.
const redisBreakerDuration = 30 * time.Second

// Manager enforces rate limits on the best available backend: Redis when an
// address is configured and reachable, the in-memory limiter otherwise. A
// Redis outage trips a breaker and falls back to memory rather than letting
// credential requests through unmetered.
type Manager struct {
	memoryLimiter Limiter
	redisLimiter  *RedisLimiter

	mu           sync.Mutex
	breakerUntil time.Time
}

// NewManager constructs a Manager. An empty redisAddr selects the in-memory
// backend only.
func NewManager(redisAddr, prefix string, window time.Duration) *Manager {
	m := &Manager{memoryLimiter: NewMemoryLimiter(window)}
	if redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		m.redisLimiter = NewRedisLimiter(client, prefix, window)
	}
	return m
}

// Allow checks whether the request should be allowed in the current window.
func (m *Manager) Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error) {
	if m == nil || limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	if m.redisLimiter != nil && !m.isBreakerActive(now) {
		result, errAllow := m.redisLimiter.Allow(ctx, key, limit, now)
		if errAllow == nil {
			return result, nil
		}
		m.tripBreaker(errAllow, now)
	}
	return m.memoryLimiter.Allow(ctx, key, limit, now)
}

func (m *Manager) isBreakerActive(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if now.Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *Manager) tripBreaker(err error, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("rate limit: redis unavailable, falling back to memory")
}
