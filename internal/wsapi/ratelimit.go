package wsapi

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// tokenBucket is the same token-bucket shape the teacher used for per-user
// HTTP rate limiting (internal/httpapi/ratelimit.go), adapted here to guard
// a single connection's mutation attempts rather than a per-user HTTP route:
// a client hammering addNode/removeNode burns through the retry driver's
// attempt budget on every message, so the bucket sits in front of dispatch,
// not in front of the whole connection.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newTokenBucket(capacity int, refillRate float64) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (tb *tokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now

	if tb.tokens < 1.0 {
		return false
	}
	tb.tokens -= 1.0
	return true
}

// RateLimitConfig configures the per-connection mutation rate limit.
type RateLimitConfig struct {
	WindowSeconds int
	MaxRequests   int
	Burst         int
}

// DefaultRateLimitConfig allows a sustained 30 mutations/minute with bursts
// up to 10 — generous for a human editing a list, tight enough that a
// runaway client can't flood the retry driver.
var DefaultRateLimitConfig = RateLimitConfig{
	WindowSeconds: 60,
	MaxRequests:   30,
	Burst:         10,
}

// connLimiter tracks one token bucket per attached connection, cleaning up
// on Detach so the map doesn't grow unbounded across a long-running server.
type connLimiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	buckets map[uuid.UUID]*tokenBucket
}

func newConnLimiter(cfg RateLimitConfig) *connLimiter {
	return &connLimiter{cfg: cfg, buckets: make(map[uuid.UUID]*tokenBucket)}
}

func (l *connLimiter) allow(connID uuid.UUID) bool {
	l.mu.Lock()
	b, ok := l.buckets[connID]
	if !ok {
		refillRate := float64(l.cfg.MaxRequests) / float64(l.cfg.WindowSeconds)
		b = newTokenBucket(l.cfg.Burst, refillRate)
		l.buckets[connID] = b
	}
	l.mu.Unlock()
	return b.allow()
}

func (l *connLimiter) forget(connID uuid.UUID) {
	l.mu.Lock()
	delete(l.buckets, connID)
	l.mu.Unlock()
}
