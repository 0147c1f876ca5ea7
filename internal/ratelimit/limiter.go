// Package ratelimit limits how often one caller may start an orchestrated
// request. Every request can fan out to several provider calls against shared
// free-tier quotas, so the limit is applied per caller before any dispatch.
package ratelimit

import (
	"sync"
	"time"
)

// Config configures a Limiter.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// RequestsPerSecond is the sustained rate per caller.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// BurstSize is how many requests a caller may make back to back.
	BurstSize int `yaml:"burst_size"`
}

// DefaultConfig returns a disabled limiter with sane rates.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 1,
		BurstSize:         5,
	}
}

// bucket is a token bucket. Callers hold the limiter lock.
type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter keeps one token bucket per caller key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   float64
	enabled bool
	maxKeys int
	now     func() time.Time
}

// NewLimiter creates a limiter. Non-positive rates fall back to the defaults.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = def.BurstSize
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    cfg.RequestsPerSecond,
		burst:   float64(cfg.BurstSize),
		enabled: cfg.Enabled,
		maxKeys: 10000,
		now:     time.Now,
	}
}

// Enabled reports whether requests are limited at all.
func (l *Limiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow consumes a token for key. When none is left it returns false and how
// long the caller should wait before retrying.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if !l.Enabled() {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.maxKeys {
			l.pruneLocked(now)
		}
		b = &bucket{tokens: l.burst, lastRefill: now}
		l.buckets[key] = b
	}
	l.refill(b, now)

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
	return false, wait
}

func (l *Limiter) refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.lastRefill = now
	b.tokens = min(l.burst, b.tokens+elapsed*l.rate)
}

// pruneLocked drops buckets that have refilled completely; their callers
// have been idle long enough that a fresh bucket is equivalent.
func (l *Limiter) pruneLocked(now time.Time) {
	for key, b := range l.buckets {
		l.refill(b, now)
		if b.tokens >= l.burst {
			delete(l.buckets, key)
		}
	}
}

// Len returns the number of tracked callers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
