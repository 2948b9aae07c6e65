// Package ratelimit provides per-client token bucket rate limiting.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether a keyed request may proceed.
type RateLimiter interface {
	// Allow reports whether one request for key may proceed now.
	Allow(ctx context.Context, key string) bool

	// RetryAfter estimates how long key must wait for its next token.
	RetryAfter(key string) time.Duration
}

// InMemoryRateLimiter keeps one token bucket per key in process memory.
// Suitable for a single instance.
type InMemoryRateLimiter struct {
	rate  rate.Limit
	burst int

	limiters   sync.Map // map[string]*rate.Limiter
	lastAccess sync.Map // map[string]time.Time

	cleanupInterval time.Duration
	maxAge          time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewInMemoryRateLimiter creates a limiter allowing rps requests per second
// with bursts up to burst. Call Stop to end the cleanup goroutine.
func NewInMemoryRateLimiter(rps float64, burst int) *InMemoryRateLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &InMemoryRateLimiter{
		rate:            rate.Limit(rps),
		burst:           burst,
		cleanupInterval: 5 * time.Minute,
		maxAge:          10 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow consumes a token for key if one is available.
func (l *InMemoryRateLimiter) Allow(_ context.Context, key string) bool {
	now := time.Now().UTC()
	l.lastAccess.Store(key, now)
	return l.getLimiter(key).AllowN(now, 1)
}

// RetryAfter rounds the wait for key's next token up to whole seconds,
// at least one.
func (l *InMemoryRateLimiter) RetryAfter(key string) time.Duration {
	r := l.getLimiter(key).ReserveN(time.Now(), 1)
	if !r.OK() {
		return time.Second
	}
	delay := r.Delay()
	r.Cancel()
	secs := math.Ceil(delay.Seconds())
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

func (l *InMemoryRateLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := l.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}
	actual, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.rate, l.burst))
	return actual.(*rate.Limiter)
}

func (l *InMemoryRateLimiter) cleanup() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanupOldLimiters(time.Now().UTC())
		case <-l.stopCleanup:
			return
		}
	}
}

// cleanupOldLimiters drops buckets idle for longer than maxAge.
func (l *InMemoryRateLimiter) cleanupOldLimiters(now time.Time) int {
	cutoff := now.Add(-l.maxAge)
	var stale []string
	l.lastAccess.Range(func(key, value any) bool {
		if value.(time.Time).Before(cutoff) {
			stale = append(stale, key.(string))
		}
		return true
	})
	for _, key := range stale {
		l.limiters.Delete(key)
		l.lastAccess.Delete(key)
	}
	return len(stale)
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (l *InMemoryRateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
}

// ActiveKeys returns the number of tracked keys.
func (l *InMemoryRateLimiter) ActiveKeys() int {
	var count int
	l.limiters.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}
