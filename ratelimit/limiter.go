// Package ratelimit caps outbound provider calls with one token bucket per
// key (typically the API key the calls are made with).
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultRate is the provider call budget, in requests per second, used when
// no rate is configured.
const DefaultRate = 10

// Limiter holds one token bucket per key. Buckets start full and hold at
// most rate tokens.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens   float64
	lastFill time.Time
	rate     float64
}

// New creates a limiter.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes a token for key if one is available. rate <= 0 disables
// limiting.
func (l *Limiter) Allow(key string, rate int) bool {
	_, ok := l.reserve(key, rate)
	return ok
}

// Wait blocks until key has a token or ctx is done. rate <= 0 disables
// limiting.
func (l *Limiter) Wait(ctx context.Context, key string, rate int) error {
	for {
		delay, ok := l.reserve(key, rate)
		if ok {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Reset forgets the bucket for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// reserve takes a token, or reports how long until one is available.
func (l *Limiter) reserve(key string, rate int) (time.Duration, bool) {
	if rate <= 0 {
		return 0, true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || b.rate != float64(rate) {
		b = &bucket{tokens: float64(rate), lastFill: now, rate: float64(rate)}
		l.buckets[key] = b
	}

	b.tokens = min(b.rate, b.tokens+now.Sub(b.lastFill).Seconds()*b.rate)
	b.lastFill = now

	if b.tokens >= 1 {
		b.tokens--
		return 0, true
	}
	missing := 1 - b.tokens
	return time.Duration(missing / b.rate * float64(time.Second)), false
}
