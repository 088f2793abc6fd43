package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// bucket tracks one client's limiter and last activity
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	// denied tracks whether the first denial callback already fired
	// resets when the entry is evicted and re-created
	denied bool
}

// Limiter holds one token bucket per client key with background eviction.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	perSecond rate.Limit
	burst     int

	// ttl controls how long an idle key stays in the map
	ttl time.Duration

	// onFirstDenied fires once per bucket lifetime, used for logging
	onFirstDenied func(key string)

	// onDenied fires on every denial, used for counters
	onDenied func(key string)

	// maxKeys caps the map so spoofed addresses cannot grow it without
	// bound, 0 disables the cap
	maxKeys int

	// onCapacity fires once per saturation, re-armed when the map drains
	onCapacity func()
	atCapacity bool
}

type Option func(*Limiter)

// WithRate sets the bucket size and refill rate.
// WithRate(10, 50) allows 50 requests at once, then refills at 10 per second.
func WithRate(perSecond float64, burst int) Option {
	return func(l *Limiter) {
		l.perSecond = rate.Limit(perSecond)
		l.burst = burst
	}
}

// WithTTL controls how long an idle key is kept before cleanup.
func WithTTL(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.ttl = d
		}
	}
}

// WithOnFirstDenied sets a callback for the first denial per key.
func WithOnFirstDenied(fn func(key string)) Option {
	return func(l *Limiter) { l.onFirstDenied = fn }
}

// WithOnDenied sets a callback for every denial.
func WithOnDenied(fn func(key string)) Option {
	return func(l *Limiter) { l.onDenied = fn }
}

// WithMaxKeys caps the number of tracked keys. New keys are denied while
// the map is full; known keys are still rate limited normally.
func WithMaxKeys(n int) Option {
	return func(l *Limiter) { l.maxKeys = n }
}

// WithOnCapacity sets a callback for the first denial caused by a full map.
func WithOnCapacity(fn func()) Option {
	return func(l *Limiter) { l.onCapacity = fn }
}

// NewLimiter creates a Limiter whose cleanup goroutine stops with ctx.
func NewLimiter(ctx context.Context, opts ...Option) *Limiter {
	l := &Limiter{
		buckets:   make(map[string]*bucket),
		perSecond: 10,
		burst:     30,
		ttl:       5 * time.Minute,
		maxKeys:   100000,
	}
	for _, o := range opts {
		o(l)
	}
	go l.cleanup(ctx)
	return l
}

// Allow takes a token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	b, exists := l.buckets[key]
	if !exists && l.maxKeys > 0 && len(l.buckets) >= l.maxKeys {
		fire := !l.atCapacity
		l.atCapacity = true
		l.mu.Unlock()
		if fire && l.onCapacity != nil {
			l.onCapacity()
		}
		return false
	}
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	allowed := b.limiter.Allow()
	first := !allowed && !b.denied
	if first {
		b.denied = true
	}
	// callbacks may be slow, never run them under the lock
	l.mu.Unlock()

	if allowed {
		return true
	}
	if first && l.onFirstDenied != nil {
		l.onFirstDenied(key)
	}
	if l.onDenied != nil {
		l.onDenied(key)
	}
	return false
}

// Len is the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// cleanup evicts idle buckets every ttl/2.
func (l *Limiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for key, b := range l.buckets {
				if now.Sub(b.lastSeen) > l.ttl {
					delete(l.buckets, key)
				}
			}
			if l.maxKeys <= 0 || len(l.buckets) < l.maxKeys {
				l.atCapacity = false
			}
			l.mu.Unlock()
		}
	}
}
