package infrastructure

import (
	"sync"
	"time"
)

// RateLimitResult is the outcome of one admission attempt. A deny is a normal
// return value; limiter unavailability is never surfaced to callers.
type RateLimitResult struct {
	OK                bool
	RetryAfterSeconds int
}

type rateBucket struct {
	count   int
	resetAt time.Time
}

// LocalRateLimiter is a fixed-window counter keyed by arbitrary strings.
// Windows do not slide: a burst at a window boundary can admit up to twice
// the limit across the boundary. State is per instance so tests can isolate
// and reset it.
type LocalRateLimiter struct {
	mu          sync.Mutex
	buckets     map[string]*rateBucket
	cleanupTick time.Duration
	stop        chan struct{}
}

func NewLocalRateLimiter() *LocalRateLimiter {
	rl := &LocalRateLimiter{
		buckets:     make(map[string]*rateBucket),
		cleanupTick: 5 * time.Minute,
		stop:        make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Consume admits one request under key if fewer than limit requests have been
// admitted in the current window. The first request in a window opens a bucket
// expiring at now+window. On deny, RetryAfterSeconds is the rounded-up time
// until the window resets, minimum 1.
func (rl *LocalRateLimiter) Consume(key string, limit int, window time.Duration, now time.Time) RateLimitResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, exists := rl.buckets[key]
	if !exists || !bucket.resetAt.After(now) {
		rl.buckets[key] = &rateBucket{count: 1, resetAt: now.Add(window)}
		return RateLimitResult{OK: true}
	}

	if bucket.count >= limit {
		retryAfter := int((bucket.resetAt.Sub(now) + time.Second - 1) / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
		return RateLimitResult{OK: false, RetryAfterSeconds: retryAfter}
	}

	bucket.count++
	return RateLimitResult{OK: true}
}

// Reset clears all buckets.
func (rl *LocalRateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.buckets = make(map[string]*rateBucket)
}

// Close stops the background cleanup goroutine.
func (rl *LocalRateLimiter) Close() {
	close(rl.stop)
}

func (rl *LocalRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.cleanupTick)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			now := time.Now()
			rl.mu.Lock()
			for key, bucket := range rl.buckets {
				if !bucket.resetAt.After(now) {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}
