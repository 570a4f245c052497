// Package ratelimit implements token bucket rate limiting for ad delivery.
//
// The token bucket algorithm allows burst traffic up to the bucket capacity
// while holding a sustained rate over time, which suits ad slots whose
// traffic spikes with page popularity.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket implements a thread-safe token bucket rate limiter.
//
// The bucket has a fixed capacity and refills at a constant rate. Each
// request consumes one token; when the bucket is empty requests are rejected
// until tokens refill.
type TokenBucket struct {
	capacity   int
	tokens     int
	refillRate int // tokens added per second
	lastRefill time.Time

	hits  int64 // rejected requests
	total int64 // all requests

	mu sync.Mutex
}

// NewTokenBucket creates a bucket that starts full.
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow consumes a token if one is available and reports whether the request
// may proceed.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	tb.total++
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	tb.hits++
	return false
}

// refill adds tokens owed since the last refill. Caller holds the lock.
func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)
	owed := int(elapsed.Seconds() * float64(tb.refillRate))
	if owed <= 0 {
		return
	}
	tb.tokens += owed
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

// Stats returns the number of rejected and total requests seen so far.
func (tb *TokenBucket) Stats() (hits, total int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.hits, tb.total
}
