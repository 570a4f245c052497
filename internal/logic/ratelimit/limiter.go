package ratelimit

import (
	"fmt"
	"sync"

	"github.com/panelworks/adserve/internal/observability"
)

// AdLimiter manages delivery rate limiting across many ads.
//
// Each ad gets its own token bucket, created lazily on first access, so a
// single runaway creative cannot monopolize a slot's traffic. Rate limiting
// activity is reported through the injected metrics registry.
type AdLimiter struct {
	buckets map[string]*TokenBucket
	mu      sync.RWMutex
	config  Config
	metrics observability.MetricsRegistry
}

// Config holds the configuration for rate limiting.
type Config struct {
	Capacity   int  // token bucket capacity (burst allowance)
	RefillRate int  // tokens added per second (sustained rate)
	Enabled    bool // whether rate limiting is active
}

// NewAdLimiter creates a new per-ad rate limiter with the given configuration.
func NewAdLimiter(config Config, metrics observability.MetricsRegistry) *AdLimiter {
	return &AdLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		metrics: metrics,
	}
}

// Allow checks whether the ad may be served right now. When rate limiting is
// disabled it always returns true.
func (al *AdLimiter) Allow(adID int) bool {
	if !al.config.Enabled {
		return true
	}
	key := fmt.Sprintf("%d", adID)
	al.metrics.IncrementRateLimitRequests(key)

	al.mu.RLock()
	bucket, exists := al.buckets[key]
	al.mu.RUnlock()

	if !exists {
		al.mu.Lock()
		bucket, exists = al.buckets[key]
		if !exists {
			bucket = NewTokenBucket(al.config.Capacity, al.config.RefillRate)
			al.buckets[key] = bucket
		}
		al.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		al.metrics.IncrementRateLimitHits(key)
	}
	return allowed
}

// Stats contains rate limiting statistics for a single ad.
type Stats struct {
	AdID    string  `json:"ad_id"`
	Hits    int64   `json:"hits"`
	Total   int64   `json:"total"`
	HitRate float64 `json:"hit_rate"`
}

// GetStats returns a snapshot of rate limiting statistics for every ad seen
// so far.
func (al *AdLimiter) GetStats() map[string]Stats {
	al.mu.RLock()
	defer al.mu.RUnlock()

	out := make(map[string]Stats, len(al.buckets))
	for id, bucket := range al.buckets {
		hits, total := bucket.Stats()
		rate := 0.0
		if total > 0 {
			rate = float64(hits) / float64(total)
		}
		out[id] = Stats{AdID: id, Hits: hits, Total: total, HitRate: rate}
	}
	return out
}
