package ratelimit

import (
	"testing"

	"github.com/panelworks/adserve/internal/observability"
)

func TestTokenBucketBurstAndExhaustion(t *testing.T) {
	tb := NewTokenBucket(3, 1)
	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("request %d rejected within burst capacity", i)
		}
	}
	if tb.Allow() {
		t.Fatal("request allowed with empty bucket")
	}
	hits, total := tb.Stats()
	if hits != 1 || total != 4 {
		t.Fatalf("stats = %d/%d, want 1/4", hits, total)
	}
}

func TestAdLimiterDisabled(t *testing.T) {
	l := NewAdLimiter(Config{Capacity: 1, RefillRate: 1, Enabled: false}, &observability.MockMetricsRegistry{})
	for i := 0; i < 100; i++ {
		if !l.Allow(1) {
			t.Fatal("disabled limiter rejected a request")
		}
	}
}

func TestAdLimiterPerAdBuckets(t *testing.T) {
	l := NewAdLimiter(Config{Capacity: 1, RefillRate: 1, Enabled: true}, &observability.MockMetricsRegistry{})

	if !l.Allow(1) {
		t.Fatal("first request for ad 1 rejected")
	}
	if l.Allow(1) {
		t.Fatal("second request for ad 1 allowed past capacity")
	}
	// A different ad has its own bucket.
	if !l.Allow(2) {
		t.Fatal("first request for ad 2 rejected")
	}

	stats := l.GetStats()
	if s := stats["1"]; s.Hits != 1 || s.Total != 2 {
		t.Fatalf("ad 1 stats = %+v", s)
	}
}
