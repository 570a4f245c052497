package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adserve_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adserve_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// number of placement resolutions returning no ads
	NoFillCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adserve_nofill_total",
			Help: "Total empty placement resolutions",
		},
		[]string{"reason"},
	)

	// number of impression events received (status label)
	ImpressionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adserve_impressions_total",
			Help: "Total impression events",
		},
		[]string{"status"},
	)

	// number of events recorded, labelled by type
	EventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adserve_events_total",
			Help: "Total events recorded",
		},
		[]string{"type"},
	)

	// spend tracked per ad
	SpendTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adserve_spend_total",
			Help: "Total spend recorded per ad",
		},
		[]string{"ad_id"},
	)

	// number of errors persisting spend or counter updates
	SpendPersistErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adserve_spend_persist_errors_total",
			Help: "Total spend persistence errors",
		},
	)

	// budget hard stops, labelled by which limit tripped
	BudgetStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adserve_budget_stops_total",
			Help: "Total budget hard stops",
		},
		[]string{"scope"},
	)

	// rate limit requests per ad
	RateLimitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adserve_ratelimit_requests_total",
			Help: "Total rate limit checks per ad",
		},
		[]string{"ad_id"},
	)

	// rate limit hits per ad
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adserve_ratelimit_hits_total",
			Help: "Total rate limit hits per ad",
		},
		[]string{"ad_id"},
	)

	// snapshot reloads by outcome
	ReloadCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adserve_reloads_total",
			Help: "Total snapshot reloads",
		},
		[]string{"status"},
	)

	// snapshot reload duration
	ReloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adserve_reload_duration_seconds",
			Help:    "Duration of snapshot reloads",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		NoFillCount,
		ImpressionCount,
		EventCount,
		SpendTotal,
		SpendPersistErrors,
		BudgetStops,
		RateLimitRequests,
		RateLimitHits,
		ReloadCount,
		ReloadDuration,
	)
}
