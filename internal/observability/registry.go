package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// Components take the interface so tests can inject a no-op or mock registry
// instead of touching global Prometheus state.
type MetricsRegistry interface {
	// HTTP request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Placement resolution metrics
	IncrementNoFill(reason string)

	// Event tracking metrics
	IncrementImpressions(status string)
	IncrementEvent(eventType string)

	// Spend tracking metrics
	SetSpendTotal(adID string, amount float64)
	IncrementSpendPersistErrors()
	IncrementBudgetStops(scope string)

	// Rate limiting metrics
	IncrementRateLimitRequests(adID string)
	IncrementRateLimitHits(adID string)

	// Snapshot reload metrics
	IncrementReloads(status string)
	RecordReloadDuration(duration time.Duration)
}

// PrometheusRegistry implements MetricsRegistry on the package's global
// Prometheus metrics.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry.
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementNoFill(reason string) {
	NoFillCount.WithLabelValues(reason).Inc()
}

func (r *PrometheusRegistry) IncrementImpressions(status string) {
	ImpressionCount.WithLabelValues(status).Inc()
}

func (r *PrometheusRegistry) IncrementEvent(eventType string) {
	EventCount.WithLabelValues(eventType).Inc()
}

func (r *PrometheusRegistry) SetSpendTotal(adID string, amount float64) {
	SpendTotal.WithLabelValues(adID).Set(amount)
}

func (r *PrometheusRegistry) IncrementSpendPersistErrors() {
	SpendPersistErrors.Inc()
}

func (r *PrometheusRegistry) IncrementBudgetStops(scope string) {
	BudgetStops.WithLabelValues(scope).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitRequests(adID string) {
	RateLimitRequests.WithLabelValues(adID).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(adID string) {
	RateLimitHits.WithLabelValues(adID).Inc()
}

func (r *PrometheusRegistry) IncrementReloads(status string) {
	ReloadCount.WithLabelValues(status).Inc()
}

func (r *PrometheusRegistry) RecordReloadDuration(duration time.Duration) {
	ReloadDuration.Observe(duration.Seconds())
}
