package observability

import "time"

// MockMetricsRegistry is a no-op implementation of MetricsRegistry for testing.
type MockMetricsRegistry struct{}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementNoFill(reason string)                                        {}
func (m *MockMetricsRegistry) IncrementImpressions(status string)                                   {}
func (m *MockMetricsRegistry) IncrementEvent(eventType string)                                      {}
func (m *MockMetricsRegistry) SetSpendTotal(adID string, amount float64)                            {}
func (m *MockMetricsRegistry) IncrementSpendPersistErrors()                                         {}
func (m *MockMetricsRegistry) IncrementBudgetStops(scope string)                                    {}
func (m *MockMetricsRegistry) IncrementRateLimitRequests(adID string)                               {}
func (m *MockMetricsRegistry) IncrementRateLimitHits(adID string)                                   {}
func (m *MockMetricsRegistry) IncrementReloads(status string)                                       {}
func (m *MockMetricsRegistry) RecordReloadDuration(duration time.Duration)                          {}
