package analytics

import (
	"context"
	"sync"
)

var _ EventSink = (*MockSink)(nil)

// MockSink is an in-memory EventSink for testing.
type MockSink struct {
	mu     sync.Mutex
	Events []Event
	Err    error // returned from RecordEvent when set
}

// NewMockSink creates an empty mock sink.
func NewMockSink() *MockSink {
	return &MockSink{}
}

// RecordEvent captures the event in memory.
func (m *MockSink) RecordEvent(ctx context.Context, ev Event) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
	return nil
}

// Recorded returns a copy of the captured events.
func (m *MockSink) Recorded() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.Events))
	copy(out, m.Events)
	return out
}
