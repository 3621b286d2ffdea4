package events

import (
	"context"
	"fmt"
	"sync"
)

// PublishedEvent is one captured publish call.
type PublishedEvent struct {
	Topic string
	Event Event
}

// MockEventPublisher records published events for tests.
type MockEventPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
	closed bool

	// FailNext makes the next Publish call fail once.
	FailNext bool
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) Publish(ctx context.Context, topic string, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("publisher closed")
	}
	if m.FailNext {
		m.FailNext = false
		return fmt.Errorf("simulated publish failure")
	}

	m.events = append(m.events, PublishedEvent{Topic: topic, Event: event})
	return nil
}

func (m *MockEventPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Published returns a copy of the captured events.
func (m *MockEventPublisher) Published() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedEvent, len(m.events))
	copy(out, m.events)
	return out
}

// PublishedTo filters captured events by topic.
func (m *MockEventPublisher) PublishedTo(topic string) []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PublishedEvent
	for _, e := range m.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}
