package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Topics this service publishes to.
const (
	TopicAttemptSubmitted  = "attempt.submitted"
	TopicAttemptTerminated = "attempt.integrity_terminated"
)

// Event is the envelope every published message carries.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// AttemptSubmittedPayload notifies the reward/streak service of a finished
// attempt. Consumers treat this as fire-and-forget input.
type AttemptSubmittedPayload struct {
	AttemptID   uint      `json:"attempt_id"`
	StudentID   string    `json:"student_id"`
	SeriesID    uint      `json:"series_id"`
	Score       float64   `json:"score"`
	MaxScore    float64   `json:"max_score"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// AttemptTerminatedPayload records an anti-cheat termination for downstream
// audit consumers.
type AttemptTerminatedPayload struct {
	AttemptID     uint      `json:"attempt_id"`
	StudentID     string    `json:"student_id"`
	SeriesID      uint      `json:"series_id"`
	CheatingScore int       `json:"cheating_score"`
	TotalEvents   int       `json:"total_events"`
	TerminatedAt  time.Time `json:"terminated_at"`
}

// NewEvent builds an envelope around a payload.
func NewEvent(eventType string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    data,
	}, nil
}

// EventPublisher abstracts the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event Event) error
	Close() error
}
