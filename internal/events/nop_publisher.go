package events

import (
	"context"
	"log/slog"
)

// NopEventPublisher drops events, logging them at debug. Used when the broker
// is disabled; callers never need to branch on "is Kafka on".
type NopEventPublisher struct {
	logger *slog.Logger
}

func NewNopEventPublisher(logger *slog.Logger) *NopEventPublisher {
	return &NopEventPublisher{logger: logger}
}

func (p *NopEventPublisher) Publish(ctx context.Context, topic string, event Event) error {
	p.logger.Debug("event dropped, publisher disabled",
		"topic", topic,
		"event_type", event.Type)
	return nil
}

func (p *NopEventPublisher) Close() error {
	return nil
}
