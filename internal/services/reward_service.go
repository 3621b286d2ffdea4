package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/prepstack/attempt-service/internal/events"
	"github.com/prepstack/attempt-service/internal/models"
)

type rewardNotifier struct {
	publisher events.EventPublisher
	logger    *slog.Logger
}

// NewRewardNotifier wraps the broker publisher in fire-and-forget semantics.
func NewRewardNotifier(publisher events.EventPublisher, logger *slog.Logger) RewardNotifier {
	return &rewardNotifier{publisher: publisher, logger: logger}
}

// NotifySubmitted publishes the submission event for the reward/streak
// consumer. A broker failure is logged and dropped: the submission already
// committed, and scoring must never depend on the reward pipeline.
func (n *rewardNotifier) NotifySubmitted(ctx context.Context, attempt *models.TestAttempt) {
	submittedAt := time.Now().UTC()
	if attempt.SubmittedAt != nil {
		submittedAt = *attempt.SubmittedAt
	}

	event, err := events.NewEvent(events.TopicAttemptSubmitted, events.AttemptSubmittedPayload{
		AttemptID:   attempt.ID,
		StudentID:   attempt.StudentID,
		SeriesID:    attempt.SeriesID,
		Score:       attempt.Score,
		MaxScore:    attempt.MaxScore,
		SubmittedAt: submittedAt,
	})
	if err != nil {
		n.logger.Error("failed to build submission event", "attempt_id", attempt.ID, "error", err)
		return
	}

	if err := n.publisher.Publish(ctx, events.TopicAttemptSubmitted, event); err != nil {
		n.logger.Error("failed to publish submission event", "attempt_id", attempt.ID, "error", err)
	}
}
