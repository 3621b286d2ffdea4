package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/prepstack/attempt-service/internal/config"
	"github.com/prepstack/attempt-service/internal/events"
	"github.com/prepstack/attempt-service/internal/models"
	"github.com/prepstack/attempt-service/internal/repositories"
	"github.com/prepstack/attempt-service/internal/validator"
)

type proctorService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	engine    config.EngineConfig
	publisher events.EventPublisher
	locks     *attemptLocks
}

func NewProctorService(
	repo repositories.Repository,
	logger *slog.Logger,
	v *validator.Validator,
	engine config.EngineConfig,
	publisher events.EventPublisher,
	locks *attemptLocks,
) ProctorService {
	return &proctorService{
		repo:      repo,
		logger:    logger,
		validator: v,
		engine:    engine,
		publisher: publisher,
		locks:     locks,
	}
}

// Classify maps a violation type to its severity. Unknown types get the
// configured default rather than being rejected: new client-side detectors
// must not require a server deploy to be recorded.
func (s *proctorService) Classify(eventType string) models.CheatSeverity {
	if severity, ok := s.engine.SeverityByType[eventType]; ok {
		return severity
	}
	return s.engine.DefaultSeverity
}

// LogEvent appends a violation, recomputes the cumulative score, and applies
// the escalation thresholds. It holds the same per-attempt lock as save and
// submit, so a termination decided here cannot race with a save that would
// sneak past it. The lock only covers this process; a writer on another
// instance can still bump the version, so a conflict is retried once against
// the fresh row before ErrConcurrencyConflict is surfaced.
func (s *proctorService) LogEvent(ctx context.Context, attemptID uint, req CheatEventRequest, studentID string) (*CheatEventResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	var metadata []byte
	if req.Metadata != nil {
		data, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode event metadata: %w", err)
		}
		metadata = data
	}

	unlock := s.locks.Lock(attemptID)
	defer unlock()

	apply := func() (*CheatEventResult, error) {
		attempt, err := s.loadAttempt(ctx, attemptID, studentID)
		if err != nil {
			return nil, err
		}
		if err := requireInProgress(attempt); err != nil {
			return nil, err
		}
		if !attempt.StrictModeEnabled {
			return nil, ErrStrictModeDisabled
		}

		severity := s.Classify(req.Type)
		if req.Severity != nil {
			severity = *req.Severity
		}
		weight := s.engine.SeverityWeights[severity]

		event := &models.CheatingEvent{
			AttemptID:       attempt.ID,
			Type:            req.Type,
			Severity:        severity,
			QuestionIndex:   req.QuestionIndex,
			Description:     req.Description,
			TimeRemaining:   req.TimeRemaining,
			SectionID:       req.SectionID,
			ClientSignature: req.ClientSignature,
			Metadata:        metadata,
		}

		attempt.CheatingScore += weight
		attempt.TotalCheatingAttempts++

		terminate := attempt.CheatingScore >= s.engine.TerminateThreshold
		switch {
		case terminate:
			attempt.IntegrityStatus = models.IntegrityTerminated
			attempt.Status = models.AttemptAborted
			attempt.ExamTerminatedForCheating = true
		case attempt.CheatingScore >= s.engine.FlaggedThreshold:
			attempt.IntegrityStatus = models.IntegrityFlagged
		}

		err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
			if err := txRepo.CheatingEvent().Append(ctx, event); err != nil {
				return err
			}
			return txRepo.Attempt().UpdateWithVersion(ctx, attempt)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to record cheating event: %w", err)
		}

		s.logger.Warn("cheating event recorded",
			"attempt_id", attempt.ID,
			"student_id", studentID,
			"type", req.Type,
			"severity", severity,
			"cheating_score", attempt.CheatingScore,
			"integrity_status", attempt.IntegrityStatus)

		if terminate {
			s.publishTermination(ctx, attempt)
		}

		return &CheatEventResult{
			CheatingScore:   attempt.CheatingScore,
			IntegrityStatus: attempt.IntegrityStatus,
			ShouldTerminate: terminate,
		}, nil
	}

	result, err := apply()
	if errors.Is(err, repositories.ErrVersionConflict) {
		// One internal retry against the freshly read row
		result, err = apply()
		if errors.Is(err, repositories.ErrVersionConflict) {
			return nil, ErrConcurrencyConflict
		}
	}
	return result, err
}

func (s *proctorService) loadAttempt(ctx context.Context, attemptID uint, studentID string) (*models.TestAttempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, NewPermissionError(studentID, "report", "attempt")
	}
	return attempt, nil
}

// publishTermination emits the audit event after the commit. Broker failures
// are logged, never surfaced: the termination already took effect.
func (s *proctorService) publishTermination(ctx context.Context, attempt *models.TestAttempt) {
	event, err := events.NewEvent(events.TopicAttemptTerminated, events.AttemptTerminatedPayload{
		AttemptID:     attempt.ID,
		StudentID:     attempt.StudentID,
		SeriesID:      attempt.SeriesID,
		CheatingScore: attempt.CheatingScore,
		TotalEvents:   attempt.TotalCheatingAttempts,
		TerminatedAt:  time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("failed to build termination event", "attempt_id", attempt.ID, "error", err)
		return
	}

	if err := s.publisher.Publish(ctx, events.TopicAttemptTerminated, event); err != nil {
		s.logger.Error("failed to publish termination event", "attempt_id", attempt.ID, "error", err)
	}
}
