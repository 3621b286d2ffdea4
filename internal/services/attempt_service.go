package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/prepstack/attempt-service/internal/models"
	"github.com/prepstack/attempt-service/internal/repositories"
	"github.com/prepstack/attempt-service/internal/validator"
)

type attemptService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	selector  *PoolSelector
	grading   GradingService
	analytics AnalyticsService
	reward    RewardNotifier
	locks     *attemptLocks
}

func NewAttemptService(
	repo repositories.Repository,
	logger *slog.Logger,
	v *validator.Validator,
	selector *PoolSelector,
	grading GradingService,
	analytics AnalyticsService,
	reward RewardNotifier,
	locks *attemptLocks,
) AttemptService {
	return &attemptService{
		repo:      repo,
		logger:    logger,
		validator: v,
		selector:  selector,
		grading:   grading,
		analytics: analytics,
		reward:    reward,
		locks:     locks,
	}
}

// Start creates a bound, timed attempt: window check, attempt limit, single
// in-progress invariant, then pool selection and slot creation in one
// transaction with the counter increment.
func (s *attemptService) Start(ctx context.Context, req StartAttemptRequest, studentID string) (*StartAttemptResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	series, err := s.repo.Series().GetByID(ctx, req.SeriesID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSeriesNotFound
		}
		return nil, fmt.Errorf("failed to load series: %w", err)
	}

	now := time.Now().UTC()
	if !series.WindowOpen(now) {
		return nil, ErrSeriesWindowClosed
	}

	counter, err := s.repo.Counter().Get(ctx, studentID, series.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempt counter: %w", err)
	}
	if series.MaxAttempts > 0 && counter.Count >= series.MaxAttempts {
		return nil, ErrAttemptLimitExceeded
	}

	active, err := s.repo.Attempt().HasActiveAttempt(ctx, studentID, series.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active attempt: %w", err)
	}
	if active {
		return nil, ErrAttemptInProgress
	}

	variant := s.selector.PickVariant(series.Variants)
	defs, err := sectionDefinitionsFromSeries(series, variant)
	if err != nil {
		return nil, fmt.Errorf("failed to decode series sections: %w", err)
	}

	bound, err := s.selector.Select(defs, series.RandomizeSectionOrder)
	if err != nil {
		return nil, err
	}
	if err := s.attachMarks(ctx, bound); err != nil {
		return nil, err
	}

	attempt := &models.TestAttempt{
		SeriesID:          series.ID,
		StudentID:         studentID,
		Status:            models.AttemptInProgress,
		StartedAt:         now,
		TimeLeft:          series.Duration * 60,
		StrictModeEnabled: series.StrictMode,
		IntegrityStatus:   models.IntegrityClean,
		Version:           1,
	}
	if variant != nil {
		attempt.VariantID = &variant.ID
	}
	if err := attempt.SetBoundQuestions(bound); err != nil {
		return nil, fmt.Errorf("failed to encode bound questions: %w", err)
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Attempt().Create(ctx, attempt); err != nil {
			return err
		}

		slots := make([]models.AttemptResponse, len(bound))
		for i, bq := range bound {
			slots[i] = models.AttemptResponse{
				AttemptID:  attempt.ID,
				QuestionID: bq.QuestionID,
				Status:     models.ResponseUnanswered,
			}
		}
		if err := txRepo.Response().CreateBatch(ctx, slots); err != nil {
			return err
		}

		return txRepo.Counter().Increment(ctx, studentID, series.ID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	s.logger.Info("attempt started",
		"attempt_id", attempt.ID,
		"series_id", series.ID,
		"student_id", studentID,
		"questions", len(bound),
		"strict_mode", attempt.StrictModeEnabled)

	resp := &StartAttemptResponse{
		AttemptID:       attempt.ID,
		SeriesID:        series.ID,
		BoundSections:   groupBySection(bound),
		TimeLeftSeconds: attempt.TimeLeft,
		StrictMode:      attempt.StrictModeEnabled,
		StartedAt:       attempt.StartedAt,
	}
	if variant != nil {
		resp.VariantID = attempt.VariantID
		resp.VariantLabel = variant.Label
	}
	return resp, nil
}

// Save merges a partial response batch into the attempt under optimistic
// concurrency. A version conflict is retried once against the fresh row
// before ErrConcurrencyConflict is surfaced.
func (s *attemptService) Save(ctx context.Context, attemptID uint, req SaveProgressRequest, studentID string) (*SaveProgressResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(attemptID)
	defer unlock()

	var savedVersion int
	var savedAt time.Time

	apply := func() error {
		attempt, err := s.loadOwnedAttempt(ctx, attemptID, studentID)
		if err != nil {
			return err
		}
		if err := requireInProgress(attempt); err != nil {
			return err
		}

		merged, err := s.mergeResponses(attempt, req.Responses)
		if err != nil {
			return err
		}
		attempt.TimeLeft = req.TimeLeftSeconds

		err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
			if err := txRepo.Response().UpdateBatch(ctx, merged); err != nil {
				return err
			}
			return txRepo.Attempt().UpdateWithVersion(ctx, attempt)
		})
		if err != nil {
			return err
		}

		savedVersion = attempt.Version
		savedAt = time.Now().UTC()
		return nil
	}

	if err := apply(); err != nil {
		if !errors.Is(err, repositories.ErrVersionConflict) {
			return nil, err
		}
		// One internal retry against the freshly read document
		if err := apply(); err != nil {
			if errors.Is(err, repositories.ErrVersionConflict) {
				return nil, ErrConcurrencyConflict
			}
			return nil, err
		}
	}

	return &SaveProgressResponse{Version: savedVersion, SavedAt: savedAt}, nil
}

// Submit applies a final save, grades, and transitions to graded, all in one
// transaction. Any failure leaves the attempt in progress with no partial
// score; the reward notification goes out only after the commit.
func (s *attemptService) Submit(ctx context.Context, attemptID uint, req SubmitAttemptRequest, studentID string) (*SubmitAttemptResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(attemptID)
	defer unlock()

	attempt, err := s.loadOwnedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if err := requireInProgress(attempt); err != nil {
		return nil, err
	}

	merged, err := s.mergeResponses(attempt, req.Responses)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	attempt.Status = models.AttemptSubmitted
	attempt.SubmittedAt = &now

	var result *SubmitAttemptResult
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Response().UpdateBatch(ctx, merged); err != nil {
			return err
		}

		gradingResult, err := s.grading.GradeAttempt(ctx, txRepo, attempt)
		if err != nil {
			return err
		}
		result = gradingResult

		return txRepo.Attempt().UpdateWithVersion(ctx, attempt)
	})
	if err != nil {
		// The transaction rolled back; undo the in-memory transition so a
		// retry sees a consistent object.
		attempt.Status = models.AttemptInProgress
		attempt.SubmittedAt = nil
		if errors.Is(err, repositories.ErrVersionConflict) {
			return nil, ErrConcurrencyConflict
		}
		return nil, fmt.Errorf("failed to submit attempt: %w", err)
	}

	s.logger.Info("attempt submitted",
		"attempt_id", attempt.ID,
		"student_id", studentID,
		"score", result.Score,
		"max_score", result.MaxScore)

	s.reward.NotifySubmitted(ctx, attempt)

	return result, nil
}

// Review returns the graded attempt with its per-question breakdown and
// analytics. Graded attempts only.
func (s *attemptService) Review(ctx context.Context, attemptID uint, studentID string, language string) (*ReviewResponse, error) {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != models.AttemptGraded {
		return nil, ErrAttemptNotGraded
	}

	bound, err := attempt.GetBoundQuestions()
	if err != nil {
		return nil, fmt.Errorf("failed to decode bound questions: %w", err)
	}

	ids := make([]uint, len(bound))
	for i, bq := range bound {
		ids[i] = bq.QuestionID
	}
	questions, err := s.repo.Question().GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	byID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	byQuestion := make(map[uint]*models.AttemptResponse, len(attempt.Responses))
	for i := range attempt.Responses {
		byQuestion[attempt.Responses[i].QuestionID] = &attempt.Responses[i]
	}

	reviews := make([]QuestionReview, 0, len(bound))
	for _, bq := range bound {
		question, ok := byID[bq.QuestionID]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", ErrQuestionNotFound, bq.QuestionID)
		}
		review, err := buildQuestionReview(bq, question, byQuestion[bq.QuestionID], language)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}

	return &ReviewResponse{
		Attempt:   summarize(attempt),
		Questions: reviews,
		Analytics: s.analytics.BuildForAttempt(attempt, byID),
	}, nil
}

// Resume restores an interrupted in-progress attempt for the client.
func (s *attemptService) Resume(ctx context.Context, attemptID uint, studentID string) (*ResumeAttemptResponse, error) {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if err := requireInProgress(attempt); err != nil {
		return nil, err
	}

	bound, err := attempt.GetBoundQuestions()
	if err != nil {
		return nil, fmt.Errorf("failed to decode bound questions: %w", err)
	}

	inputs := make([]ResponseInput, 0, len(attempt.Responses))
	for i := range attempt.Responses {
		r := &attempt.Responses[i]
		selected, err := r.GetSelectedOptions()
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, ResponseInput{
			QuestionID:      r.QuestionID,
			SelectedOptions: selected,
			TimeSpent:       r.TimeSpent,
			Flagged:         r.Flagged,
			Confidence:      r.Confidence,
		})
	}

	remaining, err := s.remainingSeconds(ctx, attempt)
	if err != nil {
		return nil, err
	}

	return &ResumeAttemptResponse{
		AttemptID:       attempt.ID,
		SeriesID:        attempt.SeriesID,
		BoundSections:   groupBySection(bound),
		Responses:       inputs,
		TimeLeftSeconds: remaining,
		StrictMode:      attempt.StrictModeEnabled,
		Version:         attempt.Version,
	}, nil
}

// GetTimeRemaining reports the server-computed clock for an attempt.
func (s *attemptService) GetTimeRemaining(ctx context.Context, attemptID uint, studentID string) (*TimeRemainingResponse, error) {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if !attempt.IsActive() {
		return &TimeRemainingResponse{TimeLeftSeconds: 0, Expired: true}, nil
	}

	remaining, err := s.remainingSeconds(ctx, attempt)
	if err != nil {
		return nil, err
	}
	return &TimeRemainingResponse{
		TimeLeftSeconds: remaining,
		Expired:         remaining <= 0,
	}, nil
}

// HandleTimeout submits an expired attempt with its last saved responses.
// The core never self-triggers timeouts; an external timer or the client
// calls this when the deadline passes.
func (s *attemptService) HandleTimeout(ctx context.Context, attemptID uint, studentID string) (*SubmitAttemptResult, error) {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if err := requireInProgress(attempt); err != nil {
		return nil, err
	}
	remaining, err := s.remainingSeconds(ctx, attempt)
	if err != nil {
		return nil, err
	}
	if remaining > 0 {
		return nil, NewBusinessRuleError("attempt_not_expired", "attempt deadline has not passed")
	}

	return s.Submit(ctx, attemptID, SubmitAttemptRequest{}, studentID)
}

func (s *attemptService) GetByID(ctx context.Context, attemptID uint, requester *models.User) (*AttemptSummary, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt: %w", err)
	}

	if attempt.StudentID != requester.ID && !requester.IsStaff() {
		return nil, NewPermissionError(requester.ID, "view", "attempt")
	}

	return summarize(attempt), nil
}

func (s *attemptService) List(ctx context.Context, filters repositories.AttemptFilters, requester *models.User) ([]*AttemptSummary, int64, error) {
	// Students only ever see their own attempts
	if !requester.IsStaff() {
		filters.StudentID = &requester.ID
	}

	attempts, total, err := s.repo.Attempt().List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list attempts: %w", err)
	}

	summaries := make([]*AttemptSummary, len(attempts))
	for i, attempt := range attempts {
		summaries[i] = summarize(attempt)
	}
	return summaries, total, nil
}
