package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/prepstack/attempt-service/internal/models"
)

// loadOwnedAttempt fetches the attempt with its responses and enforces
// ownership. Students only ever touch their own attempts.
func (s *attemptService) loadOwnedAttempt(ctx context.Context, attemptID uint, studentID string) (*models.TestAttempt, error) {
	attempt, err := s.repo.Attempt().GetWithResponses(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, NewPermissionError(studentID, "modify", "attempt")
	}
	return attempt, nil
}

// requireInProgress rejects mutations on attempts past the in-progress state.
// Terminated attempts get their own error so clients can distinguish "you were
// removed from this exam" from ordinary lifecycle violations.
func requireInProgress(attempt *models.TestAttempt) error {
	if attempt.Status == models.AttemptAborted {
		return ErrAttemptTerminated
	}
	if attempt.Status != models.AttemptInProgress {
		return ErrAttemptNotInProgress
	}
	return nil
}

// mergeResponses folds a client batch into the attempt's response rows.
// Every input must target a bound question; the revisit counter moves only
// when the selection actually changed.
func (s *attemptService) mergeResponses(attempt *models.TestAttempt, inputs []ResponseInput) ([]models.AttemptResponse, error) {
	byQuestion := make(map[uint]*models.AttemptResponse, len(attempt.Responses))
	for i := range attempt.Responses {
		byQuestion[attempt.Responses[i].QuestionID] = &attempt.Responses[i]
	}

	now := time.Now().UTC()
	merged := make([]models.AttemptResponse, 0, len(inputs))

	for _, input := range inputs {
		row, ok := byQuestion[input.QuestionID]
		if !ok {
			return nil, fmt.Errorf("%w: question %d is not part of attempt %d", ErrUnknownQuestion, input.QuestionID, attempt.ID)
		}

		current, err := row.GetSelectedOptions()
		if err != nil {
			return nil, err
		}

		if !stringSetsEqual(current, input.SelectedOptions) {
			if err := row.SetSelectedOptions(input.SelectedOptions); err != nil {
				return nil, err
			}
			row.Attempts++
			row.LastModifiedAt = &now
		}

		if len(input.SelectedOptions) > 0 {
			row.Status = models.ResponseAnswered
		} else {
			row.Status = models.ResponseUnanswered
		}

		if input.TimeSpent > row.TimeSpent {
			row.TimeSpent = input.TimeSpent
		}
		row.Flagged = input.Flagged
		if input.Confidence != nil {
			row.Confidence = input.Confidence
		}
		if row.VisitedAt == nil {
			row.VisitedAt = &now
		}

		merged = append(merged, *row)
	}

	return merged, nil
}

// attachMarks fills each bound question's marks from the question bank.
func (s *attemptService) attachMarks(ctx context.Context, bound []models.BoundQuestion) error {
	ids := make([]uint, len(bound))
	for i, bq := range bound {
		ids[i] = bq.QuestionID
	}

	questions, err := s.repo.Question().GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load questions: %w", err)
	}
	marks := make(map[uint]int, len(questions))
	for _, q := range questions {
		marks[q.ID] = q.Marks
	}

	for i := range bound {
		m, ok := marks[bound[i].QuestionID]
		if !ok {
			return fmt.Errorf("%w: id %d", ErrQuestionNotFound, bound[i].QuestionID)
		}
		bound[i].Marks = m
	}
	return nil
}

// remainingSeconds computes the authoritative clock from the start timestamp
// and the series duration. The client-reported time_left is never trusted for
// expiry decisions.
func (s *attemptService) remainingSeconds(ctx context.Context, attempt *models.TestAttempt) (int, error) {
	series, err := s.repo.Series().GetByID(ctx, attempt.SeriesID)
	if err != nil {
		return 0, fmt.Errorf("failed to load series: %w", err)
	}

	deadline := attempt.Deadline(time.Duration(series.Duration) * time.Minute)
	remaining := int(time.Until(deadline).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// groupBySection rebuilds the sectioned client view from the flat binding,
// preserving the bound order.
func groupBySection(bound []models.BoundQuestion) []BoundSectionView {
	var views []BoundSectionView
	index := make(map[uint]int)

	for _, bq := range bound {
		i, ok := index[bq.SectionID]
		if !ok {
			i = len(views)
			index[bq.SectionID] = i
			views = append(views, BoundSectionView{
				SectionID: bq.SectionID,
				Title:     bq.SectionTitle,
				Order:     i,
			})
		}
		views[i].Questions = append(views[i].Questions, bq.QuestionID)
	}

	return views
}

// summarize projects an attempt onto its listing read model.
func summarize(attempt *models.TestAttempt) *AttemptSummary {
	return &AttemptSummary{
		ID:               attempt.ID,
		SeriesID:         attempt.SeriesID,
		SeriesTitle:      attempt.Series.Title,
		StudentID:        attempt.StudentID,
		Status:           attempt.Status,
		Score:            attempt.Score,
		MaxScore:         attempt.MaxScore,
		Percentage:       attempt.Percentage,
		IntegrityStatus:  attempt.IntegrityStatus,
		StartedAt:        attempt.StartedAt,
		SubmittedAt:      attempt.SubmittedAt,
		TimeTakenSeconds: attempt.TimeTakenSeconds,
	}
}

// buildQuestionReview assembles one graded question's review entry in the
// requested language.
func buildQuestionReview(bq models.BoundQuestion, question *models.Question, response *models.AttemptResponse, language string) (QuestionReview, error) {
	translation, err := question.Translation(language)
	if err != nil {
		return QuestionReview{}, err
	}

	options := make([]ReviewOption, len(translation.Options))
	var correct []string
	for i, opt := range translation.Options {
		options[i] = ReviewOption{ID: opt.ID, Text: opt.Text, IsCorrect: opt.IsCorrect}
		if opt.IsCorrect {
			correct = append(correct, opt.ID)
		}
	}

	review := QuestionReview{
		QuestionID:      bq.QuestionID,
		SectionTitle:    bq.SectionTitle,
		Order:           bq.Order,
		Text:            translation.Text,
		Options:         options,
		Explanation:     translation.Explanation,
		Difficulty:      question.Difficulty,
		Marks:           question.Marks,
		CorrectOptions:  correct,
		SelectedOptions: []string{},
		Status:          models.ResponseUnanswered,
	}

	if response != nil {
		selected, err := response.GetSelectedOptions()
		if err != nil {
			return QuestionReview{}, err
		}
		review.SelectedOptions = selected
		review.Earned = response.Earned
		review.Status = response.Status
		review.TimeSpent = response.TimeSpent
		review.Flagged = response.Flagged
	}

	return review, nil
}
