package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"gorm.io/gorm"

	"github.com/prepstack/attempt-service/internal/config"
	"github.com/prepstack/attempt-service/internal/models"
	"github.com/prepstack/attempt-service/internal/repositories"
)

type analyticsService struct {
	repo   repositories.Repository
	logger *slog.Logger
	cfg    config.AnalyticsConfig
}

func NewAnalyticsService(repo repositories.Repository, logger *slog.Logger, cfg config.AnalyticsConfig) AnalyticsService {
	return &analyticsService{repo: repo, logger: logger, cfg: cfg}
}

// Generate loads a graded attempt and derives its analytics. Graded only:
// breakdowns over an unscored attempt would be meaningless.
func (s *analyticsService) Generate(ctx context.Context, attemptID uint, requester *models.User) (*AttemptAnalytics, error) {
	attempt, err := s.repo.Attempt().GetWithResponses(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt: %w", err)
	}
	if attempt.StudentID != requester.ID && !requester.IsStaff() {
		return nil, NewPermissionError(requester.ID, "view analytics for", "attempt")
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

	return s.BuildForAttempt(attempt, byID), nil
}

// BuildForAttempt derives the full breakdown from an already loaded graded
// attempt. It never touches storage, which lets the review endpoint reuse the
// questions it has already fetched.
func (s *analyticsService) BuildForAttempt(attempt *models.TestAttempt, questions map[uint]*models.Question) *AttemptAnalytics {
	analytics := &AttemptAnalytics{
		Difficulty: make(map[models.DifficultyLevel]DifficultyStats),
		Subjects:   make(map[string]SubjectStats),
	}

	overall := OverallStats{
		TotalQuestions:   len(attempt.Responses),
		CorrectAnswers:   attempt.CorrectCount,
		IncorrectAnswers: attempt.IncorrectCount,
		Unanswered:       attempt.UnansweredCount,
		TimeSpentSeconds: attempt.TimeTakenSeconds,
	}
	// Accuracy is over every bound question, so unanswered questions count
	// against it.
	if overall.TotalQuestions > 0 {
		overall.Accuracy = 100 * float64(attempt.CorrectCount) / float64(overall.TotalQuestions)
		overall.AverageTimePerQuestion = float64(attempt.TimeTakenSeconds) / float64(overall.TotalQuestions)
	}

	timeStats := TimeStats{FastestQuestionSeconds: -1}

	for i := range attempt.Responses {
		response := &attempt.Responses[i]
		question := questions[response.QuestionID]

		if response.Flagged {
			overall.FlaggedCount++
		}

		correct := response.Status == models.ResponseCorrect

		if question != nil {
			ds := analytics.Difficulty[question.Difficulty]
			ds.Total++
			if correct {
				ds.Correct++
			}
			analytics.Difficulty[question.Difficulty] = ds

			if subject, err := question.GetSubject(); err == nil && subject.Name != "" {
				ss := analytics.Subjects[subject.Name]
				ss.Total++
				if correct {
					ss.Correct++
				}
				ss.TimeSpentSeconds += response.TimeSpent
				analytics.Subjects[subject.Name] = ss
			}
		}

		if response.TimeSpent > 0 {
			if timeStats.FastestQuestionSeconds < 0 || response.TimeSpent < timeStats.FastestQuestionSeconds {
				timeStats.FastestQuestionSeconds = response.TimeSpent
			}
			if response.TimeSpent > timeStats.SlowestQuestionSeconds {
				timeStats.SlowestQuestionSeconds = response.TimeSpent
			}
		}
		if response.TimeSpent > s.cfg.SlowQuestionSeconds {
			timeStats.QuestionsOverLimit++
		}
	}
	if timeStats.FastestQuestionSeconds < 0 {
		timeStats.FastestQuestionSeconds = 0
	}

	analytics.Overall = overall
	analytics.Time = timeStats
	analytics.Recommendations = s.recommend(analytics)

	return analytics
}

// recommend turns the breakdowns into a short list of study suggestions
// driven by the configured thresholds.
func (s *analyticsService) recommend(a *AttemptAnalytics) []string {
	recommendations := []string{}

	if a.Overall.Accuracy < s.cfg.LowAccuracyThreshold && a.Overall.CorrectAnswers+a.Overall.IncorrectAnswers > 0 {
		recommendations = append(recommendations,
			fmt.Sprintf("Overall accuracy is %.0f%%. Revisit the fundamentals before the next attempt.", a.Overall.Accuracy))
	}

	subjects := make([]string, 0, len(a.Subjects))
	for subject := range a.Subjects {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)

	for _, subject := range subjects {
		stats := a.Subjects[subject]
		if stats.Total == 0 {
			continue
		}
		accuracy := 100 * float64(stats.Correct) / float64(stats.Total)
		if accuracy < s.cfg.WeakSubjectThreshold {
			recommendations = append(recommendations,
				fmt.Sprintf("%s is a weak area (%.0f%% accuracy). Prioritize it in revision.", subject, accuracy))
		}
	}

	if a.Time.QuestionsOverLimit > s.cfg.SlowQuestionCountThreshold {
		recommendations = append(recommendations,
			fmt.Sprintf("%d questions took longer than %d seconds. Practice timed drills to improve pacing.",
				a.Time.QuestionsOverLimit, s.cfg.SlowQuestionSeconds))
	}

	if a.Overall.Unanswered > a.Overall.TotalQuestions/4 && a.Overall.TotalQuestions > 0 {
		recommendations = append(recommendations,
			fmt.Sprintf("%d of %d questions were left unanswered. Work on attempting every question.",
				a.Overall.Unanswered, a.Overall.TotalQuestions))
	}

	return recommendations
}
