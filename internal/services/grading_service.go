package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/prepstack/attempt-service/internal/models"
	"github.com/prepstack/attempt-service/internal/repositories"
)

type gradingService struct {
	logger *slog.Logger
}

func NewGradingService(logger *slog.Logger) GradingService {
	return &gradingService{logger: logger}
}

// GradeAttempt scores every bound question of a submitted attempt and
// transitions it to graded. It must run inside the caller's transaction: the
// repository it receives carries the submit transaction, so a failure here
// rolls back the whole submission and the attempt stays in progress.
//
// Policy is exact-set match: full marks only when the selected option set
// equals the correct set, order-independent. Any mismatch, subset or
// superset included, earns zero. An empty selection is unanswered, not
// incorrect.
func (s *gradingService) GradeAttempt(ctx context.Context, repo repositories.Repository, attempt *models.TestAttempt) (*SubmitAttemptResult, error) {
	if attempt.Status == models.AttemptGraded {
		return nil, ErrAttemptAlreadyGraded
	}

	bound, err := attempt.GetBoundQuestions()
	if err != nil {
		return nil, fmt.Errorf("failed to decode bound questions: %w", err)
	}

	questions, err := s.loadQuestions(ctx, repo, bound)
	if err != nil {
		return nil, err
	}

	responses, err := repo.Response().GetByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load responses: %w", err)
	}
	byQuestion := make(map[uint]*models.AttemptResponse, len(responses))
	for i := range responses {
		byQuestion[responses[i].QuestionID] = &responses[i]
	}

	var score, maxScore float64
	var correct, incorrect, unanswered int
	graded := make([]models.AttemptResponse, 0, len(bound))

	for _, bq := range bound {
		question, ok := questions[bq.QuestionID]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", ErrQuestionNotFound, bq.QuestionID)
		}

		response := byQuestion[bq.QuestionID]
		if response == nil {
			// Slot was never created; treat as an untouched question.
			response = &models.AttemptResponse{
				AttemptID:  attempt.ID,
				QuestionID: bq.QuestionID,
				Status:     models.ResponseUnanswered,
			}
		}

		if err := gradeResponse(question, response); err != nil {
			return nil, fmt.Errorf("failed to grade question %d: %w", bq.QuestionID, err)
		}

		score += response.Earned
		maxScore += float64(question.Marks)

		switch response.Status {
		case models.ResponseCorrect:
			correct++
		case models.ResponseIncorrect:
			incorrect++
		default:
			unanswered++
		}

		graded = append(graded, *response)
	}

	if err := repo.Response().UpdateBatch(ctx, graded); err != nil {
		return nil, fmt.Errorf("failed to persist graded responses: %w", err)
	}

	now := time.Now().UTC()
	attempt.Status = models.AttemptGraded
	attempt.Score = score
	attempt.MaxScore = maxScore
	attempt.Percentage = percentage(score, maxScore)
	attempt.CorrectCount = correct
	attempt.IncorrectCount = incorrect
	attempt.UnansweredCount = unanswered
	if attempt.SubmittedAt != nil {
		attempt.TimeTakenSeconds = int(attempt.SubmittedAt.Sub(attempt.StartedAt).Seconds())
	} else {
		attempt.TimeTakenSeconds = int(now.Sub(attempt.StartedAt).Seconds())
	}

	s.logger.Info("attempt graded",
		"attempt_id", attempt.ID,
		"student_id", attempt.StudentID,
		"score", score,
		"max_score", maxScore,
		"correct", correct,
		"incorrect", incorrect,
		"unanswered", unanswered)

	return &SubmitAttemptResult{
		AttemptID:        attempt.ID,
		Score:            score,
		MaxScore:         maxScore,
		Percentage:       attempt.Percentage,
		CorrectAnswers:   correct,
		IncorrectAnswers: incorrect,
		Unanswered:       unanswered,
		TotalQuestions:   len(bound),
		TimeTakenSeconds: attempt.TimeTakenSeconds,
	}, nil
}

func (s *gradingService) loadQuestions(ctx context.Context, repo repositories.Repository, bound []models.BoundQuestion) (map[uint]*models.Question, error) {
	ids := make([]uint, len(bound))
	for i, bq := range bound {
		ids[i] = bq.QuestionID
	}

	questions, err := repo.Question().GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}

	byID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return byID, nil
}

// gradeResponse applies the exact-set-match policy to one response row.
func gradeResponse(question *models.Question, response *models.AttemptResponse) error {
	selected, err := response.GetSelectedOptions()
	if err != nil {
		return err
	}

	if len(selected) == 0 {
		response.Status = models.ResponseUnanswered
		response.Earned = 0
		return nil
	}

	correct, err := question.CorrectOptionIDs()
	if err != nil {
		return err
	}

	if stringSetsEqual(selected, correct) {
		response.Status = models.ResponseCorrect
		response.Earned = float64(question.Marks)
	} else {
		response.Status = models.ResponseIncorrect
		response.Earned = 0
	}
	return nil
}

// stringSetsEqual compares two option id sets ignoring order and duplicates.
func stringSetsEqual(a, b []string) bool {
	as := dedupeSorted(a)
	bs := dedupeSorted(b)
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func dedupeSorted(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func percentage(score, maxScore float64) float64 {
	if maxScore == 0 {
		return 0
	}
	return 100 * score / maxScore
}
