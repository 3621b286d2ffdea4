package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prepstack/attempt-service/internal/config"
	"github.com/prepstack/attempt-service/internal/models"
)

func newTestAnalytics(repo *fakeRepo) AnalyticsService {
	return NewAnalyticsService(repo, testLogger(), config.DefaultAnalyticsConfig())
}

// gradedAttempt assembles an in-memory graded attempt with preloaded
// responses, bypassing storage. BuildForAttempt never reads the repo.
func gradedAttempt(correct, incorrect, unanswered int, responses []models.AttemptResponse) *models.TestAttempt {
	return &models.TestAttempt{
		ID:               1,
		SeriesID:         1,
		StudentID:        "student-1",
		Status:           models.AttemptGraded,
		CorrectCount:     correct,
		IncorrectCount:   incorrect,
		UnansweredCount:  unanswered,
		TimeTakenSeconds: 300,
		Responses:        responses,
	}
}

func questionMap(repo *fakeRepo) map[uint]*models.Question {
	out := make(map[uint]*models.Question, len(repo.store.questions))
	for id, q := range repo.store.questions {
		out[id] = q
	}
	return out
}

func TestBuildForAttempt_OverallStats(t *testing.T) {
	repo := newFakeRepo()
	seedQuestion(repo, 1, 4, []string{"a", "b"}, []string{"a"}, models.DifficultyEasy, "Math")
	seedQuestion(repo, 2, 4, []string{"a", "b"}, []string{"a"}, models.DifficultyHard, "Physics")

	attempt := gradedAttempt(1, 1, 0, []models.AttemptResponse{
		{QuestionID: 1, Status: models.ResponseCorrect, TimeSpent: 60},
		{QuestionID: 2, Status: models.ResponseIncorrect, TimeSpent: 240, Flagged: true},
	})

	analytics := newTestAnalytics(repo).BuildForAttempt(attempt, questionMap(repo))

	if analytics.Overall.Accuracy != 50 {
		t.Errorf("accuracy is %v, want 50", analytics.Overall.Accuracy)
	}
	if analytics.Overall.AverageTimePerQuestion != 150 {
		t.Errorf("average time is %v, want 150", analytics.Overall.AverageTimePerQuestion)
	}
	if analytics.Overall.FlaggedCount != 1 {
		t.Errorf("flagged count is %d, want 1", analytics.Overall.FlaggedCount)
	}

	if analytics.Difficulty[models.DifficultyEasy].Correct != 1 {
		t.Errorf("easy breakdown wrong: %+v", analytics.Difficulty)
	}
	if analytics.Difficulty[models.DifficultyHard].Total != 1 || analytics.Difficulty[models.DifficultyHard].Correct != 0 {
		t.Errorf("hard breakdown wrong: %+v", analytics.Difficulty)
	}

	if analytics.Subjects["Math"].Correct != 1 || analytics.Subjects["Physics"].Correct != 0 {
		t.Errorf("subject breakdown wrong: %+v", analytics.Subjects)
	}
	if analytics.Subjects["Physics"].TimeSpentSeconds != 240 {
		t.Errorf("subject time wrong: %+v", analytics.Subjects["Physics"])
	}

	if analytics.Time.FastestQuestionSeconds != 60 || analytics.Time.SlowestQuestionSeconds != 240 {
		t.Errorf("time stats wrong: %+v", analytics.Time)
	}
	if analytics.Time.QuestionsOverLimit != 1 {
		t.Errorf("expected one question over the slow limit, got %d", analytics.Time.QuestionsOverLimit)
	}
}

func TestBuildForAttempt_AccuracyCountsUnanswered(t *testing.T) {
	repo := newFakeRepo()

	// 1 correct of 4 bound questions: accuracy is 25, not the 50 an
	// answered-only denominator would give
	attempt := gradedAttempt(1, 1, 2, []models.AttemptResponse{
		{QuestionID: 1, Status: models.ResponseCorrect, TimeSpent: 40},
		{QuestionID: 2, Status: models.ResponseIncorrect, TimeSpent: 80},
		{QuestionID: 3, Status: models.ResponseUnanswered},
		{QuestionID: 4, Status: models.ResponseUnanswered},
	})

	analytics := newTestAnalytics(repo).BuildForAttempt(attempt, nil)

	if analytics.Overall.Accuracy != 25 {
		t.Errorf("accuracy is %v, want 25", analytics.Overall.Accuracy)
	}
}

func TestBuildForAttempt_NoTimeDataLeavesZeroes(t *testing.T) {
	repo := newFakeRepo()
	attempt := gradedAttempt(0, 0, 1, []models.AttemptResponse{
		{QuestionID: 1, Status: models.ResponseUnanswered},
	})

	analytics := newTestAnalytics(repo).BuildForAttempt(attempt, nil)

	if analytics.Time.FastestQuestionSeconds != 0 || analytics.Time.SlowestQuestionSeconds != 0 {
		t.Errorf("untimed attempt must report zeroes, got %+v", analytics.Time)
	}
	if analytics.Overall.Accuracy != 0 {
		t.Errorf("accuracy with zero correct must be 0, got %v", analytics.Overall.Accuracy)
	}
}

func TestBuildForAttempt_Recommendations(t *testing.T) {
	repo := newFakeRepo()
	seedQuestion(repo, 1, 4, []string{"a", "b"}, []string{"a"}, models.DifficultyEasy, "Chemistry")
	seedQuestion(repo, 2, 4, []string{"a", "b"}, []string{"a"}, models.DifficultyEasy, "Chemistry")
	seedQuestion(repo, 3, 4, []string{"a", "b"}, []string{"a"}, models.DifficultyEasy, "Biology")

	// 1 of 3 correct overall (33%), Chemistry 0 of 2 (0%), Biology 1 of 1
	attempt := gradedAttempt(1, 2, 0, []models.AttemptResponse{
		{QuestionID: 1, Status: models.ResponseIncorrect},
		{QuestionID: 2, Status: models.ResponseIncorrect},
		{QuestionID: 3, Status: models.ResponseCorrect},
	})

	analytics := newTestAnalytics(repo).BuildForAttempt(attempt, questionMap(repo))

	var hasAccuracy, hasChemistry, hasBiology bool
	for _, rec := range analytics.Recommendations {
		if strings.Contains(rec, "accuracy is") {
			hasAccuracy = true
		}
		if strings.Contains(rec, "Chemistry") {
			hasChemistry = true
		}
		if strings.Contains(rec, "Biology") {
			hasBiology = true
		}
	}
	if !hasAccuracy {
		t.Error("expected a low-accuracy recommendation")
	}
	if !hasChemistry {
		t.Error("expected Chemistry called out as weak")
	}
	if hasBiology {
		t.Error("Biology at full accuracy must not be called out")
	}
}

func TestBuildForAttempt_UnansweredRecommendation(t *testing.T) {
	repo := newFakeRepo()

	responses := make([]models.AttemptResponse, 4)
	for i := range responses {
		responses[i] = models.AttemptResponse{QuestionID: uint(i + 1), Status: models.ResponseUnanswered}
	}
	responses[0].Status = models.ResponseCorrect

	attempt := gradedAttempt(1, 0, 3, responses)
	analytics := newTestAnalytics(repo).BuildForAttempt(attempt, nil)

	var found bool
	for _, rec := range analytics.Recommendations {
		if strings.Contains(rec, "left unanswered") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an unanswered-questions recommendation, got %v", analytics.Recommendations)
	}
}

func TestGenerate_RequiresGradedAttempt(t *testing.T) {
	repo := newFakeRepo()
	service := newTestAnalytics(repo)

	repo.store.nextAttemptID++
	repo.store.attempts[1] = &models.TestAttempt{
		ID: 1, SeriesID: 1, StudentID: "student-1",
		Status: models.AttemptInProgress, Version: 1,
	}

	owner := &models.User{ID: "student-1", Role: models.RoleStudent}
	_, err := service.Generate(context.Background(), 1, owner)
	if !errors.Is(err, ErrAttemptNotGraded) {
		t.Fatalf("expected ErrAttemptNotGraded, got %v", err)
	}
}

func TestGenerate_PermissionChecks(t *testing.T) {
	repo := newFakeRepo()
	service := newTestAnalytics(repo)

	repo.store.nextAttemptID++
	repo.store.attempts[1] = &models.TestAttempt{
		ID: 1, SeriesID: 1, StudentID: "student-1",
		Status: models.AttemptGraded, Version: 2,
	}

	stranger := &models.User{ID: "student-2", Role: models.RoleStudent}
	_, err := service.Generate(context.Background(), 1, stranger)
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermissionError, got %v", err)
	}

	staff := &models.User{ID: "teacher-1", Role: models.RoleTeacher}
	if _, err := service.Generate(context.Background(), 1, staff); err != nil {
		t.Fatalf("staff access failed: %v", err)
	}

	if _, err := service.Generate(context.Background(), 404, staff); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
}
