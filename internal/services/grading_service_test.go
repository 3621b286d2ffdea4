package services

import (
	"context"
	"errors"
	"testing"

	"github.com/prepstack/attempt-service/internal/models"
)

// seedGradableAttempt builds an in-progress attempt bound to the given
// questions, with unanswered response slots already created.
func seedGradableAttempt(repo *fakeRepo, questionIDs []uint) *models.TestAttempt {
	bound := make([]models.BoundQuestion, len(questionIDs))
	slots := make([]models.AttemptResponse, len(questionIDs))
	for i, id := range questionIDs {
		bound[i] = models.BoundQuestion{QuestionID: id, SectionID: 1, SectionTitle: "Section A", Order: i}
		slots[i] = models.AttemptResponse{QuestionID: id, Status: models.ResponseUnanswered}
	}

	attempt := &models.TestAttempt{
		SeriesID:  1,
		StudentID: "student-1",
		Status:    models.AttemptInProgress,
		Version:   1,
	}
	if err := attempt.SetBoundQuestions(bound); err != nil {
		panic(err)
	}
	_ = repo.Attempt().Create(context.Background(), attempt)

	for i := range slots {
		slots[i].AttemptID = attempt.ID
	}
	_ = repo.Response().CreateBatch(context.Background(), slots)

	return attempt
}

func answer(repo *fakeRepo, attemptID, questionID uint, selected []string) {
	rows := repo.store.responses[attemptID]
	for i := range rows {
		if rows[i].QuestionID == questionID {
			rows[i].SelectedOptions = mustJSON(selected)
			rows[i].Status = models.ResponseAnswered
			return
		}
	}
}

func TestGradeAttempt_ExactSetMatch(t *testing.T) {
	repo := newFakeRepo()
	service := NewGradingService(testLogger())

	// Four questions worth 4 marks each: one exact match, one subset, one
	// with an extra option, one untouched.
	seedQuestion(repo, 1, 4, []string{"a", "b", "c"}, []string{"a", "b"}, models.DifficultyEasy, "Math")
	seedQuestion(repo, 2, 4, []string{"a", "b", "c"}, []string{"a", "b"}, models.DifficultyEasy, "Math")
	seedQuestion(repo, 3, 4, []string{"a", "b", "c"}, []string{"a"}, models.DifficultyEasy, "Math")
	seedQuestion(repo, 4, 4, []string{"a", "b"}, []string{"a"}, models.DifficultyEasy, "Math")

	attempt := seedGradableAttempt(repo, []uint{1, 2, 3, 4})
	answer(repo, attempt.ID, 1, []string{"b", "a"}) // exact, order ignored
	answer(repo, attempt.ID, 2, []string{"a"})      // subset
	answer(repo, attempt.ID, 3, []string{"a", "b"}) // superset
	// question 4 left unanswered

	result, err := service.GradeAttempt(context.Background(), repo, attempt)
	if err != nil {
		t.Fatalf("GradeAttempt failed: %v", err)
	}

	if result.Score != 4 {
		t.Errorf("expected score 4, got %v", result.Score)
	}
	if result.MaxScore != 16 {
		t.Errorf("expected max score 16, got %v", result.MaxScore)
	}
	if result.CorrectAnswers != 1 || result.IncorrectAnswers != 2 || result.Unanswered != 1 {
		t.Errorf("unexpected counts: correct=%d incorrect=%d unanswered=%d",
			result.CorrectAnswers, result.IncorrectAnswers, result.Unanswered)
	}
	if result.Percentage != 25 {
		t.Errorf("expected 25%%, got %v", result.Percentage)
	}

	if attempt.Status != models.AttemptGraded {
		t.Errorf("attempt status is %s, want graded", attempt.Status)
	}
}

func TestGradeAttempt_ScoreEqualsSumOfEarned(t *testing.T) {
	repo := newFakeRepo()
	service := NewGradingService(testLogger())

	seedQuestion(repo, 1, 2, []string{"a", "b"}, []string{"a"}, models.DifficultyEasy, "")
	seedQuestion(repo, 2, 3, []string{"a", "b"}, []string{"b"}, models.DifficultyMedium, "")
	seedQuestion(repo, 3, 5, []string{"a", "b"}, []string{"a", "b"}, models.DifficultyHard, "")

	attempt := seedGradableAttempt(repo, []uint{1, 2, 3})
	answer(repo, attempt.ID, 1, []string{"a"})
	answer(repo, attempt.ID, 2, []string{"b"})
	answer(repo, attempt.ID, 3, []string{"a"})

	result, err := service.GradeAttempt(context.Background(), repo, attempt)
	if err != nil {
		t.Fatalf("GradeAttempt failed: %v", err)
	}

	responses, _ := repo.Response().GetByAttempt(context.Background(), attempt.ID)
	var sum float64
	for _, r := range responses {
		sum += r.Earned
	}
	if result.Score != sum {
		t.Errorf("score %v does not equal sum of earned %v", result.Score, sum)
	}
	if result.Score != 5 {
		t.Errorf("expected score 5, got %v", result.Score)
	}
}

func TestGradeAttempt_DuplicateSelectionsIgnored(t *testing.T) {
	repo := newFakeRepo()
	service := NewGradingService(testLogger())

	seedQuestion(repo, 1, 4, []string{"a", "b", "c"}, []string{"a", "b"}, models.DifficultyEasy, "")

	attempt := seedGradableAttempt(repo, []uint{1})
	answer(repo, attempt.ID, 1, []string{"a", "a", "b"})

	result, err := service.GradeAttempt(context.Background(), repo, attempt)
	if err != nil {
		t.Fatalf("GradeAttempt failed: %v", err)
	}
	if result.Score != 4 {
		t.Errorf("duplicated correct selection should earn full marks, got %v", result.Score)
	}
}

func TestGradeAttempt_AlreadyGraded(t *testing.T) {
	repo := newFakeRepo()
	service := NewGradingService(testLogger())

	seedQuestion(repo, 1, 1, []string{"a", "b"}, []string{"a"}, models.DifficultyEasy, "")
	attempt := seedGradableAttempt(repo, []uint{1})
	attempt.Status = models.AttemptGraded

	_, err := service.GradeAttempt(context.Background(), repo, attempt)
	if !errors.Is(err, ErrAttemptAlreadyGraded) {
		t.Fatalf("expected ErrAttemptAlreadyGraded, got %v", err)
	}
}

func TestGradeAttempt_EmptySelectionIsUnanswered(t *testing.T) {
	repo := newFakeRepo()
	service := NewGradingService(testLogger())

	seedQuestion(repo, 1, 4, []string{"a", "b"}, []string{"a"}, models.DifficultyEasy, "")
	attempt := seedGradableAttempt(repo, []uint{1})
	answer(repo, attempt.ID, 1, []string{})

	result, err := service.GradeAttempt(context.Background(), repo, attempt)
	if err != nil {
		t.Fatalf("GradeAttempt failed: %v", err)
	}
	if result.Unanswered != 1 || result.IncorrectAnswers != 0 {
		t.Errorf("empty selection must count as unanswered, got %+v", result)
	}

	responses, _ := repo.Response().GetByAttempt(context.Background(), attempt.ID)
	if responses[0].Status != models.ResponseUnanswered {
		t.Errorf("response status is %s, want unanswered", responses[0].Status)
	}
}
