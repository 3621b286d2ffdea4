package services

import (
	"context"
	"time"

	"github.com/prepstack/attempt-service/internal/models"
	"github.com/prepstack/attempt-service/internal/repositories"
)

// ===== REQUEST DTOs =====

type StartAttemptRequest struct {
	SeriesID uint   `json:"series_id" validate:"required"`
	Language string `json:"language" validate:"omitempty,max=10"`
}

// ResponseInput is one question's answer state as reported by the client.
type ResponseInput struct {
	QuestionID      uint     `json:"question_id" validate:"required"`
	SelectedOptions []string `json:"selected_options" validate:"omitempty,dive,max=64"`
	TimeSpent       int      `json:"time_spent" validate:"min=0"`
	Flagged         bool     `json:"flagged"`
	Confidence      *int     `json:"confidence" validate:"omitempty,confidence_level"`
}

type SaveProgressRequest struct {
	Responses       []ResponseInput `json:"responses" validate:"dive"`
	TimeLeftSeconds int             `json:"time_left_seconds" validate:"min=0"`
}

type SubmitAttemptRequest struct {
	Responses []ResponseInput `json:"responses" validate:"dive"`
}

type CheatEventRequest struct {
	Type            string                 `json:"type" validate:"required,max=100"`
	Severity        *models.CheatSeverity  `json:"severity" validate:"omitempty,cheat_severity"`
	QuestionIndex   *int                   `json:"question_index" validate:"omitempty,min=0"`
	Description     string                 `json:"description" validate:"omitempty,max=1000"`
	TimeRemaining   *int                   `json:"time_remaining" validate:"omitempty,min=0"`
	SectionID       *uint                  `json:"section_id"`
	ClientSignature *string                `json:"client_signature" validate:"omitempty,max=255"`
	Metadata        map[string]interface{} `json:"metadata"`
}

// ===== RESPONSE DTOs =====

// BoundSectionView is one section of a started attempt as shown to the
// student: question ids only, never the answer key.
type BoundSectionView struct {
	SectionID uint   `json:"section_id"`
	Title     string `json:"title"`
	Order     int    `json:"order"`
	Questions []uint `json:"questions"`
}

type StartAttemptResponse struct {
	AttemptID       uint               `json:"attempt_id"`
	SeriesID        uint               `json:"series_id"`
	VariantID       *uint              `json:"variant_id,omitempty"`
	VariantLabel    string             `json:"variant_label,omitempty"`
	BoundSections   []BoundSectionView `json:"bound_sections"`
	TimeLeftSeconds int                `json:"time_left_seconds"`
	StrictMode      bool               `json:"strict_mode"`
	StartedAt       time.Time          `json:"started_at"`
}

type SaveProgressResponse struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
}

type SubmitAttemptResult struct {
	AttemptID        uint    `json:"attempt_id"`
	Score            float64 `json:"score"`
	MaxScore         float64 `json:"max_score"`
	Percentage       float64 `json:"percentage"`
	CorrectAnswers   int     `json:"correct_answers"`
	IncorrectAnswers int     `json:"incorrect_answers"`
	Unanswered       int     `json:"unanswered"`
	TotalQuestions   int     `json:"total_questions"`
	TimeTakenSeconds int     `json:"time_taken_seconds"`
}

type CheatEventResult struct {
	CheatingScore   int                    `json:"cheating_score"`
	IntegrityStatus models.IntegrityStatus `json:"integrity_status"`
	ShouldTerminate bool                   `json:"should_terminate"`
}

// QuestionReview is the per-question breakdown of a graded attempt.
type QuestionReview struct {
	QuestionID      uint                   `json:"question_id"`
	SectionTitle    string                 `json:"section_title"`
	Order           int                    `json:"order"`
	Text            string                 `json:"text"`
	Options         []ReviewOption         `json:"options"`
	Explanation     string                 `json:"explanation,omitempty"`
	Difficulty      models.DifficultyLevel `json:"difficulty"`
	Marks           int                    `json:"marks"`
	SelectedOptions []string               `json:"selected_options"`
	CorrectOptions  []string               `json:"correct_options"`
	Earned          float64                `json:"earned"`
	Status          models.ResponseStatus  `json:"status"`
	TimeSpent       int                    `json:"time_spent"`
	Flagged         bool                   `json:"flagged"`
}

type ReviewOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type ReviewResponse struct {
	Attempt   *AttemptSummary  `json:"attempt"`
	Questions []QuestionReview `json:"questions"`
	Analytics *AttemptAnalytics `json:"analytics"`
}

// AttemptSummary is the read model for listings and review headers.
type AttemptSummary struct {
	ID               uint                   `json:"id"`
	SeriesID         uint                   `json:"series_id"`
	SeriesTitle      string                 `json:"series_title,omitempty"`
	StudentID        string                 `json:"student_id"`
	Status           models.AttemptStatus   `json:"status"`
	Score            float64                `json:"score"`
	MaxScore         float64                `json:"max_score"`
	Percentage       float64                `json:"percentage"`
	IntegrityStatus  models.IntegrityStatus `json:"integrity_status"`
	StartedAt        time.Time              `json:"started_at"`
	SubmittedAt      *time.Time             `json:"submitted_at"`
	TimeTakenSeconds int                    `json:"time_taken_seconds"`
}

// ResumeAttemptResponse carries everything the client needs to restore an
// interrupted attempt.
type ResumeAttemptResponse struct {
	AttemptID       uint               `json:"attempt_id"`
	SeriesID        uint               `json:"series_id"`
	BoundSections   []BoundSectionView `json:"bound_sections"`
	Responses       []ResponseInput    `json:"responses"`
	TimeLeftSeconds int                `json:"time_left_seconds"`
	StrictMode      bool               `json:"strict_mode"`
	Version         int                `json:"version"`
}

type TimeRemainingResponse struct {
	TimeLeftSeconds int  `json:"time_left_seconds"`
	Expired         bool `json:"expired"`
}

// ===== ANALYTICS DTOs =====

type OverallStats struct {
	TotalQuestions         int     `json:"total_questions"`
	CorrectAnswers         int     `json:"correct_answers"`
	IncorrectAnswers       int     `json:"incorrect_answers"`
	Unanswered             int     `json:"unanswered"`
	Accuracy               float64 `json:"accuracy"` // percent
	TimeSpentSeconds       int     `json:"time_spent_seconds"`
	AverageTimePerQuestion float64 `json:"average_time_per_question"`
	FlaggedCount           int     `json:"flagged_count"`
}

type DifficultyStats struct {
	Total   int `json:"total"`
	Correct int `json:"correct"`
}

type SubjectStats struct {
	Total            int `json:"total"`
	Correct          int `json:"correct"`
	TimeSpentSeconds int `json:"time_spent_seconds"`
}

type TimeStats struct {
	FastestQuestionSeconds int `json:"fastest_question_seconds"`
	SlowestQuestionSeconds int `json:"slowest_question_seconds"`
	QuestionsOverLimit     int `json:"questions_over_limit"`
}

type AttemptAnalytics struct {
	Overall         OverallStats                               `json:"overall"`
	Difficulty      map[models.DifficultyLevel]DifficultyStats `json:"difficulty"`
	Subjects        map[string]SubjectStats                    `json:"subjects"`
	Time            TimeStats                                  `json:"time"`
	Recommendations []string                                   `json:"recommendations"`
}

// ===== SERVICE INTERFACES =====

// AttemptService drives the attempt state machine: start, incremental saves
// under optimistic concurrency, atomic submit-and-grade, and review.
type AttemptService interface {
	Start(ctx context.Context, req StartAttemptRequest, studentID string) (*StartAttemptResponse, error)
	Save(ctx context.Context, attemptID uint, req SaveProgressRequest, studentID string) (*SaveProgressResponse, error)
	Submit(ctx context.Context, attemptID uint, req SubmitAttemptRequest, studentID string) (*SubmitAttemptResult, error)
	Review(ctx context.Context, attemptID uint, studentID string, language string) (*ReviewResponse, error)

	Resume(ctx context.Context, attemptID uint, studentID string) (*ResumeAttemptResponse, error)
	GetTimeRemaining(ctx context.Context, attemptID uint, studentID string) (*TimeRemainingResponse, error)
	HandleTimeout(ctx context.Context, attemptID uint, studentID string) (*SubmitAttemptResult, error)

	GetByID(ctx context.Context, attemptID uint, requester *models.User) (*AttemptSummary, error)
	List(ctx context.Context, filters repositories.AttemptFilters, requester *models.User) ([]*AttemptSummary, int64, error)
}

// GradingService scores a submitted attempt against the answer key. It is
// invoked inside the submit transaction so a grading failure rolls the whole
// submission back.
type GradingService interface {
	GradeAttempt(ctx context.Context, repo repositories.Repository, attempt *models.TestAttempt) (*SubmitAttemptResult, error)
}

// ProctorService is the anti-cheat monitor.
type ProctorService interface {
	Classify(eventType string) models.CheatSeverity
	LogEvent(ctx context.Context, attemptID uint, req CheatEventRequest, studentID string) (*CheatEventResult, error)
}

// AnalyticsService derives breakdowns and recommendations from graded
// attempts.
type AnalyticsService interface {
	Generate(ctx context.Context, attemptID uint, requester *models.User) (*AttemptAnalytics, error)
	BuildForAttempt(attempt *models.TestAttempt, questions map[uint]*models.Question) *AttemptAnalytics
}

// SeriesService reads series definitions for clients, with answer keys
// stripped.
type SeriesService interface {
	GetByID(ctx context.Context, id uint) (*models.TestSeries, error)
	List(ctx context.Context, filters repositories.SeriesFilters) ([]*models.TestSeries, int64, error)
	GetStats(ctx context.Context, seriesID uint, requester *models.User) (*repositories.AttemptStats, error)
}

// RewardNotifier tells the reward/streak service about finished attempts.
// Failures are logged, never surfaced: a broken broker must not fail a
// submission.
type RewardNotifier interface {
	NotifySubmitted(ctx context.Context, attempt *models.TestAttempt)
}

// ServiceManager aggregates all services and owns their lifecycle.
type ServiceManager interface {
	Attempt() AttemptService
	Grading() GradingService
	Proctor() ProctorService
	Analytics() AnalyticsService
	Series() SeriesService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
