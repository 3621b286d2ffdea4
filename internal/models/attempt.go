package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptGraded     AttemptStatus = "graded"
	AttemptAborted    AttemptStatus = "aborted"
)

type IntegrityStatus string

const (
	IntegrityClean      IntegrityStatus = "clean"
	IntegrityFlagged    IntegrityStatus = "flagged"
	IntegrityTerminated IntegrityStatus = "terminated"
)

type ResponseStatus string

const (
	ResponseAnswered   ResponseStatus = "answered"
	ResponseUnanswered ResponseStatus = "unanswered"
	ResponseCorrect    ResponseStatus = "correct"
	ResponseIncorrect  ResponseStatus = "incorrect"
)

type CheatSeverity string

const (
	SeverityLow    CheatSeverity = "low"
	SeverityMedium CheatSeverity = "medium"
	SeverityHigh   CheatSeverity = "high"
)

// BoundQuestion is one slot of an attempt's immutable question binding,
// fixed by the pool selector at start time.
type BoundQuestion struct {
	QuestionID   uint   `json:"question_id"`
	SectionID    uint   `json:"section_id"`
	SectionTitle string `json:"section_title"`
	Order        int    `json:"order"`
	Marks        int    `json:"marks"`
}

// TestAttempt is one student's bound, timed instance of a TestSeries.
// Attempts are never deleted, only transitioned to a terminal status.
type TestAttempt struct {
	ID        uint          `json:"id" gorm:"primaryKey"`
	SeriesID  uint          `json:"series_id" gorm:"not null;index"`
	StudentID string        `json:"student_id" gorm:"not null;index;size:255"`
	Status    AttemptStatus `json:"status" gorm:"default:in_progress;index"`

	// Question binding, fixed at start. VariantID records which arrangement
	// (Set A, Set B) was drawn when the series defines variants.
	BoundQuestions datatypes.JSON `json:"bound_questions" gorm:"type:jsonb"`
	VariantID      *uint          `json:"variant_id" gorm:"index"`

	// Timing
	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	TimeLeft    int        `json:"time_left"` // seconds, client-reported on save

	// Scoring
	Score            float64 `json:"score"`
	MaxScore         float64 `json:"max_score"`
	Percentage       float64 `json:"percentage"`
	CorrectCount     int     `json:"correct_count"`
	IncorrectCount   int     `json:"incorrect_count"`
	UnansweredCount  int     `json:"unanswered_count"`
	TimeTakenSeconds int     `json:"time_taken_seconds"`

	// Integrity
	StrictModeEnabled         bool            `json:"strict_mode_enabled"`
	CheatingScore             int             `json:"cheating_score"`
	TotalCheatingAttempts     int             `json:"total_cheating_attempts"`
	IntegrityStatus           IntegrityStatus `json:"integrity_status" gorm:"default:clean"`
	ExamTerminatedForCheating bool            `json:"exam_terminated_for_cheating"`

	// Optimistic concurrency token, bumped on every write.
	Version int `json:"version" gorm:"not null;default:1"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Series         TestSeries        `json:"series" gorm:"foreignKey:SeriesID"`
	Responses      []AttemptResponse `json:"responses" gorm:"foreignKey:AttemptID"`
	CheatingEvents []CheatingEvent   `json:"cheating_events" gorm:"foreignKey:AttemptID"`
}

func (TestAttempt) TableName() string {
	return "test_attempts"
}

// IsActive reports whether the attempt still accepts mutations.
func (a *TestAttempt) IsActive() bool {
	return a.Status == AttemptInProgress
}

// IsTerminal reports whether the attempt has reached a final status.
func (a *TestAttempt) IsTerminal() bool {
	return a.Status == AttemptGraded || a.Status == AttemptAborted
}

// GetBoundQuestions decodes the immutable question binding.
func (a *TestAttempt) GetBoundQuestions() ([]BoundQuestion, error) {
	if len(a.BoundQuestions) == 0 {
		return []BoundQuestion{}, nil
	}
	var bound []BoundQuestion
	if err := json.Unmarshal(a.BoundQuestions, &bound); err != nil {
		return nil, fmt.Errorf("attempt %d: invalid bound questions: %w", a.ID, err)
	}
	return bound, nil
}

// SetBoundQuestions encodes the question binding. Called exactly once, by the
// initializer.
func (a *TestAttempt) SetBoundQuestions(bound []BoundQuestion) error {
	data, err := json.Marshal(bound)
	if err != nil {
		return err
	}
	a.BoundQuestions = data
	return nil
}

// Deadline is the server-computed hard end of the attempt.
func (a *TestAttempt) Deadline(duration time.Duration) time.Time {
	return a.StartedAt.Add(duration)
}

// AttemptResponse is one bound question's answer state. Rows exist from
// start (as unanswered slots) and are mutated only while the attempt is
// in progress, then frozen by grading.
type AttemptResponse struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	AttemptID  uint `json:"attempt_id" gorm:"not null;index;uniqueIndex:idx_attempt_question"`
	QuestionID uint `json:"question_id" gorm:"not null;index;uniqueIndex:idx_attempt_question"`

	SelectedOptions datatypes.JSON `json:"selected_options" gorm:"type:jsonb"` // []string option ids
	Status          ResponseStatus `json:"status" gorm:"default:unanswered"`
	Earned          float64        `json:"earned"`

	// Interaction tracking
	TimeSpent      int        `json:"time_spent"` // seconds
	Attempts       int        `json:"attempts"`   // re-visit count
	Flagged        bool       `json:"flagged"`
	Confidence     *int       `json:"confidence"`
	VisitedAt      *time.Time `json:"visited_at"`
	LastModifiedAt *time.Time `json:"last_modified_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AttemptResponse) TableName() string {
	return "attempt_responses"
}

// GetSelectedOptions decodes the selected option id set.
func (r *AttemptResponse) GetSelectedOptions() ([]string, error) {
	if len(r.SelectedOptions) == 0 {
		return []string{}, nil
	}
	var selected []string
	if err := json.Unmarshal(r.SelectedOptions, &selected); err != nil {
		return nil, fmt.Errorf("response %d: invalid selected options: %w", r.ID, err)
	}
	return selected, nil
}

// SetSelectedOptions encodes the selected option id set.
func (r *AttemptResponse) SetSelectedOptions(selected []string) error {
	if selected == nil {
		selected = []string{}
	}
	data, err := json.Marshal(selected)
	if err != nil {
		return err
	}
	r.SelectedOptions = data
	return nil
}

// CheatingEvent is an append-only integrity record. Events are never removed
// or re-scored after append.
type CheatingEvent struct {
	ID        uint          `json:"id" gorm:"primaryKey"`
	AttemptID uint          `json:"attempt_id" gorm:"not null;index"`
	Type      string        `json:"type" gorm:"not null;size:100"`
	Severity  CheatSeverity `json:"severity" gorm:"not null"`

	QuestionIndex   *int    `json:"question_index"`
	Description     string  `json:"description" gorm:"type:text"`
	TimeRemaining   *int    `json:"time_remaining"` // seconds at the moment of the event
	SectionID       *uint   `json:"section_id"`
	ClientSignature *string `json:"client_signature" gorm:"size:255"`

	Metadata datatypes.JSON `json:"metadata" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
}

func (CheatingEvent) TableName() string {
	return "cheating_events"
}

// AttemptCounter enforces max-attempts per (student, series). Incremented
// only on successful attempt creation.
type AttemptCounter struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	StudentID     string     `json:"student_id" gorm:"not null;size:255;uniqueIndex:idx_student_series"`
	SeriesID      uint       `json:"series_id" gorm:"not null;uniqueIndex:idx_student_series"`
	Count         int        `json:"count" gorm:"not null;default:0"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AttemptCounter) TableName() string {
	return "attempt_counters"
}
