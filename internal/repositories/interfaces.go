package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/prepstack/attempt-service/internal/models"
)

// ErrVersionConflict is returned by AttemptRepository.UpdateWithVersion when
// the stored version no longer matches the one the caller read.
var ErrVersionConflict = errors.New("attempt version conflict")

// SeriesRepository reads test-series definitions.
type SeriesRepository interface {
	GetByID(ctx context.Context, id uint) (*models.TestSeries, error)
	List(ctx context.Context, filters SeriesFilters) ([]*models.TestSeries, int64, error)
	ExistsByID(ctx context.Context, id uint) (bool, error)
}

// QuestionRepository reads questions from the question bank.
type QuestionRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Question, error)
	GetByIDs(ctx context.Context, ids []uint) ([]*models.Question, error)
}

// AttemptRepository persists test attempts.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.TestAttempt) error
	GetByID(ctx context.Context, id uint) (*models.TestAttempt, error)
	GetWithResponses(ctx context.Context, id uint) (*models.TestAttempt, error)
	GetActiveAttempt(ctx context.Context, studentID string, seriesID uint) (*models.TestAttempt, error)
	HasActiveAttempt(ctx context.Context, studentID string, seriesID uint) (bool, error)

	// UpdateWithVersion writes the attempt conditioned on attempt.Version
	// matching the stored row, then bumps the version. Returns
	// ErrVersionConflict when another writer got there first.
	UpdateWithVersion(ctx context.Context, attempt *models.TestAttempt) error

	List(ctx context.Context, filters AttemptFilters) ([]*models.TestAttempt, int64, error)
	GetSeriesStats(ctx context.Context, seriesID uint) (*AttemptStats, error)
}

// ResponseRepository persists per-question answer rows.
type ResponseRepository interface {
	CreateBatch(ctx context.Context, responses []models.AttemptResponse) error
	UpdateBatch(ctx context.Context, responses []models.AttemptResponse) error
	GetByAttempt(ctx context.Context, attemptID uint) ([]models.AttemptResponse, error)
}

// CheatingEventRepository appends integrity events. There is deliberately no
// update or delete operation.
type CheatingEventRepository interface {
	Append(ctx context.Context, event *models.CheatingEvent) error
	ListByAttempt(ctx context.Context, attemptID uint) ([]models.CheatingEvent, error)
	CountByAttempt(ctx context.Context, attemptID uint) (int64, error)
}

// CounterRepository tracks per-(student, series) attempt counts.
type CounterRepository interface {
	Get(ctx context.Context, studentID string, seriesID uint) (*models.AttemptCounter, error)
	Increment(ctx context.Context, studentID string, seriesID uint, at time.Time) error
}

// UserRepository resolves users from the identity provider.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
	HasRole(ctx context.Context, id string, role models.UserRole) (bool, error)
}

// ===== SHARED FILTER STRUCTS =====

type SeriesFilters struct {
	Mode      *models.SeriesMode `json:"mode"`
	CreatedBy *string            `json:"created_by"`
	Query     string             `json:"query"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
	SortBy    string             `json:"sort_by"`    // "created_at", "title", "start_at"
	SortOrder string             `json:"sort_order"` // "asc", "desc"
}

type AttemptFilters struct {
	Status    *models.AttemptStatus `json:"status"`
	StudentID *string               `json:"student_id"`
	SeriesID  *uint                 `json:"series_id"`
	DateFrom  *time.Time            `json:"date_from"`
	DateTo    *time.Time            `json:"date_to"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

// ===== SHARED STATISTICS STRUCTS =====

// AttemptStats aggregates one series' attempt outcomes.
type AttemptStats struct {
	TotalAttempts      int64   `json:"total_attempts"`
	InProgressAttempts int64   `json:"in_progress_attempts"`
	GradedAttempts     int64   `json:"graded_attempts"`
	AbortedAttempts    int64   `json:"aborted_attempts"`
	AverageScore       float64 `json:"average_score"`
	HighestScore       float64 `json:"highest_score"`
	AverageTimeTaken   float64 `json:"average_time_taken"` // seconds
	FlaggedAttempts    int64   `json:"flagged_attempts"`
}
