package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prepstack/attempt-service/internal/models"
	"github.com/prepstack/attempt-service/internal/repositories"
)

type CounterPostgreSQL struct {
	db *gorm.DB
}

func NewCounterPostgreSQL(db *gorm.DB) repositories.CounterRepository {
	return &CounterPostgreSQL{db: db}
}

// Get returns the counter row, or a zero-count counter when the student has
// never attempted the series.
func (c *CounterPostgreSQL) Get(ctx context.Context, studentID string, seriesID uint) (*models.AttemptCounter, error) {
	var counter models.AttemptCounter
	err := c.db.WithContext(ctx).
		Where("student_id = ? AND series_id = ?", studentID, seriesID).
		First(&counter).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return &models.AttemptCounter{StudentID: studentID, SeriesID: seriesID}, nil
		}
		return nil, fmt.Errorf("failed to get attempt counter: %w", err)
	}
	return &counter, nil
}

// Increment bumps the counter atomically, creating the row on first use. The
// unique (student_id, series_id) index makes concurrent first attempts
// serialize on the upsert.
func (c *CounterPostgreSQL) Increment(ctx context.Context, studentID string, seriesID uint, at time.Time) error {
	counter := models.AttemptCounter{
		StudentID:     studentID,
		SeriesID:      seriesID,
		Count:         1,
		LastAttemptAt: &at,
	}

	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "student_id"}, {Name: "series_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"count":           gorm.Expr("attempt_counters.count + 1"),
				"last_attempt_at": at,
				"updated_at":      at,
			}),
		}).
		Create(&counter).Error
	if err != nil {
		return fmt.Errorf("failed to increment attempt counter: %w", err)
	}
	return nil
}
