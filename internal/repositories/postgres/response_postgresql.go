package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prepstack/attempt-service/internal/models"
	"github.com/prepstack/attempt-service/internal/repositories"
)

type ResponsePostgreSQL struct {
	db *gorm.DB
}

func NewResponsePostgreSQL(db *gorm.DB) repositories.ResponseRepository {
	return &ResponsePostgreSQL{db: db}
}

// CreateBatch inserts the initial unanswered slots for a new attempt.
func (r *ResponsePostgreSQL) CreateBatch(ctx context.Context, responses []models.AttemptResponse) error {
	if len(responses) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&responses).Error; err != nil {
		return fmt.Errorf("failed to create responses: %w", err)
	}
	return nil
}

// UpdateBatch upserts merged response rows on (attempt_id, question_id).
// Rows exist from attempt creation, so this is an update in the common case;
// the conflict clause covers slots created lazily by older attempts.
func (r *ResponsePostgreSQL) UpdateBatch(ctx context.Context, responses []models.AttemptResponse) error {
	if len(responses) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"selected_options", "status", "earned", "time_spent", "attempts",
				"flagged", "confidence", "visited_at", "last_modified_at", "updated_at",
			}),
		}).
		Create(&responses).Error
	if err != nil {
		return fmt.Errorf("failed to update responses: %w", err)
	}
	return nil
}

func (r *ResponsePostgreSQL) GetByAttempt(ctx context.Context, attemptID uint) ([]models.AttemptResponse, error) {
	var responses []models.AttemptResponse
	if err := r.db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("id ASC").
		Find(&responses).Error; err != nil {
		return nil, fmt.Errorf("failed to get responses: %w", err)
	}
	return responses, nil
}
