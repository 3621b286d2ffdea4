package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/prepstack/attempt-service/internal/models"
	"github.com/prepstack/attempt-service/internal/repositories"
)

// CheatingEventPostgreSQL stores integrity events. Append-only: no update or
// delete paths exist, matching the audit requirement on these rows.
type CheatingEventPostgreSQL struct {
	db *gorm.DB
}

func NewCheatingEventPostgreSQL(db *gorm.DB) repositories.CheatingEventRepository {
	return &CheatingEventPostgreSQL{db: db}
}

func (c *CheatingEventPostgreSQL) Append(ctx context.Context, event *models.CheatingEvent) error {
	if err := c.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to append cheating event: %w", err)
	}
	return nil
}

func (c *CheatingEventPostgreSQL) ListByAttempt(ctx context.Context, attemptID uint) ([]models.CheatingEvent, error) {
	var events []models.CheatingEvent
	if err := c.db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list cheating events: %w", err)
	}
	return events, nil
}

func (c *CheatingEventPostgreSQL) CountByAttempt(ctx context.Context, attemptID uint) (int64, error) {
	var count int64
	err := c.db.WithContext(ctx).
		Model(&models.CheatingEvent{}).
		Where("attempt_id = ?", attemptID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count cheating events: %w", err)
	}
	return count, nil
}
