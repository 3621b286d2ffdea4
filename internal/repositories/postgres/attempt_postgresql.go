package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/prepstack/attempt-service/internal/cache"
	"github.com/prepstack/attempt-service/internal/models"
	"github.com/prepstack/attempt-service/internal/repositories"
)

type AttemptPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewAttemptPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, attempt *models.TestAttempt) error {
	if err := a.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	return nil
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, id uint) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	if err := a.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetWithResponses(ctx context.Context, id uint) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	if err := a.db.WithContext(ctx).
		Preload("Responses").
		Preload("CheatingEvents").
		First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetActiveAttempt(ctx context.Context, studentID string, seriesID uint) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	if err := a.db.WithContext(ctx).
		Preload("Responses").
		Where("student_id = ? AND series_id = ? AND status = ?", studentID, seriesID, models.AttemptInProgress).
		First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) HasActiveAttempt(ctx context.Context, studentID string, seriesID uint) (bool, error) {
	var count int64
	err := a.db.WithContext(ctx).
		Model(&models.TestAttempt{}).
		Where("student_id = ? AND series_id = ? AND status = ?", studentID, seriesID, models.AttemptInProgress).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check active attempt: %w", err)
	}
	return count > 0, nil
}

// UpdateWithVersion performs the optimistic-concurrency write: the UPDATE is
// conditioned on the version the caller read, and bumps it in the same
// statement. Zero rows affected means another writer won the race.
func (a *AttemptPostgreSQL) UpdateWithVersion(ctx context.Context, attempt *models.TestAttempt) error {
	currentVersion := attempt.Version
	attempt.Version = currentVersion + 1

	result := a.db.WithContext(ctx).
		Model(&models.TestAttempt{}).
		Where("id = ? AND version = ?", attempt.ID, currentVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(attempt)

	if result.Error != nil {
		attempt.Version = currentVersion
		return fmt.Errorf("failed to update attempt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		attempt.Version = currentVersion
		return repositories.ErrVersionConflict
	}

	a.invalidateAttemptCache(ctx, attempt.ID)
	return nil
}

func (a *AttemptPostgreSQL) List(ctx context.Context, filters repositories.AttemptFilters) ([]*models.TestAttempt, int64, error) {
	var attempts []*models.TestAttempt
	var total int64

	query := a.db.WithContext(ctx).Model(&models.TestAttempt{})
	query = a.helpers.ApplyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (a *AttemptPostgreSQL) GetSeriesStats(ctx context.Context, seriesID uint) (*repositories.AttemptStats, error) {
	cacheKey := fmt.Sprintf("series:%d", seriesID)
	var stats repositories.AttemptStats

	err := a.cacheManager.Stats.CacheOrExecute(ctx, cacheKey, &stats, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		return a.computeSeriesStats(ctx, seriesID)
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (a *AttemptPostgreSQL) computeSeriesStats(ctx context.Context, seriesID uint) (*repositories.AttemptStats, error) {
	stats := &repositories.AttemptStats{}

	base := a.db.WithContext(ctx).Model(&models.TestAttempt{}).Where("series_id = ?", seriesID)

	if err := base.Session(&gorm.Session{}).Count(&stats.TotalAttempts).Error; err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}

	statusCounts := map[models.AttemptStatus]*int64{
		models.AttemptInProgress: &stats.InProgressAttempts,
		models.AttemptGraded:     &stats.GradedAttempts,
		models.AttemptAborted:    &stats.AbortedAttempts,
	}
	for status, dest := range statusCounts {
		if err := base.Session(&gorm.Session{}).Where("status = ?", status).Count(dest).Error; err != nil {
			return nil, fmt.Errorf("failed to count attempts by status: %w", err)
		}
	}

	if err := base.Session(&gorm.Session{}).
		Where("integrity_status <> ?", models.IntegrityClean).
		Count(&stats.FlaggedAttempts).Error; err != nil {
		return nil, fmt.Errorf("failed to count flagged attempts: %w", err)
	}

	var agg struct {
		AvgScore     float64
		MaxScore     float64
		AvgTimeTaken float64
	}
	err := a.db.WithContext(ctx).
		Model(&models.TestAttempt{}).
		Select("COALESCE(AVG(score), 0) as avg_score, COALESCE(MAX(score), 0) as max_score, COALESCE(AVG(time_taken_seconds), 0) as avg_time_taken").
		Where("series_id = ? AND status = ?", seriesID, models.AttemptGraded).
		Scan(&agg).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate attempt scores: %w", err)
	}

	stats.AverageScore = agg.AvgScore
	stats.HighestScore = agg.MaxScore
	stats.AverageTimeTaken = agg.AvgTimeTaken

	return stats, nil
}

func (a *AttemptPostgreSQL) invalidateAttemptCache(ctx context.Context, attemptID uint) {
	cache.SafeDelete(ctx, a.cacheManager.Attempt, fmt.Sprintf("id:%d", attemptID))
}
