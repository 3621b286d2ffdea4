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

type SeriesPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewSeriesPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.SeriesRepository {
	return &SeriesPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

// GetByID loads a series with its sections. Series definitions change rarely
// relative to attempt traffic, so they sit behind the series cache.
func (s *SeriesPostgreSQL) GetByID(ctx context.Context, id uint) (*models.TestSeries, error) {
	cacheKey := fmt.Sprintf("id:%d", id)
	var series models.TestSeries

	err := s.cacheManager.Series.CacheOrExecute(ctx, cacheKey, &series, cache.SeriesCacheConfig.TTL, func() (interface{}, error) {
		var dbSeries models.TestSeries
		if err := s.db.WithContext(ctx).
			Preload("Sections", func(db *gorm.DB) *gorm.DB {
				return db.Order("sections.display_order ASC")
			}).
			First(&dbSeries, id).Error; err != nil {
			return nil, err
		}
		return &dbSeries, nil
	})
	if err != nil {
		return nil, err
	}
	return &series, nil
}

func (s *SeriesPostgreSQL) List(ctx context.Context, filters repositories.SeriesFilters) ([]*models.TestSeries, int64, error) {
	var seriesList []*models.TestSeries
	var total int64

	query := s.db.WithContext(ctx).Model(&models.TestSeries{})
	if filters.Mode != nil {
		query = query.Where("mode = ?", *filters.Mode)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.Query != "" {
		query = query.Where("title ILIKE ?", "%"+filters.Query+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = s.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Preload("Sections").Find(&seriesList).Error; err != nil {
		return nil, 0, err
	}

	return seriesList, total, nil
}

func (s *SeriesPostgreSQL) ExistsByID(ctx context.Context, id uint) (bool, error) {
	cacheKey := fmt.Sprintf("series:%d", id)

	var exists bool
	err := s.cacheManager.Exists.CacheOrExecute(ctx, cacheKey, &exists, cache.ExistsCacheConfig.TTL, func() (interface{}, error) {
		var count int64
		if err := s.db.WithContext(ctx).
			Model(&models.TestSeries{}).
			Where("id = ?", id).
			Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to check series existence: %w", err)
		}
		return count > 0, nil
	})
	return exists, err
}
