package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/prepstack/attempt-service/internal/models"
	"github.com/prepstack/attempt-service/internal/repositories"
)

type seriesService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewSeriesService(repo repositories.Repository, logger *slog.Logger) SeriesService {
	return &seriesService{repo: repo, logger: logger}
}

func (s *seriesService) GetByID(ctx context.Context, id uint) (*models.TestSeries, error) {
	series, err := s.repo.Series().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSeriesNotFound
		}
		return nil, fmt.Errorf("failed to load series: %w", err)
	}
	return series, nil
}

func (s *seriesService) List(ctx context.Context, filters repositories.SeriesFilters) ([]*models.TestSeries, int64, error) {
	series, total, err := s.repo.Series().List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list series: %w", err)
	}
	return series, total, nil
}

// GetStats returns the aggregate attempt statistics of a series. Creators see
// their own series; everything else requires staff.
func (s *seriesService) GetStats(ctx context.Context, seriesID uint, requester *models.User) (*repositories.AttemptStats, error) {
	series, err := s.GetByID(ctx, seriesID)
	if err != nil {
		return nil, err
	}

	if !requester.IsStaff() && series.CreatedBy != requester.ID {
		return nil, NewPermissionError(requester.ID, "view stats for", "series")
	}

	stats, err := s.repo.Attempt().GetSeriesStats(ctx, seriesID)
	if err != nil {
		return nil, fmt.Errorf("failed to load series stats: %w", err)
	}
	return stats, nil
}
