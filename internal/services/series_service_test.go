package services

import (
	"context"
	"errors"
	"testing"

	"github.com/prepstack/attempt-service/internal/models"
	"github.com/prepstack/attempt-service/internal/repositories"
)

func TestSeriesGetByID_NotFound(t *testing.T) {
	service := NewSeriesService(newFakeRepo(), testLogger())

	_, err := service.GetByID(context.Background(), 404)
	if !errors.Is(err, ErrSeriesNotFound) {
		t.Fatalf("expected ErrSeriesNotFound, got %v", err)
	}
}

func TestSeriesGetStats_Permissions(t *testing.T) {
	repo := newFakeRepo()
	service := NewSeriesService(repo, testLogger())

	seedSeries(repo, 1, []uint{10}, 1, 30, false)
	repo.store.attempts[1] = &models.TestAttempt{
		ID: 1, SeriesID: 1, StudentID: "student-1",
		Status: models.AttemptGraded, Version: 2,
	}

	// The creator sees their own series
	creator := &models.User{ID: "teacher-1", Role: models.RoleStudent}
	stats, err := service.GetStats(context.Background(), 1, creator)
	if err != nil {
		t.Fatalf("creator access failed: %v", err)
	}
	if stats.TotalAttempts != 1 || stats.GradedAttempts != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	// Unrelated students do not
	student := &models.User{ID: "student-1", Role: models.RoleStudent}
	_, err = service.GetStats(context.Background(), 1, student)
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermissionError, got %v", err)
	}

	// Admins always do
	admin := &models.User{ID: "admin-1", Role: models.RoleAdmin}
	if _, err := service.GetStats(context.Background(), 1, admin); err != nil {
		t.Fatalf("admin access failed: %v", err)
	}
}

func TestSeriesList_Passthrough(t *testing.T) {
	repo := newFakeRepo()
	service := NewSeriesService(repo, testLogger())

	seedSeries(repo, 1, []uint{10}, 1, 30, false)
	seedSeries(repo, 2, []uint{11}, 1, 60, true)

	series, total, err := service.List(context.Background(), repositories.SeriesFilters{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 2 || len(series) != 2 {
		t.Errorf("expected 2 series, got %d", total)
	}
}
