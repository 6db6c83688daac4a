package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/peakprep/peakprep-backend/internal/model"
	"github.com/peakprep/peakprep-backend/internal/repository"
)

// AnalyticsService exposes per-user performance aggregates.
type AnalyticsService struct {
	analytics *repository.AnalyticsRepository
}

// NewAnalyticsService creates a new AnalyticsService.
func NewAnalyticsService(analytics *repository.AnalyticsRepository) *AnalyticsService {
	return &AnalyticsService{analytics: analytics}
}

// GetUserAnalytics returns all aggregate rows for a user.
func (s *AnalyticsService) GetUserAnalytics(ctx context.Context, userID uuid.UUID) ([]model.UserAnalytics, error) {
	stats, err := s.analytics.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []model.UserAnalytics{}
	}
	return stats, nil
}
