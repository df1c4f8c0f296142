package mocks

import (
	"context"
	"errors"
	"time"

	"github.com/godilite/qa-review-engine/internal/repository/models"
	"github.com/godilite/qa-review-engine/internal/service"
)

// MockReviewService is a mock implementation of the ReviewService interface
// for testing the handler layer.
type MockReviewService struct {
	CreateReviewFunc        func(ctx context.Context, in service.CreateReviewInput) (*models.Review, error)
	RetryReviewFunc         func(ctx context.Context, companyID, reviewID string) (*models.Review, error)
	DeleteReviewFunc        func(ctx context.Context, companyID, reviewID string) error
	CorrectReviewScoresFunc func(ctx context.Context, companyID, reviewID string, c service.ScoreCorrection) (*models.Review, error)
	GetReviewFunc           func(ctx context.Context, companyID, reviewID string) (*models.Review, error)
}

func (m *MockReviewService) CreateReview(ctx context.Context, in service.CreateReviewInput) (*models.Review, error) {
	if m.CreateReviewFunc != nil {
		return m.CreateReviewFunc(ctx, in)
	}
	return nil, errors.New("CreateReviewFunc not implemented")
}

func (m *MockReviewService) RetryReview(ctx context.Context, companyID, reviewID string) (*models.Review, error) {
	if m.RetryReviewFunc != nil {
		return m.RetryReviewFunc(ctx, companyID, reviewID)
	}
	return nil, errors.New("RetryReviewFunc not implemented")
}

func (m *MockReviewService) DeleteReview(ctx context.Context, companyID, reviewID string) error {
	if m.DeleteReviewFunc != nil {
		return m.DeleteReviewFunc(ctx, companyID, reviewID)
	}
	return errors.New("DeleteReviewFunc not implemented")
}

func (m *MockReviewService) CorrectReviewScores(ctx context.Context, companyID, reviewID string, c service.ScoreCorrection) (*models.Review, error) {
	if m.CorrectReviewScoresFunc != nil {
		return m.CorrectReviewScoresFunc(ctx, companyID, reviewID, c)
	}
	return nil, errors.New("CorrectReviewScoresFunc not implemented")
}

func (m *MockReviewService) GetReview(ctx context.Context, companyID, reviewID string) (*models.Review, error) {
	if m.GetReviewFunc != nil {
		return m.GetReviewFunc(ctx, companyID, reviewID)
	}
	return nil, errors.New("GetReviewFunc not implemented")
}

// MockSeriesService is a mock implementation of the SeriesService interface.
type MockSeriesService struct {
	GetSeriesFunc func(ctx context.Context, scope models.Scope, filterName string, from, to time.Time) ([]service.SeriesPoint, error)
}

func (m *MockSeriesService) GetSeries(ctx context.Context, scope models.Scope, filterName string, from, to time.Time) ([]service.SeriesPoint, error) {
	if m.GetSeriesFunc != nil {
		return m.GetSeriesFunc(ctx, scope, filterName, from, to)
	}
	return nil, errors.New("GetSeriesFunc not implemented")
}

// MockDashboardRefresher is a mock implementation of the DashboardRefresher interface.
type MockDashboardRefresher struct {
	RefreshAllFunc    func(ctx context.Context) (service.RefreshSummary, error)
	RefreshTenantFunc func(ctx context.Context, companyID string) error
}

func (m *MockDashboardRefresher) RefreshAll(ctx context.Context) (service.RefreshSummary, error) {
	if m.RefreshAllFunc != nil {
		return m.RefreshAllFunc(ctx)
	}
	return service.RefreshSummary{}, errors.New("RefreshAllFunc not implemented")
}

func (m *MockDashboardRefresher) RefreshTenant(ctx context.Context, companyID string) error {
	if m.RefreshTenantFunc != nil {
		return m.RefreshTenantFunc(ctx, companyID)
	}
	return errors.New("RefreshTenantFunc not implemented")
}
