package grpc

import (
	"context"
	"time"

	"github.com/godilite/qa-review-engine/internal/repository/models"
	"github.com/godilite/qa-review-engine/internal/service"
)

// Cacher defines the interface for cache operations.
type Cacher interface {
	Close() error
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

type ReviewService interface {
	CreateReview(ctx context.Context, in service.CreateReviewInput) (*models.Review, error)
	RetryReview(ctx context.Context, companyID, reviewID string) (*models.Review, error)
	DeleteReview(ctx context.Context, companyID, reviewID string) error
	CorrectReviewScores(ctx context.Context, companyID, reviewID string, c service.ScoreCorrection) (*models.Review, error)
	GetReview(ctx context.Context, companyID, reviewID string) (*models.Review, error)
}

type SeriesService interface {
	GetSeries(ctx context.Context, scope models.Scope, filterName string, from, to time.Time) ([]service.SeriesPoint, error)
}

type DashboardRefresher interface {
	RefreshAll(ctx context.Context) (service.RefreshSummary, error)
	RefreshTenant(ctx context.Context, companyID string) error
}
