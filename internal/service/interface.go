package service

import (
	"context"
	"time"

	"github.com/godilite/qa-review-engine/internal/repository/models"
)

// Clock is the engine's notion of "now".
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

type ReviewStore interface {
	CreateReview(ctx context.Context, r *models.Review) error
	GetReview(ctx context.Context, companyID, id string) (*models.Review, error)
	UpdateReview(ctx context.Context, r *models.Review, expected models.ReviewStatus) error
	SoftDeleteReview(ctx context.Context, companyID, id string, at time.Time) error
}

type ReviewCounter interface {
	CountReviewsInPeriod(ctx context.Context, companyID string, statuses []models.ReviewStatus, start, end time.Time) (int64, error)
}

type ReviewAggregator interface {
	AggregateOverall(ctx context.Context, scope models.Scope, w models.Window) (models.OverallAggregate, error)
	AggregateCriteria(ctx context.Context, scope models.Scope, w models.Window, criterion string) ([]models.CriterionAggregate, error)
	AggregateTeams(ctx context.Context, scope models.Scope, w models.Window) ([]models.TeamAggregate, error)
	AggregateSentimentLabels(ctx context.Context, scope models.Scope, w models.Window) (models.SentimentLabelCounts, error)
}

type MetricStore interface {
	UpsertOverallMetric(ctx context.Context, m models.DailyOverallMetric) error
	DeleteOverallMetric(ctx context.Context, day time.Time, scope models.Scope) error
	ReplaceCriterionMetrics(ctx context.Context, companyID string, day time.Time, metrics []models.DailyCriterionMetric) error
	ReplaceTeamMetrics(ctx context.Context, companyID string, day time.Time, metrics []models.DailyTeamMetric) error
	UpsertSentimentLabelMetric(ctx context.Context, m models.DailySentimentLabelMetric) error
	DeleteSentimentLabelMetric(ctx context.Context, companyID string, day time.Time) error
}

type MetricReader interface {
	ListOverallMetrics(ctx context.Context, scope models.Scope, fromDay, toDay time.Time) ([]models.DailyOverallMetric, error)
	ListCriterionMetrics(ctx context.Context, companyID, criterion string, fromDay, toDay time.Time) ([]models.DailyCriterionMetric, error)
}

type TranscriptStore interface {
	GetTranscript(ctx context.Context, companyID, id string) (*models.Transcript, error)
	MarkTranscriptReviewed(ctx context.Context, companyID, id string) error
}

type SubscriptionProvider interface {
	GetSubscription(ctx context.Context, companyID string) (*models.Subscription, error)
}

type ReviewConfigProvider interface {
	GetReviewConfig(ctx context.Context, companyID string) (*models.ReviewConfig, error)
}

type TenantLister interface {
	ListActiveCompanyIDs(ctx context.Context) ([]string, error)
}

type SnapshotStore interface {
	PerformanceTotals(ctx context.Context, companyID string) (*float64, int64, error)
	SentimentTotals(ctx context.Context, companyID string) (*float64, int64, error)
	CriterionTotals(ctx context.Context, companyID string) ([]models.CriterionSnapshot, error)
	TotalReviewed(ctx context.Context, companyID string) (int64, error)
	SaveDashboardSnapshot(ctx context.Context, snap models.DashboardSnapshot) error
}

// Scorer is the external scoring collaborator.
type Scorer interface {
	Score(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error)
}

// ReviewEventHandler consumes review events. It must not fail the write that
// produced the event, so it has no error return.
type ReviewEventHandler interface {
	HandleReviewEvent(ctx context.Context, ev ReviewEvent)
}

// Recomputer rebuilds the rollups of one day bucket for one scope.
type Recomputer interface {
	Recompute(ctx context.Context, day time.Time, scope models.Scope) error
}

// CacheInvalidator drops cached entries by key prefix.
type CacheInvalidator interface {
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
}
