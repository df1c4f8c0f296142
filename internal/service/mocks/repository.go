package mocks

import (
	"context"
	"errors"
	"time"

	"github.com/godilite/qa-review-engine/internal/repository/models"
)

// MockReviewStore is a mock implementation of the ReviewStore and
// ReviewCounter interfaces for testing the service layer.
type MockReviewStore struct {
	CreateReviewFunc         func(ctx context.Context, r *models.Review) error
	GetReviewFunc            func(ctx context.Context, companyID, id string) (*models.Review, error)
	UpdateReviewFunc         func(ctx context.Context, r *models.Review, expected models.ReviewStatus) error
	SoftDeleteReviewFunc     func(ctx context.Context, companyID, id string, at time.Time) error
	CountReviewsInPeriodFunc func(ctx context.Context, companyID string, statuses []models.ReviewStatus, start, end time.Time) (int64, error)
}

func (m *MockReviewStore) CreateReview(ctx context.Context, r *models.Review) error {
	if m.CreateReviewFunc != nil {
		return m.CreateReviewFunc(ctx, r)
	}
	return errors.New("CreateReviewFunc not implemented")
}

func (m *MockReviewStore) GetReview(ctx context.Context, companyID, id string) (*models.Review, error) {
	if m.GetReviewFunc != nil {
		return m.GetReviewFunc(ctx, companyID, id)
	}
	return nil, errors.New("GetReviewFunc not implemented")
}

func (m *MockReviewStore) UpdateReview(ctx context.Context, r *models.Review, expected models.ReviewStatus) error {
	if m.UpdateReviewFunc != nil {
		return m.UpdateReviewFunc(ctx, r, expected)
	}
	return errors.New("UpdateReviewFunc not implemented")
}

func (m *MockReviewStore) SoftDeleteReview(ctx context.Context, companyID, id string, at time.Time) error {
	if m.SoftDeleteReviewFunc != nil {
		return m.SoftDeleteReviewFunc(ctx, companyID, id, at)
	}
	return errors.New("SoftDeleteReviewFunc not implemented")
}

func (m *MockReviewStore) CountReviewsInPeriod(ctx context.Context, companyID string, statuses []models.ReviewStatus, start, end time.Time) (int64, error) {
	if m.CountReviewsInPeriodFunc != nil {
		return m.CountReviewsInPeriodFunc(ctx, companyID, statuses, start, end)
	}
	return 0, errors.New("CountReviewsInPeriodFunc not implemented")
}

// MockReviewAggregator is a mock implementation of the ReviewAggregator interface.
type MockReviewAggregator struct {
	AggregateOverallFunc         func(ctx context.Context, scope models.Scope, w models.Window) (models.OverallAggregate, error)
	AggregateCriteriaFunc        func(ctx context.Context, scope models.Scope, w models.Window, criterion string) ([]models.CriterionAggregate, error)
	AggregateTeamsFunc           func(ctx context.Context, scope models.Scope, w models.Window) ([]models.TeamAggregate, error)
	AggregateSentimentLabelsFunc func(ctx context.Context, scope models.Scope, w models.Window) (models.SentimentLabelCounts, error)
}

func (m *MockReviewAggregator) AggregateOverall(ctx context.Context, scope models.Scope, w models.Window) (models.OverallAggregate, error) {
	if m.AggregateOverallFunc != nil {
		return m.AggregateOverallFunc(ctx, scope, w)
	}
	return models.OverallAggregate{}, errors.New("AggregateOverallFunc not implemented")
}

func (m *MockReviewAggregator) AggregateCriteria(ctx context.Context, scope models.Scope, w models.Window, criterion string) ([]models.CriterionAggregate, error) {
	if m.AggregateCriteriaFunc != nil {
		return m.AggregateCriteriaFunc(ctx, scope, w, criterion)
	}
	return nil, errors.New("AggregateCriteriaFunc not implemented")
}

func (m *MockReviewAggregator) AggregateTeams(ctx context.Context, scope models.Scope, w models.Window) ([]models.TeamAggregate, error) {
	if m.AggregateTeamsFunc != nil {
		return m.AggregateTeamsFunc(ctx, scope, w)
	}
	return nil, errors.New("AggregateTeamsFunc not implemented")
}

func (m *MockReviewAggregator) AggregateSentimentLabels(ctx context.Context, scope models.Scope, w models.Window) (models.SentimentLabelCounts, error) {
	if m.AggregateSentimentLabelsFunc != nil {
		return m.AggregateSentimentLabelsFunc(ctx, scope, w)
	}
	return models.SentimentLabelCounts{}, errors.New("AggregateSentimentLabelsFunc not implemented")
}

// MockMetricStore is a mock implementation of the MetricStore and
// MetricReader interfaces.
type MockMetricStore struct {
	UpsertOverallMetricFunc        func(ctx context.Context, m models.DailyOverallMetric) error
	DeleteOverallMetricFunc        func(ctx context.Context, day time.Time, scope models.Scope) error
	ReplaceCriterionMetricsFunc    func(ctx context.Context, companyID string, day time.Time, metrics []models.DailyCriterionMetric) error
	ReplaceTeamMetricsFunc         func(ctx context.Context, companyID string, day time.Time, metrics []models.DailyTeamMetric) error
	UpsertSentimentLabelMetricFunc func(ctx context.Context, m models.DailySentimentLabelMetric) error
	DeleteSentimentLabelMetricFunc func(ctx context.Context, companyID string, day time.Time) error
	ListOverallMetricsFunc         func(ctx context.Context, scope models.Scope, fromDay, toDay time.Time) ([]models.DailyOverallMetric, error)
	ListCriterionMetricsFunc       func(ctx context.Context, companyID, criterion string, fromDay, toDay time.Time) ([]models.DailyCriterionMetric, error)
}

func (m *MockMetricStore) UpsertOverallMetric(ctx context.Context, metric models.DailyOverallMetric) error {
	if m.UpsertOverallMetricFunc != nil {
		return m.UpsertOverallMetricFunc(ctx, metric)
	}
	return errors.New("UpsertOverallMetricFunc not implemented")
}

func (m *MockMetricStore) DeleteOverallMetric(ctx context.Context, day time.Time, scope models.Scope) error {
	if m.DeleteOverallMetricFunc != nil {
		return m.DeleteOverallMetricFunc(ctx, day, scope)
	}
	return errors.New("DeleteOverallMetricFunc not implemented")
}

func (m *MockMetricStore) ReplaceCriterionMetrics(ctx context.Context, companyID string, day time.Time, metrics []models.DailyCriterionMetric) error {
	if m.ReplaceCriterionMetricsFunc != nil {
		return m.ReplaceCriterionMetricsFunc(ctx, companyID, day, metrics)
	}
	return errors.New("ReplaceCriterionMetricsFunc not implemented")
}

func (m *MockMetricStore) ReplaceTeamMetrics(ctx context.Context, companyID string, day time.Time, metrics []models.DailyTeamMetric) error {
	if m.ReplaceTeamMetricsFunc != nil {
		return m.ReplaceTeamMetricsFunc(ctx, companyID, day, metrics)
	}
	return errors.New("ReplaceTeamMetricsFunc not implemented")
}

func (m *MockMetricStore) UpsertSentimentLabelMetric(ctx context.Context, metric models.DailySentimentLabelMetric) error {
	if m.UpsertSentimentLabelMetricFunc != nil {
		return m.UpsertSentimentLabelMetricFunc(ctx, metric)
	}
	return errors.New("UpsertSentimentLabelMetricFunc not implemented")
}

func (m *MockMetricStore) DeleteSentimentLabelMetric(ctx context.Context, companyID string, day time.Time) error {
	if m.DeleteSentimentLabelMetricFunc != nil {
		return m.DeleteSentimentLabelMetricFunc(ctx, companyID, day)
	}
	return errors.New("DeleteSentimentLabelMetricFunc not implemented")
}

func (m *MockMetricStore) ListOverallMetrics(ctx context.Context, scope models.Scope, fromDay, toDay time.Time) ([]models.DailyOverallMetric, error) {
	if m.ListOverallMetricsFunc != nil {
		return m.ListOverallMetricsFunc(ctx, scope, fromDay, toDay)
	}
	return nil, errors.New("ListOverallMetricsFunc not implemented")
}

func (m *MockMetricStore) ListCriterionMetrics(ctx context.Context, companyID, criterion string, fromDay, toDay time.Time) ([]models.DailyCriterionMetric, error) {
	if m.ListCriterionMetricsFunc != nil {
		return m.ListCriterionMetricsFunc(ctx, companyID, criterion, fromDay, toDay)
	}
	return nil, errors.New("ListCriterionMetricsFunc not implemented")
}

// MockTenantStore is a mock implementation of the transcript, subscription,
// review config and tenant lister interfaces.
type MockTenantStore struct {
	GetTranscriptFunc          func(ctx context.Context, companyID, id string) (*models.Transcript, error)
	MarkTranscriptReviewedFunc func(ctx context.Context, companyID, id string) error
	GetSubscriptionFunc        func(ctx context.Context, companyID string) (*models.Subscription, error)
	GetReviewConfigFunc        func(ctx context.Context, companyID string) (*models.ReviewConfig, error)
	ListActiveCompanyIDsFunc   func(ctx context.Context) ([]string, error)
}

func (m *MockTenantStore) GetTranscript(ctx context.Context, companyID, id string) (*models.Transcript, error) {
	if m.GetTranscriptFunc != nil {
		return m.GetTranscriptFunc(ctx, companyID, id)
	}
	return nil, errors.New("GetTranscriptFunc not implemented")
}

func (m *MockTenantStore) MarkTranscriptReviewed(ctx context.Context, companyID, id string) error {
	if m.MarkTranscriptReviewedFunc != nil {
		return m.MarkTranscriptReviewedFunc(ctx, companyID, id)
	}
	return nil
}

func (m *MockTenantStore) GetSubscription(ctx context.Context, companyID string) (*models.Subscription, error) {
	if m.GetSubscriptionFunc != nil {
		return m.GetSubscriptionFunc(ctx, companyID)
	}
	return nil, errors.New("GetSubscriptionFunc not implemented")
}

func (m *MockTenantStore) GetReviewConfig(ctx context.Context, companyID string) (*models.ReviewConfig, error) {
	if m.GetReviewConfigFunc != nil {
		return m.GetReviewConfigFunc(ctx, companyID)
	}
	return nil, errors.New("GetReviewConfigFunc not implemented")
}

func (m *MockTenantStore) ListActiveCompanyIDs(ctx context.Context) ([]string, error) {
	if m.ListActiveCompanyIDsFunc != nil {
		return m.ListActiveCompanyIDsFunc(ctx)
	}
	return nil, errors.New("ListActiveCompanyIDsFunc not implemented")
}

// MockSnapshotStore is a mock implementation of the SnapshotStore interface.
type MockSnapshotStore struct {
	PerformanceTotalsFunc     func(ctx context.Context, companyID string) (*float64, int64, error)
	SentimentTotalsFunc       func(ctx context.Context, companyID string) (*float64, int64, error)
	CriterionTotalsFunc       func(ctx context.Context, companyID string) ([]models.CriterionSnapshot, error)
	TotalReviewedFunc         func(ctx context.Context, companyID string) (int64, error)
	SaveDashboardSnapshotFunc func(ctx context.Context, snap models.DashboardSnapshot) error
}

func (m *MockSnapshotStore) PerformanceTotals(ctx context.Context, companyID string) (*float64, int64, error) {
	if m.PerformanceTotalsFunc != nil {
		return m.PerformanceTotalsFunc(ctx, companyID)
	}
	return nil, 0, errors.New("PerformanceTotalsFunc not implemented")
}

func (m *MockSnapshotStore) SentimentTotals(ctx context.Context, companyID string) (*float64, int64, error) {
	if m.SentimentTotalsFunc != nil {
		return m.SentimentTotalsFunc(ctx, companyID)
	}
	return nil, 0, errors.New("SentimentTotalsFunc not implemented")
}

func (m *MockSnapshotStore) CriterionTotals(ctx context.Context, companyID string) ([]models.CriterionSnapshot, error) {
	if m.CriterionTotalsFunc != nil {
		return m.CriterionTotalsFunc(ctx, companyID)
	}
	return nil, errors.New("CriterionTotalsFunc not implemented")
}

func (m *MockSnapshotStore) TotalReviewed(ctx context.Context, companyID string) (int64, error) {
	if m.TotalReviewedFunc != nil {
		return m.TotalReviewedFunc(ctx, companyID)
	}
	return 0, errors.New("TotalReviewedFunc not implemented")
}

func (m *MockSnapshotStore) SaveDashboardSnapshot(ctx context.Context, snap models.DashboardSnapshot) error {
	if m.SaveDashboardSnapshotFunc != nil {
		return m.SaveDashboardSnapshotFunc(ctx, snap)
	}
	return errors.New("SaveDashboardSnapshotFunc not implemented")
}
