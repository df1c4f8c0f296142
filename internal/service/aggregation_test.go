package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/godilite/qa-review-engine/internal/repository/models"
	"github.com/godilite/qa-review-engine/internal/service/mocks"
)

func TestNewAggregationWriter(t *testing.T) {
	assert.Panics(t, func() { NewAggregationWriter(nil, &mocks.MockMetricStore{}, nil, nil) })
	assert.Panics(t, func() { NewAggregationWriter(&mocks.MockReviewAggregator{}, nil, nil, nil) })

	w := NewAggregationWriter(&mocks.MockReviewAggregator{}, &mocks.MockMetricStore{}, nil, nil)
	assert.NotNil(t, w.logger)
	assert.NotNil(t, w.clock)
}

func TestRecomputeEmpathyScenario(t *testing.T) {
	h := newHarness(t)
	h.seedTenant(t, 10, empathyCriteria)
	ctx := context.Background()
	company := models.CompanyScope(testCompany)

	h.insertReview(t, reviewFixture{
		id:        "r-1",
		overall:   ptr(8),
		criteria:  []models.CriterionScore{{CriterionName: "Empathy", Score: 8}},
		createdAt: testNow.Add(-2 * time.Hour),
	})

	writer := NewAggregationWriter(h.reviews, h.metrics, h.clock, h.logger)
	require.NoError(t, writer.Recompute(ctx, testNow, company))

	overall, err := h.metrics.GetOverallMetric(ctx, testNow, company)
	require.NoError(t, err)
	require.NotNil(t, overall.AvgOverall)
	assert.Equal(t, 8.0, *overall.AvgOverall)
	assert.Nil(t, overall.AvgSentiment)
	assert.Equal(t, int64(1), overall.ReviewCount)
	assert.Equal(t, models.StartOfDay(testNow), overall.Day)

	criteria, err := h.metrics.ListCriterionMetrics(ctx, testCompany, "", testNow, testNow)
	require.NoError(t, err)
	require.Len(t, criteria, 1)
	assert.Equal(t, "Empathy", criteria[0].CriterionName)
	assert.Equal(t, 8.0, criteria[0].AvgScore)
	assert.Equal(t, int64(1), criteria[0].ReviewCount)
}

func TestRecomputeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.seedTenant(t, 10, empathyCriteria)
	ctx := context.Background()
	company := models.CompanyScope(testCompany)

	h.insertReview(t, reviewFixture{
		id: "r-1", typ: models.ReviewTypeBoth, overall: ptr(6), sentiment: ptr(4), label: models.SentimentNeutral,
		criteria:  []models.CriterionScore{{CriterionName: "Empathy", Score: 6}, {CriterionName: "Resolution", Score: 9}},
		teamID:    "team-a",
		createdAt: testNow.Add(-3 * time.Hour),
	})
	h.insertReview(t, reviewFixture{
		id: "r-2", typ: models.ReviewTypeSentiment, sentiment: ptr(9), label: models.SentimentPositive,
		teamID:    "team-b",
		createdAt: testNow.Add(-time.Hour),
	})

	writer := NewAggregationWriter(h.reviews, h.metrics, h.clock, h.logger)

	snapshot := func() (any, any, any, any) {
		overall, err := h.metrics.GetOverallMetric(ctx, testNow, company)
		require.NoError(t, err)
		criteria, err := h.metrics.ListCriterionMetrics(ctx, testCompany, "", testNow, testNow)
		require.NoError(t, err)
		teams, err := h.metrics.ListTeamMetrics(ctx, testCompany, testNow)
		require.NoError(t, err)
		labels, err := h.metrics.GetSentimentLabelMetric(ctx, testCompany, testNow)
		require.NoError(t, err)
		return overall, criteria, teams, labels
	}

	require.NoError(t, writer.Recompute(ctx, testNow, company))
	o1, c1, t1, l1 := snapshot()
	require.NoError(t, writer.Recompute(ctx, testNow, company))
	o2, c2, t2, l2 := snapshot()

	assert.Equal(t, o1, o2)
	assert.Equal(t, c1, c2)
	assert.Equal(t, t1, t2)
	assert.Equal(t, l1, l2)
}

func TestRecomputeKinds(t *testing.T) {
	h := newHarness(t)
	h.seedTenant(t, 10, empathyCriteria)
	ctx := context.Background()
	company := models.CompanyScope(testCompany)
	day := models.StartOfDay(testNow.Add(-2 * models.Day))

	h.insertReview(t, reviewFixture{id: "p-1", overall: ptr(6), teamID: "team-a", createdAt: day.Add(time.Hour),
		criteria: []models.CriterionScore{{CriterionName: "Empathy", Score: 5}}})
	h.insertReview(t, reviewFixture{id: "s-1", typ: models.ReviewTypeSentiment, sentiment: ptr(2), label: models.SentimentNegative,
		teamID: "team-a", createdAt: day.Add(2 * time.Hour)})
	h.insertReview(t, reviewFixture{id: "b-1", typ: models.ReviewTypeBoth, overall: ptr(10), sentiment: ptr(8), label: models.SentimentPositive,
		createdAt: day.Add(3 * time.Hour), criteria: []models.CriterionScore{{CriterionName: "Empathy", Score: 9}, {CriterionName: "Resolution", Score: 7}}})
	// Outside the bucket, not REVIEWED, or deleted: ignored.
	h.insertReview(t, reviewFixture{id: "other-day", overall: ptr(1), createdAt: day.Add(-time.Minute)})
	h.insertReview(t, reviewFixture{id: "started", status: models.StatusStarted, createdAt: day.Add(time.Hour)})
	h.insertReview(t, reviewFixture{id: "deleted", overall: ptr(1), createdAt: day.Add(time.Hour)})
	require.NoError(t, h.reviews.SoftDeleteReview(ctx, testCompany, "deleted", testNow))

	writer := NewAggregationWriter(h.reviews, h.metrics, h.clock, h.logger)
	require.NoError(t, writer.Recompute(ctx, day, company))

	t.Run("overall averages by type", func(t *testing.T) {
		m, err := h.metrics.GetOverallMetric(ctx, day, company)
		require.NoError(t, err)
		assert.InDelta(t, 8.0, *m.AvgOverall, 1e-9)
		assert.InDelta(t, 5.0, *m.AvgSentiment, 1e-9)
		assert.Equal(t, int64(3), m.ReviewCount)
	})

	t.Run("criteria unwound per name", func(t *testing.T) {
		rows, err := h.metrics.ListCriterionMetrics(ctx, testCompany, "", day, day)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "Empathy", rows[0].CriterionName)
		assert.InDelta(t, 7.0, rows[0].AvgScore, 1e-9)
		assert.Equal(t, int64(2), rows[0].ReviewCount)
		assert.Equal(t, "Resolution", rows[1].CriterionName)
		assert.Equal(t, int64(1), rows[1].ReviewCount)
	})

	t.Run("team rows merge both averages", func(t *testing.T) {
		rows, err := h.metrics.ListTeamMetrics(ctx, testCompany, day)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "team-a", rows[0].TeamID)
		assert.Equal(t, 6.0, *rows[0].AvgOverall)
		assert.Equal(t, 2.0, *rows[0].AvgSentiment)
		assert.Equal(t, int64(2), rows[0].ReviewCount)
	})

	t.Run("sentiment histogram", func(t *testing.T) {
		m, err := h.metrics.GetSentimentLabelMetric(ctx, testCompany, day)
		require.NoError(t, err)
		assert.Equal(t, int64(1), m.Negative)
		assert.Equal(t, int64(0), m.Neutral)
		assert.Equal(t, int64(1), m.Positive)
		assert.Equal(t, int64(2), m.Total)
	})

	t.Run("team scope writes only its overall row", func(t *testing.T) {
		team := models.Scope{CompanyID: testCompany, Kind: models.ScopeTeam, EntityID: "team-a"}
		require.NoError(t, writer.Recompute(ctx, day, team))

		m, err := h.metrics.GetOverallMetric(ctx, day, team)
		require.NoError(t, err)
		assert.Equal(t, int64(2), m.ReviewCount)
		assert.Equal(t, 6.0, *m.AvgOverall)
	})
}

func TestRecomputeDeletesEmptyBuckets(t *testing.T) {
	h := newHarness(t)
	h.seedTenant(t, 10, empathyCriteria)
	ctx := context.Background()
	company := models.CompanyScope(testCompany)

	h.insertReview(t, reviewFixture{
		id: "r-1", typ: models.ReviewTypeBoth, overall: ptr(7), sentiment: ptr(7), label: models.SentimentPositive,
		criteria:  []models.CriterionScore{{CriterionName: "Empathy", Score: 7}},
		teamID:    "team-a",
		createdAt: testNow.Add(-time.Hour),
	})
	writer := NewAggregationWriter(h.reviews, h.metrics, h.clock, h.logger)
	require.NoError(t, writer.Recompute(ctx, testNow, company))

	require.NoError(t, h.reviews.SoftDeleteReview(ctx, testCompany, "r-1", testNow))
	require.NoError(t, writer.Recompute(ctx, testNow, company))

	_, err := h.metrics.GetOverallMetric(ctx, testNow, company)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = h.metrics.GetSentimentLabelMetric(ctx, testCompany, testNow)
	assert.ErrorIs(t, err, models.ErrNotFound)
	criteria, err := h.metrics.ListCriterionMetrics(ctx, testCompany, "", testNow, testNow)
	require.NoError(t, err)
	assert.Empty(t, criteria)
	teams, err := h.metrics.ListTeamMetrics(ctx, testCompany, testNow)
	require.NoError(t, err)
	assert.Empty(t, teams)
}

func TestRecomputeIsolatesKindFailures(t *testing.T) {
	ctx := context.Background()
	company := models.CompanyScope(testCompany)

	var written []string
	aggregator := &mocks.MockReviewAggregator{
		AggregateOverallFunc: func(ctx context.Context, scope models.Scope, w models.Window) (models.OverallAggregate, error) {
			return models.OverallAggregate{}, errors.New("disk I/O error")
		},
		AggregateCriteriaFunc: func(ctx context.Context, scope models.Scope, w models.Window, criterion string) ([]models.CriterionAggregate, error) {
			assert.Equal(t, models.StartOfDay(testNow), w.Start)
			assert.Equal(t, models.StartOfDay(testNow).Add(models.Day), w.End)
			assert.False(t, w.EndInclusive)
			assert.Empty(t, criterion)
			return []models.CriterionAggregate{{CriterionName: "Empathy", AvgScore: 8, ReviewCount: 1}}, nil
		},
		AggregateTeamsFunc: func(ctx context.Context, scope models.Scope, w models.Window) ([]models.TeamAggregate, error) {
			return nil, nil
		},
		AggregateSentimentLabelsFunc: func(ctx context.Context, scope models.Scope, w models.Window) (models.SentimentLabelCounts, error) {
			return models.SentimentLabelCounts{}, nil
		},
	}
	store := &mocks.MockMetricStore{
		ReplaceCriterionMetricsFunc: func(ctx context.Context, companyID string, day time.Time, metrics []models.DailyCriterionMetric) error {
			written = append(written, kindCriterion)
			require.Len(t, metrics, 1)
			assert.Equal(t, testNow, metrics[0].UpdatedAt)
			return nil
		},
		ReplaceTeamMetricsFunc: func(ctx context.Context, companyID string, day time.Time, metrics []models.DailyTeamMetric) error {
			written = append(written, kindTeam)
			assert.Empty(t, metrics)
			return nil
		},
		DeleteSentimentLabelMetricFunc: func(ctx context.Context, companyID string, day time.Time) error {
			written = append(written, kindSentiment)
			return nil
		},
	}

	writer := NewAggregationWriter(aggregator, store, newTestClock(testNow), zap.NewNop())
	err := writer.Recompute(ctx, testNow, company)

	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.ErrorContains(t, err, "disk I/O error")
	assert.Equal(t, []string{kindCriterion, kindTeam, kindSentiment}, written)
}

func TestRecomputeRejectsInvalidScope(t *testing.T) {
	writer := NewAggregationWriter(&mocks.MockReviewAggregator{}, &mocks.MockMetricStore{}, nil, zap.NewNop())

	for _, scope := range []models.Scope{
		{},
		{CompanyID: testCompany, Kind: models.ScopeTeam},
		{CompanyID: testCompany, Kind: models.ScopeCompany, EntityID: "x"},
		{CompanyID: testCompany, Kind: "region", EntityID: "eu"},
	} {
		err := writer.Recompute(context.Background(), testNow, scope)
		assert.ErrorIs(t, err, ErrInvalidScope, "%+v", scope)
	}
}
