package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/godilite/qa-review-engine/internal/repository"
	"github.com/godilite/qa-review-engine/internal/repository/models"
	"github.com/godilite/qa-review-engine/pkg/database"
)

const (
	testCompany    = "acme"
	testTranscript = "tr-1"
)

var testNow = time.Date(2025, 3, 15, 14, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// harness wires the real sqlite repositories behind the services.
type harness struct {
	db        *sql.DB
	reviews   *repository.ReviewRepository
	metrics   *repository.MetricRepository
	tenants   *repository.TenantRepository
	snapshots *repository.SnapshotRepository
	clock     *testClock
	logger    *zap.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	// One connection that never expires: every new :memory: connection is a
	// fresh, empty database.
	db, err := database.New(
		database.WithDriver("sqlite3"),
		database.WithDataSource(":memory:"),
		database.WithMaxOpenConns(1),
		database.WithMaxIdleConns(1),
		database.WithConnMaxLifetime(0),
		database.WithConnMaxIdleTime(0),
		database.WithMigrations(repository.Migrate),
	)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &harness{
		db:        db,
		reviews:   repository.NewReviewRepository(db),
		metrics:   repository.NewMetricRepository(db),
		tenants:   repository.NewTenantRepository(db),
		snapshots: repository.NewSnapshotRepository(db),
		clock:     newTestClock(testNow),
		logger:    zap.NewNop(),
	}
}

var empathyCriteria = []models.CriterionWeight{
	{Name: "Empathy", Description: "Acknowledges the customer's feelings", Weight: 1},
	{Name: "Resolution", Description: "Solves the problem", Weight: 2},
}

// seedTenant creates an active tenant with a subscription period of
// [now-1d, now+29d] and one transcript.
func (h *harness) seedTenant(t *testing.T, allowed int64, criteria []models.CriterionWeight) {
	t.Helper()
	ctx := context.Background()
	now := h.clock.Now()

	require.NoError(t, h.tenants.SaveCompany(ctx, models.Company{ID: testCompany, Name: "Acme", Active: true}))
	require.NoError(t, h.tenants.SaveSubscription(ctx, models.Subscription{
		CompanyID:          testCompany,
		CurrentPeriodStart: now.Add(-models.Day),
		CurrentPeriodEnd:   now.Add(29 * models.Day),
		AllowedReviews:     allowed,
	}))
	require.NoError(t, h.tenants.SaveReviewConfig(ctx, models.ReviewConfig{
		CompanyID: testCompany,
		Active:    true,
		Criteria:  criteria,
		Settings:  models.ModelSettings{Model: "gpt-4o-mini", Temperature: 0.2, MaxTokens: 1024},
	}))
	require.NoError(t, h.tenants.SaveTranscript(ctx, models.Transcript{
		ID:         testTranscript,
		CompanyID:  testCompany,
		EmployeeID: "emp-1",
		TeamID:     "team-a",
		ContactID:  "contact-1",
		Content:    "Agent: Hello, how can I help?\nCustomer: My order is late.",
		CreatedAt:  now.Add(-time.Hour),
	}))
}

func (h *harness) service(scorer Scorer, events ReviewEventHandler, opts ProcessorOptions) *ReviewService {
	return NewReviewService(ReviewDeps{
		Reviews:       h.reviews,
		Counter:       h.reviews,
		Transcripts:   h.tenants,
		Subscriptions: h.tenants,
		Configs:       h.tenants,
		Scorer:        scorer,
		Events:        events,
		Clock:         h.clock,
		Logger:        h.logger,
	}, opts)
}

func (h *harness) trigger() *AggregationTrigger {
	writer := NewAggregationWriter(h.reviews, h.metrics, h.clock, h.logger)
	return NewAggregationTrigger(writer, nil, 0, h.logger)
}

type reviewFixture struct {
	id        string
	typ       models.ReviewType
	status    models.ReviewStatus
	overall   *float64
	sentiment *float64
	label     models.SentimentLabel
	criteria  []models.CriterionScore
	teamID    string
	createdAt time.Time
}

// insertReview writes a review directly, bypassing the state machine.
func (h *harness) insertReview(t *testing.T, f reviewFixture) *models.Review {
	t.Helper()
	if f.typ == "" {
		f.typ = models.ReviewTypePerformance
	}
	if f.status == "" {
		f.status = models.StatusReviewed
	}
	r := &models.Review{
		ID:             f.id,
		CompanyID:      testCompany,
		TranscriptID:   testTranscript,
		Type:           f.typ,
		Status:         f.status,
		OverallScore:   f.overall,
		SentimentScore: f.sentiment,
		SentimentLabel: f.label,
		CriteriaScores: f.criteria,
		TeamID:         f.teamID,
		CreatedAt:      f.createdAt,
		UpdatedAt:      f.createdAt,
	}
	require.NoError(t, h.reviews.CreateReview(context.Background(), r))
	return r
}

func (h *harness) waitForStatus(t *testing.T, id string, want models.ReviewStatus) *models.Review {
	t.Helper()
	var got *models.Review
	require.Eventually(t, func() bool {
		r, err := h.reviews.GetReview(context.Background(), testCompany, id)
		if err != nil {
			return false
		}
		got = r
		return r.Status == want
	}, 5*time.Second, 10*time.Millisecond, "review %s never reached %s", id, want)
	return got
}

func ptr(v float64) *float64 { return &v }
