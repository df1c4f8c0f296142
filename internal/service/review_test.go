package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/godilite/qa-review-engine/internal/repository/models"
	"github.com/godilite/qa-review-engine/internal/service/mocks"
)

// scoreAll answers every request with fixed scores. Criteria come back in
// reverse order and lower case.
func scoreAll(req models.ScoreRequest) models.ScoreResult {
	res := models.ScoreResult{Subject: "Late order"}
	if req.Type.ScoresPerformance() {
		res.OverallScore = ptr(8)
		res.OverallFeedback = "Calm and clear."
		for i := len(req.Criteria) - 1; i >= 0; i-- {
			res.CriteriaScores = append(res.CriteriaScores, models.CriterionScore{
				CriterionName: strings.ToLower(req.Criteria[i].Name),
				Score:         8,
				Comment:       "ok",
			})
		}
	}
	if req.Type.ScoresSentiment() {
		res.SentimentScore = ptr(7.5)
		res.SentimentLabel = "Positive"
	}
	return res
}

type recordingHandler struct {
	mu     sync.Mutex
	events []ReviewEvent
}

func (h *recordingHandler) HandleReviewEvent(_ context.Context, ev ReviewEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHandler) transitions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, ev := range h.events {
		out = append(out, string(ev.PreviousStatus)+"->"+string(ev.Review.Status))
	}
	return out
}

func TestNewReviewService(t *testing.T) {
	store := &mocks.MockReviewStore{}
	tenants := &mocks.MockTenantStore{}
	scorer := &mocks.MockScorer{}

	t.Run("valid dependencies", func(t *testing.T) {
		svc := NewReviewService(ReviewDeps{
			Reviews: store, Counter: store, Transcripts: tenants,
			Subscriptions: tenants, Configs: tenants, Scorer: scorer,
		}, ProcessorOptions{})

		assert.NotNil(t, svc.logger)
		assert.NotNil(t, svc.clock)
		assert.Equal(t, 4, svc.workers)
		assert.Equal(t, 256, cap(svc.queue))
	})

	t.Run("nil reviews panics", func(t *testing.T) {
		assert.Panics(t, func() {
			NewReviewService(ReviewDeps{Counter: store, Transcripts: tenants, Subscriptions: tenants, Configs: tenants, Scorer: scorer}, ProcessorOptions{})
		})
	})

	t.Run("nil scorer panics", func(t *testing.T) {
		assert.Panics(t, func() {
			NewReviewService(ReviewDeps{Reviews: store, Counter: store, Transcripts: tenants, Subscriptions: tenants, Configs: tenants}, ProcessorOptions{})
		})
	})
}

func TestCreateReviewQuotaScenario(t *testing.T) {
	h := newHarness(t)
	h.seedTenant(t, 1, empathyCriteria)
	ctx := context.Background()

	// Workers are not started, so the first review stays queued.
	svc := h.service(&mocks.MockScorer{}, nil, ProcessorOptions{Workers: 1, QueueSize: 4})

	first, err := svc.CreateReview(ctx, CreateReviewInput{
		CompanyID:    testCompany,
		TranscriptID: testTranscript,
		Type:         models.ReviewTypePerformance,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNotStarted, first.Status)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "emp-1", first.EmployeeID)
	assert.Equal(t, "team-a", first.TeamID)
	assert.Equal(t, "contact-1", first.ContactID)
	assert.Equal(t, empathyCriteria, first.Config.Criteria)

	_, err = svc.CreateReview(ctx, CreateReviewInput{
		CompanyID:    testCompany,
		TranscriptID: testTranscript,
		Type:         models.ReviewTypePerformance,
	})
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// Shutting down without workers fails what was still queued.
	require.NoError(t, svc.Shutdown(ctx))
	stored := h.waitForStatus(t, first.ID, models.StatusError)
	assert.Contains(t, stored.ErrorMessage, ErrProcessorClosed.Error())
}

func TestCreateReviewAdmission(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid type", func(t *testing.T) {
		h := newHarness(t)
		h.seedTenant(t, 10, empathyCriteria)
		svc := h.service(&mocks.MockScorer{}, nil, ProcessorOptions{})

		_, err := svc.CreateReview(ctx, CreateReviewInput{CompanyID: testCompany, TranscriptID: testTranscript, Type: "vibes"})
		assert.ErrorIs(t, err, ErrInvalidReviewType)
	})

	t.Run("missing configuration", func(t *testing.T) {
		h := newHarness(t)
		svc := h.service(&mocks.MockScorer{}, nil, ProcessorOptions{})

		_, err := svc.CreateReview(ctx, CreateReviewInput{CompanyID: testCompany, TranscriptID: testTranscript, Type: models.ReviewTypeBoth})
		assert.ErrorIs(t, err, ErrInactiveConfiguration)
	})

	t.Run("inactive configuration", func(t *testing.T) {
		h := newHarness(t)
		h.seedTenant(t, 10, empathyCriteria)
		require.NoError(t, h.tenants.SaveReviewConfig(ctx, models.ReviewConfig{CompanyID: testCompany, Active: false, Criteria: empathyCriteria}))
		svc := h.service(&mocks.MockScorer{}, nil, ProcessorOptions{})

		_, err := svc.CreateReview(ctx, CreateReviewInput{CompanyID: testCompany, TranscriptID: testTranscript, Type: models.ReviewTypeBoth})
		assert.ErrorIs(t, err, ErrInactiveConfiguration)
	})

	t.Run("unknown transcript", func(t *testing.T) {
		h := newHarness(t)
		h.seedTenant(t, 10, empathyCriteria)
		svc := h.service(&mocks.MockScorer{}, nil, ProcessorOptions{})

		_, err := svc.CreateReview(ctx, CreateReviewInput{CompanyID: testCompany, TranscriptID: "missing", Type: models.ReviewTypeBoth})
		assert.ErrorIs(t, err, ErrTranscriptNotFound)
	})

	t.Run("performance review without criteria", func(t *testing.T) {
		h := newHarness(t)
		h.seedTenant(t, 10, nil)
		svc := h.service(&mocks.MockScorer{}, nil, ProcessorOptions{})

		_, err := svc.CreateReview(ctx, CreateReviewInput{CompanyID: testCompany, TranscriptID: testTranscript, Type: models.ReviewTypePerformance})
		assert.ErrorIs(t, err, ErrMissingCriteria)
	})

	t.Run("sentiment review drops criteria", func(t *testing.T) {
		h := newHarness(t)
		h.seedTenant(t, 10, empathyCriteria)
		svc := h.service(&mocks.MockScorer{}, nil, ProcessorOptions{})

		r, err := svc.CreateReview(ctx, CreateReviewInput{CompanyID: testCompany, TranscriptID: testTranscript, Type: models.ReviewTypeSentiment})
		require.NoError(t, err)
		assert.Empty(t, r.Config.Criteria)
	})

	t.Run("request criteria override configuration", func(t *testing.T) {
		h := newHarness(t)
		h.seedTenant(t, 10, empathyCriteria)
		svc := h.service(&mocks.MockScorer{}, nil, ProcessorOptions{})
		custom := []models.CriterionWeight{{Name: "Compliance", Weight: 3}}

		r, err := svc.CreateReview(ctx, CreateReviewInput{CompanyID: testCompany, TranscriptID: testTranscript, Type: models.ReviewTypePerformance, Criteria: custom})
		require.NoError(t, err)
		assert.Equal(t, custom, r.Config.Criteria)
	})

	t.Run("no subscription", func(t *testing.T) {
		h := newHarness(t)
		h.seedTenant(t, 10, empathyCriteria)
		_, err := h.db.Exec(`DELETE FROM subscriptions`)
		require.NoError(t, err)
		svc := h.service(&mocks.MockScorer{}, nil, ProcessorOptions{})

		_, err = svc.CreateReview(ctx, CreateReviewInput{CompanyID: testCompany, TranscriptID: testTranscript, Type: models.ReviewTypeBoth})
		assert.ErrorIs(t, err, ErrNoSubscription)
	})
}

func TestProcessReview(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		h := newHarness(t)
		h.seedTenant(t, 10, empathyCriteria)
		events := &recordingHandler{}
		var got models.ScoreRequest
		scorer := &mocks.MockScorer{
			ScoreFunc: func(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error) {
				got = req
				return scoreAll(req), nil
			},
		}
		svc := h.service(scorer, events, ProcessorOptions{Workers: 2})
		svc.Start(ctx)
		defer svc.Shutdown(ctx)

		created, err := svc.CreateReview(ctx, CreateReviewInput{CompanyID: testCompany, TranscriptID: testTranscript, Type: models.ReviewTypeBoth})
		require.NoError(t, err)

		r := h.waitForStatus(t, created.ID, models.StatusReviewed)

		assert.Equal(t, models.ReviewTypeBoth, got.Type)
		assert.Contains(t, got.Transcript, "My order is late")
		assert.Equal(t, empathyCriteria, got.Criteria)
		assert.Equal(t, "gpt-4o-mini", got.Settings.Model)

		require.NotNil(t, r.OverallScore)
		assert.Equal(t, 8.0, *r.OverallScore)
		require.NotNil(t, r.SentimentScore)
		assert.Equal(t, 7.5, *r.SentimentScore)
		assert.Equal(t, models.SentimentPositive, r.SentimentLabel)
		assert.Equal(t, "Late order", r.Subject)
		require.Len(t, r.CriteriaScores, 2)
		assert.Equal(t, "Empathy", r.CriteriaScores[0].CriterionName)
		assert.Equal(t, "Resolution", r.CriteriaScores[1].CriterionName)
		assert.Empty(t, r.ErrorMessage)

		require.Eventually(t, func() bool {
			tr, err := h.tenants.GetTranscript(ctx, testCompany, testTranscript)
			return err == nil && tr.Reviewed
		}, time.Second, 10*time.Millisecond)

		require.Eventually(t, func() bool {
			return len(events.transitions()) == 2
		}, time.Second, 10*time.Millisecond)
		assert.Equal(t, []string{"NOT_STARTED->STARTED", "STARTED->REVIEWED"}, events.transitions())
	})

	t.Run("content error from scorer", func(t *testing.T) {
		h := newHarness(t)
		h.seedTenant(t, 10, empathyCriteria)
		scorer := &mocks.MockScorer{
			ScoreFunc: func(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error) {
				return models.ScoreResult{Error: "transcript too short to review"}, nil
			},
		}
		svc := h.service(scorer, nil, ProcessorOptions{Workers: 1})
		svc.Start(ctx)
		defer svc.Shutdown(ctx)

		created, err := svc.CreateReview(ctx, CreateReviewInput{CompanyID: testCompany, TranscriptID: testTranscript, Type: models.ReviewTypePerformance})
		require.NoError(t, err)

		r := h.waitForStatus(t, created.ID, models.StatusError)
		assert.Equal(t, "transcript too short to review", r.ErrorMessage)
		assert.Nil(t, r.OverallScore)

		tr, err := h.tenants.GetTranscript(ctx, testCompany, testTranscript)
		require.NoError(t, err)
		assert.False(t, tr.Reviewed)
	})

	failures := []struct {
		name    string
		score   func(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error)
		message string
	}{
		{
			name: "scorer transport failure",
			score: func(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error) {
				return models.ScoreResult{}, errors.New("connection reset by peer")
			},
			message: "connection reset by peer",
		},
		{
			name: "scorer panics",
			score: func(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error) {
				panic("nil map")
			},
			message: "panic",
		},
		{
			name: "criterion missing from result",
			score: func(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error) {
				return models.ScoreResult{
					OverallScore:   ptr(6),
					CriteriaScores: []models.CriterionScore{{CriterionName: "Empathy", Score: 6}},
				}, nil
			},
			message: `no score for criterion "Resolution"`,
		},
		{
			name: "overall score missing",
			score: func(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error) {
				return models.ScoreResult{}, nil
			},
			message: "missing overall score",
		},
	}

	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.seedTenant(t, 10, empathyCriteria)
			svc := h.service(&mocks.MockScorer{ScoreFunc: tt.score}, nil, ProcessorOptions{Workers: 1})
			svc.Start(ctx)
			defer svc.Shutdown(ctx)

			created, err := svc.CreateReview(ctx, CreateReviewInput{CompanyID: testCompany, TranscriptID: testTranscript, Type: models.ReviewTypePerformance})
			require.NoError(t, err)

			r := h.waitForStatus(t, created.ID, models.StatusError)
			assert.Contains(t, r.ErrorMessage, tt.message)
			assert.Nil(t, r.OverallScore)
			assert.Empty(t, r.CriteriaScores)
		})
	}

	t.Run("hung scorer is cut off by the process timeout", func(t *testing.T) {
		h := newHarness(t)
		h.seedTenant(t, 10, empathyCriteria)
		scorer := &mocks.MockScorer{
			ScoreFunc: func(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error) {
				<-ctx.Done()
				return models.ScoreResult{}, ctx.Err()
			},
		}
		svc := h.service(scorer, nil, ProcessorOptions{Workers: 1, ProcessTimeout: 50 * time.Millisecond})
		svc.Start(ctx)
		defer svc.Shutdown(ctx)

		created, err := svc.CreateReview(ctx, CreateReviewInput{CompanyID: testCompany, TranscriptID: testTranscript, Type: models.ReviewTypeSentiment})
		require.NoError(t, err)

		r := h.waitForStatus(t, created.ID, models.StatusError)
		assert.Contains(t, r.ErrorMessage, context.DeadlineExceeded.Error())
	})
}

func TestApplyResult(t *testing.T) {
	t.Run("clamps scores into range", func(t *testing.T) {
		r := &models.Review{
			Type:   models.ReviewTypeBoth,
			Config: models.ConfigSnapshot{Criteria: []models.CriterionWeight{{Name: "Empathy"}}},
		}
		err := applyResult(r, models.ScoreResult{
			OverallScore:   ptr(14),
			SentimentScore: ptr(-2),
			CriteriaScores: []models.CriterionScore{{CriterionName: " EMPATHY ", Score: 0}},
		})

		require.NoError(t, err)
		assert.Equal(t, 10.0, *r.OverallScore)
		assert.Equal(t, 0.0, *r.SentimentScore)
		assert.Equal(t, models.SentimentNegative, r.SentimentLabel)
		assert.Equal(t, []models.CriterionScore{{CriterionName: "Empathy", Score: 1}}, r.CriteriaScores)
	})

	t.Run("sentiment review carries no criteria", func(t *testing.T) {
		r := &models.Review{Type: models.ReviewTypeSentiment}
		err := applyResult(r, models.ScoreResult{
			OverallScore:   ptr(9),
			SentimentScore: ptr(5),
			SentimentLabel: "neutral",
			CriteriaScores: []models.CriterionScore{{CriterionName: "Empathy", Score: 9}},
		})

		require.NoError(t, err)
		assert.Nil(t, r.OverallScore)
		assert.Empty(t, r.CriteriaScores)
		assert.Equal(t, models.SentimentNeutral, r.SentimentLabel)
	})

	t.Run("label derived from score when missing", func(t *testing.T) {
		for score, want := range map[float64]models.SentimentLabel{
			2:   models.SentimentNegative,
			5.5: models.SentimentNeutral,
			8:   models.SentimentPositive,
		} {
			r := &models.Review{Type: models.ReviewTypeSentiment}
			require.NoError(t, applyResult(r, models.ScoreResult{SentimentScore: ptr(score), SentimentLabel: "mixed"}))
			assert.Equal(t, want, r.SentimentLabel, "score %v", score)
		}
	})
}

func TestRetryReview(t *testing.T) {
	ctx := context.Background()

	t.Run("reuses the frozen criteria", func(t *testing.T) {
		h := newHarness(t)
		h.seedTenant(t, 10, empathyCriteria)

		var (
			mu    sync.Mutex
			calls []models.ScoreRequest
		)
		scorer := &mocks.MockScorer{
			ScoreFunc: func(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error) {
				mu.Lock()
				calls = append(calls, req)
				n := len(calls)
				mu.Unlock()
				if n == 1 {
					return models.ScoreResult{}, errors.New("upstream 503")
				}
				return scoreAll(req), nil
			},
		}
		svc := h.service(scorer, nil, ProcessorOptions{Workers: 1})
		svc.Start(ctx)
		defer svc.Shutdown(ctx)

		created, err := svc.CreateReview(ctx, CreateReviewInput{CompanyID: testCompany, TranscriptID: testTranscript, Type: models.ReviewTypePerformance})
		require.NoError(t, err)
		h.waitForStatus(t, created.ID, models.StatusError)

		require.NoError(t, h.tenants.SaveReviewConfig(ctx, models.ReviewConfig{
			CompanyID: testCompany,
			Active:    true,
			Criteria:  []models.CriterionWeight{{Name: "Speed", Weight: 1}},
		}))

		retried, err := svc.RetryReview(ctx, testCompany, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, retried.ID)
		assert.Equal(t, models.StatusNotStarted, retried.Status)
		assert.Empty(t, retried.ErrorMessage)

		r := h.waitForStatus(t, created.ID, models.StatusReviewed)

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, calls, 2)
		assert.Equal(t, calls[0].Criteria, calls[1].Criteria)
		require.Len(t, r.CriteriaScores, 2)
		assert.Equal(t, "Empathy", r.CriteriaScores[0].CriterionName)
		assert.Equal(t, "Resolution", r.CriteriaScores[1].CriterionName)
	})

	t.Run("only from ERROR", func(t *testing.T) {
		h := newHarness(t)
		h.seedTenant(t, 10, empathyCriteria)
		h.insertReview(t, reviewFixture{id: "r-done", overall: ptr(8), createdAt: testNow})
		svc := h.service(&mocks.MockScorer{}, nil, ProcessorOptions{})

		_, err := svc.RetryReview(ctx, testCompany, "r-done")
		assert.ErrorIs(t, err, ErrInvalidTransition)

		_, err = svc.RetryReview(ctx, testCompany, "missing")
		assert.ErrorIs(t, err, ErrReviewNotFound)
	})

	t.Run("re-checks quota", func(t *testing.T) {
		h := newHarness(t)
		h.seedTenant(t, 1, empathyCriteria)
		h.insertReview(t, reviewFixture{id: "r-failed", status: models.StatusError, createdAt: testNow.Add(-time.Hour)})
		svc := h.service(&mocks.MockScorer{}, nil, ProcessorOptions{})

		queued, err := svc.CreateReview(ctx, CreateReviewInput{CompanyID: testCompany, TranscriptID: testTranscript, Type: models.ReviewTypePerformance})
		require.NoError(t, err)
		assert.Equal(t, models.StatusNotStarted, queued.Status)

		_, err = svc.RetryReview(ctx, testCompany, "r-failed")
		assert.ErrorIs(t, err, ErrQuotaExceeded)

		r, err := h.reviews.GetReview(ctx, testCompany, "r-failed")
		require.NoError(t, err)
		assert.Equal(t, models.StatusError, r.Status)
	})
}

func TestDeleteReviewDropsEmptyBucket(t *testing.T) {
	h := newHarness(t)
	h.seedTenant(t, 10, empathyCriteria)
	ctx := context.Background()

	h.insertReview(t, reviewFixture{
		id:        "r-1",
		overall:   ptr(8),
		criteria:  []models.CriterionScore{{CriterionName: "Empathy", Score: 8}},
		createdAt: testNow.Add(-time.Hour),
	})
	writer := NewAggregationWriter(h.reviews, h.metrics, h.clock, h.logger)
	require.NoError(t, writer.Recompute(ctx, testNow, models.CompanyScope(testCompany)))

	svc := h.service(&mocks.MockScorer{}, h.trigger(), ProcessorOptions{})
	require.NoError(t, svc.DeleteReview(ctx, testCompany, "r-1"))

	_, err := h.metrics.GetOverallMetric(ctx, testNow, models.CompanyScope(testCompany))
	assert.ErrorIs(t, err, models.ErrNotFound)
	rows, err := h.metrics.ListCriterionMetrics(ctx, testCompany, "", testNow, testNow)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = svc.GetReview(ctx, testCompany, "r-1")
	assert.ErrorIs(t, err, ErrReviewNotFound)
	assert.ErrorIs(t, svc.DeleteReview(ctx, testCompany, "r-1"), ErrReviewNotFound)
}

func TestCorrectReviewScores(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*harness, *ReviewService) {
		h := newHarness(t)
		h.seedTenant(t, 10, empathyCriteria)
		h.insertReview(t, reviewFixture{
			id:      "r-1",
			typ:     models.ReviewTypeBoth,
			overall: ptr(8), sentiment: ptr(6), label: models.SentimentNeutral,
			criteria: []models.CriterionScore{
				{CriterionName: "Empathy", Score: 8},
				{CriterionName: "Resolution", Score: 6},
			},
			createdAt: testNow.Add(-time.Hour),
		})
		return h, h.service(&mocks.MockScorer{}, h.trigger(), ProcessorOptions{})
	}

	t.Run("recomputes the day bucket", func(t *testing.T) {
		h, svc := setup(t)

		r, err := svc.CorrectReviewScores(ctx, testCompany, "r-1", ScoreCorrection{
			OverallScore:   ptr(5),
			CriteriaScores: []models.CriterionScore{{CriterionName: "empathy", Score: 4}},
		})
		require.NoError(t, err)
		assert.Equal(t, 5.0, *r.OverallScore)
		assert.Equal(t, 4, r.CriteriaScores[0].Score)

		overall, err := h.metrics.GetOverallMetric(ctx, testNow, models.CompanyScope(testCompany))
		require.NoError(t, err)
		assert.Equal(t, 5.0, *overall.AvgOverall)

		rows, err := h.metrics.ListCriterionMetrics(ctx, testCompany, "Empathy", testNow, testNow)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 4.0, rows[0].AvgScore)
	})

	t.Run("rejects out of range scores", func(t *testing.T) {
		_, svc := setup(t)

		_, err := svc.CorrectReviewScores(ctx, testCompany, "r-1", ScoreCorrection{OverallScore: ptr(11)})
		assert.ErrorIs(t, err, ErrInvalidScores)

		_, err = svc.CorrectReviewScores(ctx, testCompany, "r-1", ScoreCorrection{
			CriteriaScores: []models.CriterionScore{{CriterionName: "Empathy", Score: 0}},
		})
		assert.ErrorIs(t, err, ErrInvalidScores)

		_, err = svc.CorrectReviewScores(ctx, testCompany, "r-1", ScoreCorrection{
			CriteriaScores: []models.CriterionScore{{CriterionName: "Speed", Score: 5}},
		})
		assert.ErrorIs(t, err, ErrInvalidScores)

		_, err = svc.CorrectReviewScores(ctx, testCompany, "r-1", ScoreCorrection{SentimentLabel: "ecstatic"})
		assert.ErrorIs(t, err, ErrInvalidScores)
	})

	t.Run("only REVIEWED reviews", func(t *testing.T) {
		h, svc := setup(t)
		h.insertReview(t, reviewFixture{id: "r-err", status: models.StatusError, createdAt: testNow})

		_, err := svc.CorrectReviewScores(ctx, testCompany, "r-err", ScoreCorrection{OverallScore: ptr(5)})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestShutdownDrainsQueue(t *testing.T) {
	h := newHarness(t)
	h.seedTenant(t, 10, empathyCriteria)
	ctx := context.Background()

	scorer := &mocks.MockScorer{
		ScoreFunc: func(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error) {
			time.Sleep(20 * time.Millisecond)
			return scoreAll(req), nil
		},
	}
	svc := h.service(scorer, nil, ProcessorOptions{Workers: 2, QueueSize: 8})
	svc.Start(ctx)

	var ids []string
	for i := 0; i < 4; i++ {
		r, err := svc.CreateReview(ctx, CreateReviewInput{CompanyID: testCompany, TranscriptID: testTranscript, Type: models.ReviewTypePerformance})
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(shutdownCtx))

	for _, id := range ids {
		r, err := h.reviews.GetReview(ctx, testCompany, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusReviewed, r.Status, "review %s", id)
	}

	t.Run("create after shutdown fails the review", func(t *testing.T) {
		r, err := svc.CreateReview(ctx, CreateReviewInput{CompanyID: testCompany, TranscriptID: testTranscript, Type: models.ReviewTypePerformance})
		require.NoError(t, err)
		assert.Equal(t, models.StatusError, r.Status)
		assert.Contains(t, r.ErrorMessage, ErrProcessorClosed.Error())
	})

	t.Run("second shutdown is a no-op", func(t *testing.T) {
		assert.NoError(t, svc.Shutdown(ctx))
	})
}

func TestForceErrorSkipsTerminalReviews(t *testing.T) {
	h := newHarness(t)
	h.seedTenant(t, 10, empathyCriteria)
	h.insertReview(t, reviewFixture{id: "r-1", overall: ptr(9), createdAt: testNow})
	svc := h.service(&mocks.MockScorer{}, nil, ProcessorOptions{})
	svc.logger = zap.NewNop()

	assert.Nil(t, svc.forceError(job{companyID: testCompany, reviewID: "r-1"}, errors.New("late failure")))

	r, err := h.reviews.GetReview(context.Background(), testCompany, "r-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReviewed, r.Status)
}
