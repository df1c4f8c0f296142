package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/godilite/qa-review-engine/internal/metrics"
	"github.com/godilite/qa-review-engine/internal/repository/models"
)

const (
	kindOverall   = "overall"
	kindCriterion = "criterion"
	kindTeam      = "team"
	kindSentiment = "sentiment_label"
)

type recomputeStep struct {
	kind string
	run  func() error
}

// AggregationWriter rebuilds day buckets from the live review set. Each kind
// is recomputed from scratch and written as a full replacement, so running
// Recompute twice leaves the same rows.
type AggregationWriter struct {
	reviews ReviewAggregator
	metrics MetricStore
	clock   Clock
	logger  *zap.Logger
}

func NewAggregationWriter(reviews ReviewAggregator, store MetricStore, clock Clock, logger *zap.Logger) *AggregationWriter {
	if reviews == nil || store == nil {
		panic("storage must not be nil")
	}
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		l, _ := zap.NewProduction()
		logger = l
	}
	return &AggregationWriter{reviews: reviews, metrics: store, clock: clock, logger: logger}
}

// Recompute rebuilds the bucket of day for scope. The overall kind is written
// for scope itself; the criterion, team and sentiment label kinds are
// tenant-wide and are only written for company scope. A failing kind does not
// stop the others; their errors are joined.
func (w *AggregationWriter) Recompute(ctx context.Context, day time.Time, scope models.Scope) error {
	if err := scope.Validate(); err != nil {
		return fmt.Errorf("%w: %+v", ErrInvalidScope, scope)
	}

	day = models.StartOfDay(day)
	ctx, span := tracer.Start(ctx, "AggregationWriter.Recompute",
		trace.WithAttributes(
			attribute.String("company.id", scope.CompanyID),
			attribute.String("scope.kind", string(scope.Kind)),
			attribute.String("day", day.Format(time.DateOnly)),
		))
	defer span.End()

	win := models.DayWindow(day)
	now := w.clock.Now().UTC()

	steps := []recomputeStep{
		{kindOverall, func() error { return w.recomputeOverall(ctx, day, win, scope, now) }},
	}
	if scope.Kind == models.ScopeCompany {
		steps = append(steps,
			recomputeStep{kindCriterion, func() error { return w.recomputeCriteria(ctx, day, win, scope, now) }},
			recomputeStep{kindTeam, func() error { return w.recomputeTeams(ctx, day, win, scope, now) }},
			recomputeStep{kindSentiment, func() error { return w.recomputeSentimentLabels(ctx, day, win, scope, now) }},
		)
	}

	var errs []error
	for _, step := range steps {
		if err := step.run(); err != nil {
			metrics.AggregationRecomputes.WithLabelValues(step.kind, "error").Inc()
			w.logger.Error("aggregate recompute failed",
				zap.String("kind", step.kind),
				zap.String("company_id", scope.CompanyID),
				zap.String("scope_kind", string(scope.Kind)),
				zap.String("scope_id", scope.EntityID),
				zap.Time("day", day),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", step.kind, err))
			continue
		}
		metrics.AggregationRecomputes.WithLabelValues(step.kind, "ok").Inc()
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	return nil
}

func (w *AggregationWriter) recomputeOverall(ctx context.Context, day time.Time, win models.Window, scope models.Scope, now time.Time) error {
	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	agg, err := w.reviews.AggregateOverall(dbCtx, scope, win)
	if err != nil {
		return err
	}
	if agg.ReviewCount == 0 {
		return w.metrics.DeleteOverallMetric(dbCtx, day, scope)
	}
	return w.metrics.UpsertOverallMetric(dbCtx, models.DailyOverallMetric{
		Day:              day,
		Scope:            scope,
		OverallAggregate: agg,
		UpdatedAt:        now,
	})
}

func (w *AggregationWriter) recomputeCriteria(ctx context.Context, day time.Time, win models.Window, scope models.Scope, now time.Time) error {
	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	aggs, err := w.reviews.AggregateCriteria(dbCtx, scope, win, "")
	if err != nil {
		return err
	}
	rows := make([]models.DailyCriterionMetric, 0, len(aggs))
	for _, a := range aggs {
		rows = append(rows, models.DailyCriterionMetric{
			Day:                day,
			CompanyID:          scope.CompanyID,
			CriterionAggregate: a,
			UpdatedAt:          now,
		})
	}
	return w.metrics.ReplaceCriterionMetrics(dbCtx, scope.CompanyID, day, rows)
}

func (w *AggregationWriter) recomputeTeams(ctx context.Context, day time.Time, win models.Window, scope models.Scope, now time.Time) error {
	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	aggs, err := w.reviews.AggregateTeams(dbCtx, scope, win)
	if err != nil {
		return err
	}
	rows := make([]models.DailyTeamMetric, 0, len(aggs))
	for _, a := range aggs {
		rows = append(rows, models.DailyTeamMetric{
			Day:           day,
			CompanyID:     scope.CompanyID,
			TeamAggregate: a,
			UpdatedAt:     now,
		})
	}
	return w.metrics.ReplaceTeamMetrics(dbCtx, scope.CompanyID, day, rows)
}

func (w *AggregationWriter) recomputeSentimentLabels(ctx context.Context, day time.Time, win models.Window, scope models.Scope, now time.Time) error {
	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	counts, err := w.reviews.AggregateSentimentLabels(dbCtx, scope, win)
	if err != nil {
		return err
	}
	total := counts.Total()
	if total == 0 {
		return w.metrics.DeleteSentimentLabelMetric(dbCtx, scope.CompanyID, day)
	}
	return w.metrics.UpsertSentimentLabelMetric(dbCtx, models.DailySentimentLabelMetric{
		Day:                  day,
		CompanyID:            scope.CompanyID,
		SentimentLabelCounts: counts,
		Total:                total,
		UpdatedAt:            now,
	})
}
