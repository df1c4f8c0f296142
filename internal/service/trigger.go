package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/godilite/qa-review-engine/internal/repository/models"
)

const defaultTriggerTimeout = 30 * time.Second

// SeriesCacheKeyPrefix is the cache key prefix under which a tenant's series
// reads are stored. Aggregate writes drop everything below it.
func SeriesCacheKeyPrefix(companyID string) string {
	return "series:" + companyID + ":"
}

// AggregationTrigger recomputes the affected day buckets when a review enters
// or leaves REVIEWED. Failures are logged and never reach the review write
// that caused them.
type AggregationTrigger struct {
	writer  Recomputer
	cache   CacheInvalidator
	timeout time.Duration
	logger  *zap.Logger
}

// NewAggregationTrigger creates a trigger. cache may be nil.
func NewAggregationTrigger(writer Recomputer, cache CacheInvalidator, timeout time.Duration, logger *zap.Logger) *AggregationTrigger {
	if writer == nil {
		panic("writer must not be nil")
	}
	if timeout <= 0 {
		timeout = defaultTriggerTimeout
	}
	if logger == nil {
		l, _ := zap.NewProduction()
		logger = l
	}
	return &AggregationTrigger{writer: writer, cache: cache, timeout: timeout, logger: logger}
}

// HandleReviewEvent recomputes every scope the review contributes to for the
// day the review was created. Scopes are recomputed concurrently.
func (t *AggregationTrigger) HandleReviewEvent(ctx context.Context, ev ReviewEvent) {
	if !ev.AffectsAggregates() {
		return
	}

	// The triggering request may already be finished.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
	defer cancel()

	review := ev.Review
	day := models.StartOfDay(review.CreatedAt)
	log := t.logger.With(
		zap.String("review_id", review.ID),
		zap.String("company_id", review.CompanyID),
		zap.String("event", string(ev.Kind)),
		zap.Time("day", day))

	var g errgroup.Group
	for _, scope := range models.ScopesForReview(review) {
		g.Go(func() error {
			if err := t.writer.Recompute(ctx, day, scope); err != nil {
				log.Error("aggregate recompute after review change failed",
					zap.String("scope_kind", string(scope.Kind)),
					zap.String("scope_id", scope.EntityID),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if t.cache == nil {
		return
	}
	if _, err := t.cache.DeleteByPrefix(ctx, SeriesCacheKeyPrefix(review.CompanyID)); err != nil {
		log.Warn("failed to invalidate cached series", zap.Error(err))
	}
}
