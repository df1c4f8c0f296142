package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/godilite/qa-review-engine/internal/metrics"
	"github.com/godilite/qa-review-engine/internal/repository/models"
)

const defaultSnapshotConcurrency = 5

// RefreshSummary reports one RefreshAll pass.
type RefreshSummary struct {
	Tenants   int
	Refreshed int
	Failed    int
	Duration  time.Duration
}

// DashboardSnapshotJob rebuilds every active tenant's dashboard totals from
// the raw reviews. It never reads the day buckets.
type DashboardSnapshotJob struct {
	tenants     TenantLister
	store       SnapshotStore
	clock       Clock
	logger      *zap.Logger
	concurrency int

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func NewDashboardSnapshotJob(tenants TenantLister, store SnapshotStore, concurrency int, clock Clock, logger *zap.Logger) *DashboardSnapshotJob {
	if tenants == nil || store == nil {
		panic("storage must not be nil")
	}
	if concurrency <= 0 {
		concurrency = defaultSnapshotConcurrency
	}
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		l, _ := zap.NewProduction()
		logger = l
	}
	return &DashboardSnapshotJob{
		tenants:     tenants,
		store:       store,
		clock:       clock,
		logger:      logger,
		concurrency: concurrency,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// RefreshAll recomputes every active tenant's snapshot with at most
// concurrency tenants in flight. A failing tenant is logged and counted; it
// does not stop the pass. Only failing to list tenants is returned.
func (j *DashboardSnapshotJob) RefreshAll(ctx context.Context) (RefreshSummary, error) {
	started := time.Now()
	ctx, span := tracer.Start(ctx, "DashboardSnapshotJob.RefreshAll")
	defer span.End()

	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	ids, err := j.tenants.ListActiveCompanyIDs(dbCtx)
	cancel()
	if err != nil {
		span.RecordError(err)
		return RefreshSummary{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	var (
		refreshed, failed atomic.Int64
		g                 errgroup.Group
	)
	g.SetLimit(j.concurrency)

	for _, id := range ids {
		g.Go(func() error {
			if err := j.refreshTenant(ctx, id); err != nil {
				failed.Add(1)
				metrics.SnapshotTenants.WithLabelValues("error").Inc()
				j.logger.Error("dashboard snapshot failed", zap.String("company_id", id), zap.Error(err))
				return nil
			}
			refreshed.Add(1)
			metrics.SnapshotTenants.WithLabelValues("ok").Inc()
			return nil
		})
	}
	_ = g.Wait()

	summary := RefreshSummary{
		Tenants:   len(ids),
		Refreshed: int(refreshed.Load()),
		Failed:    int(failed.Load()),
		Duration:  time.Since(started),
	}
	metrics.SnapshotRefreshDuration.Observe(summary.Duration.Seconds())
	span.SetAttributes(
		attribute.Int("snapshot.tenants", summary.Tenants),
		attribute.Int("snapshot.failed", summary.Failed),
	)

	j.logger.Info("dashboard snapshots refreshed",
		zap.Int("tenants", summary.Tenants),
		zap.Int("refreshed", summary.Refreshed),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration))

	return summary, nil
}

// RefreshTenant recomputes one tenant's snapshot.
func (j *DashboardSnapshotJob) RefreshTenant(ctx context.Context, companyID string) error {
	if companyID == "" {
		return ErrInvalidScope
	}
	return j.refreshTenant(ctx, companyID)
}

func (j *DashboardSnapshotJob) refreshTenant(ctx context.Context, companyID string) error {
	ctx, span := tracer.Start(ctx, "DashboardSnapshotJob.refreshTenant",
		trace.WithAttributes(attribute.String("company.id", companyID)))
	defer span.End()

	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	avgOverall, perfCount, err := j.store.PerformanceTotals(dbCtx, companyID)
	if err != nil {
		return fmt.Errorf("performance totals: %w", err)
	}
	avgSentiment, sentCount, err := j.store.SentimentTotals(dbCtx, companyID)
	if err != nil {
		return fmt.Errorf("sentiment totals: %w", err)
	}
	criteria, err := j.store.CriterionTotals(dbCtx, companyID)
	if err != nil {
		return fmt.Errorf("criterion totals: %w", err)
	}
	total, err := j.store.TotalReviewed(dbCtx, companyID)
	if err != nil {
		return fmt.Errorf("total reviewed: %w", err)
	}

	snap := models.DashboardSnapshot{
		CompanyID:              companyID,
		AvgOverall:             avgOverall,
		AvgSentiment:           avgSentiment,
		PerformanceReviewCount: perfCount,
		SentimentReviewCount:   sentCount,
		TotalReviewCount:       total,
		Criteria:               criteria,
		ComputedAt:             j.clock.Now().UTC(),
	}
	if err := j.store.SaveDashboardSnapshot(dbCtx, snap); err != nil {
		span.RecordError(err)
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Start runs RefreshAll once and then every interval until ctx is cancelled
// or Stop is called.
func (j *DashboardSnapshotJob) Start(ctx context.Context, interval time.Duration) error {
	defer close(j.doneCh)
	if interval <= 0 {
		return fmt.Errorf("snapshot interval must be positive, got %s", interval)
	}

	j.logger.Info("starting dashboard snapshot scheduler",
		zap.Duration("interval", interval),
		zap.Int("concurrency", j.concurrency))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := j.RefreshAll(ctx); err != nil {
		j.logger.Error("initial snapshot refresh failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("dashboard snapshot scheduler stopping due to context cancellation")
			return nil
		case <-j.stopCh:
			j.logger.Info("dashboard snapshot scheduler stopping")
			return nil
		case <-ticker.C:
			if _, err := j.RefreshAll(ctx); err != nil {
				j.logger.Error("snapshot refresh failed", zap.Error(err))
			}
		}
	}
}

// Stop ends a running Start loop and waits for it to return. It must not be
// called unless Start was.
func (j *DashboardSnapshotJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
	<-j.doneCh
}
