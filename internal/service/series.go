package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/godilite/qa-review-engine/internal/repository/models"
)

// SeriesPoint is one bucket of a time series. Overall series fill
// AvgOverall and AvgSentiment; criterion series fill CriterionName and
// AvgScore. RealTime marks the bucket computed from raw reviews.
type SeriesPoint struct {
	Date          time.Time `json:"date"`
	CriterionName string    `json:"criterionName,omitempty"`
	AvgOverall    *float64  `json:"avgOverall,omitempty"`
	AvgSentiment  *float64  `json:"avgSentiment,omitempty"`
	AvgScore      *float64  `json:"avgScore,omitempty"`
	ReviewCount   int64     `json:"reviewCount"`
	RealTime      bool      `json:"realTime"`
}

// cutover splits a series range. Precomputed rows serve days up to and
// including yesterday; when the range reaches past yesterday's start the rest
// comes from a real-time aggregation over (yesterday, to].
type cutover struct {
	yesterday time.Time
	hybrid    bool
}

func splitRange(now, to time.Time) cutover {
	yesterday := models.StartOfDay(now).Add(-models.Day)
	return cutover{yesterday: yesterday, hybrid: !to.Before(yesterday)}
}

func (c cutover) historicalEnd(to time.Time) time.Time {
	if c.hybrid {
		return c.yesterday
	}
	return models.StartOfDay(to)
}

func (c cutover) realTimeWindow(to time.Time) models.Window {
	return models.Window{Start: c.yesterday, End: to, StartExclusive: true, EndInclusive: true}
}

// HybridQueryService answers series reads by stitching precomputed day
// buckets with a real-time aggregation over data not yet bucketed.
type HybridQueryService struct {
	metrics MetricReader
	reviews ReviewAggregator
	clock   Clock
	logger  *zap.Logger
}

func NewHybridQueryService(metrics MetricReader, reviews ReviewAggregator, clock Clock, logger *zap.Logger) *HybridQueryService {
	if metrics == nil || reviews == nil {
		panic("storage must not be nil")
	}
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		l, _ := zap.NewProduction()
		logger = l
	}
	return &HybridQueryService{metrics: metrics, reviews: reviews, clock: clock, logger: logger}
}

// GetSeries returns the overall series of scope when filterName is empty and
// the filterName criterion's series otherwise.
func (s *HybridQueryService) GetSeries(ctx context.Context, scope models.Scope, filterName string, from, to time.Time) ([]SeriesPoint, error) {
	if filterName == "" {
		return s.GetOverallSeries(ctx, scope, from, to)
	}
	if scope.Kind != models.ScopeCompany {
		return nil, fmt.Errorf("%w: criterion series are tenant-wide", ErrInvalidScope)
	}
	return s.GetCriterionSeries(ctx, scope.CompanyID, filterName, from, to)
}

func (s *HybridQueryService) GetOverallSeries(ctx context.Context, scope models.Scope, from, to time.Time) ([]SeriesPoint, error) {
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidScope, scope)
	}
	if to.Before(from) {
		return nil, ErrInvalidRange
	}

	c := splitRange(s.clock.Now(), to)
	ctx, span := tracer.Start(ctx, "HybridQueryService.GetOverallSeries",
		trace.WithAttributes(
			attribute.String("company.id", scope.CompanyID),
			attribute.String("scope.kind", string(scope.Kind)),
			attribute.Bool("series.hybrid", c.hybrid),
		))
	defer span.End()

	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.metrics.ListOverallMetrics(dbCtx, scope, models.StartOfDay(from), c.historicalEnd(to))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	points := make([]SeriesPoint, 0, len(rows)+1)
	for _, m := range rows {
		points = append(points, SeriesPoint{
			Date:         m.Day,
			AvgOverall:   m.AvgOverall,
			AvgSentiment: m.AvgSentiment,
			ReviewCount:  m.ReviewCount,
		})
	}

	if c.hybrid {
		agg, err := s.reviews.AggregateOverall(dbCtx, scope, c.realTimeWindow(to))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		if agg.ReviewCount > 0 {
			points = append(points, SeriesPoint{
				Date:         c.yesterday,
				AvgOverall:   agg.AvgOverall,
				AvgSentiment: agg.AvgSentiment,
				ReviewCount:  agg.ReviewCount,
				RealTime:     true,
			})
		}
	}

	sortPoints(points)
	return points, nil
}

func (s *HybridQueryService) GetCriterionSeries(ctx context.Context, companyID, criterion string, from, to time.Time) ([]SeriesPoint, error) {
	scope := models.CompanyScope(companyID)
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidScope, scope)
	}
	if criterion == "" {
		return nil, fmt.Errorf("%w: empty criterion name", ErrInvalidScope)
	}
	if to.Before(from) {
		return nil, ErrInvalidRange
	}

	c := splitRange(s.clock.Now(), to)
	ctx, span := tracer.Start(ctx, "HybridQueryService.GetCriterionSeries",
		trace.WithAttributes(
			attribute.String("company.id", companyID),
			attribute.String("criterion", criterion),
			attribute.Bool("series.hybrid", c.hybrid),
		))
	defer span.End()

	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.metrics.ListCriterionMetrics(dbCtx, companyID, criterion, models.StartOfDay(from), c.historicalEnd(to))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	points := make([]SeriesPoint, 0, len(rows)+1)
	for _, m := range rows {
		avg := m.AvgScore
		points = append(points, SeriesPoint{
			Date:          m.Day,
			CriterionName: m.CriterionName,
			AvgScore:      &avg,
			ReviewCount:   m.ReviewCount,
		})
	}

	if c.hybrid {
		aggs, err := s.reviews.AggregateCriteria(dbCtx, scope, c.realTimeWindow(to), criterion)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		for _, a := range aggs {
			if a.ReviewCount == 0 {
				continue
			}
			avg := a.AvgScore
			points = append(points, SeriesPoint{
				Date:          c.yesterday,
				CriterionName: a.CriterionName,
				AvgScore:      &avg,
				ReviewCount:   a.ReviewCount,
				RealTime:      true,
			})
		}
	}

	sortPoints(points)
	return points, nil
}

// sortPoints orders by date; within a date the precomputed bucket comes
// before the real-time one.
func sortPoints(points []SeriesPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		if !points[i].Date.Equal(points[j].Date) {
			return points[i].Date.Before(points[j].Date)
		}
		return !points[i].RealTime && points[j].RealTime
	})
}
