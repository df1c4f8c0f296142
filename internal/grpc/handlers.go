package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/godilite/qa-review-engine/internal/metrics"
	"github.com/godilite/qa-review-engine/internal/repository/models"
	"github.com/godilite/qa-review-engine/internal/service"
)

const (
	defaultCacheDuration = time.Minute
	defaultGRPCTimeout   = 10 * time.Second
	refreshTimeout       = 5 * time.Minute
)

type GRPCHandlers struct {
	reviews    ReviewService
	series     SeriesService
	dashboards DashboardRefresher
	cache      Cacher
	logger     *zap.Logger
	sfGroup    singleflight.Group
	cacheTTL   time.Duration
}

var _ ReviewEngineServer = (*GRPCHandlers)(nil)

// NewGRPCHandlers initializes the gRPC handlers. cache may be nil, in which
// case series reads always hit storage.
func NewGRPCHandlers(reviews ReviewService, series SeriesService, dashboards DashboardRefresher, cache Cacher, logger *zap.Logger, ttl time.Duration) *GRPCHandlers {
	if reviews == nil || series == nil || dashboards == nil {
		panic("nil service provided to NewGRPCHandlers")
	}
	if ttl <= 0 {
		ttl = defaultCacheDuration
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandlers{
		reviews:    reviews,
		series:     series,
		dashboards: dashboards,
		cache:      cache,
		logger:     logger.Named("grpc-handler"),
		cacheTTL:   ttl,
	}
}

func (s *GRPCHandlers) handleError(ctx context.Context, op string, err error) error {
	switch ctx.Err() {
	case context.Canceled:
		s.logger.Warn("request canceled", zap.String("op", op))
		return status.Error(codes.Canceled, "request canceled")
	case context.DeadlineExceeded:
		s.logger.Warn("request timeout", zap.String("op", op))
		return status.Error(codes.DeadlineExceeded, "request timed out")
	}

	switch {
	case errors.Is(err, service.ErrQuotaExceeded):
		s.logger.Info("quota exceeded", zap.String("op", op))
		return status.Error(codes.ResourceExhausted, "review quota exceeded for the current period")
	case errors.Is(err, service.ErrReviewNotFound),
		errors.Is(err, service.ErrTranscriptNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrInactiveConfiguration),
		errors.Is(err, service.ErrNoSubscription),
		errors.Is(err, service.ErrMissingCriteria),
		errors.Is(err, service.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, service.ErrInvalidReviewType),
		errors.Is(err, service.ErrInvalidScope),
		errors.Is(err, service.ErrInvalidRange),
		errors.Is(err, service.ErrInvalidScores):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrProcessorClosed):
		s.logger.Warn("processor closed", zap.String("op", op))
		return status.Error(codes.Unavailable, "review processing is shutting down")
	case errors.Is(err, service.ErrStorageFailure):
		s.logger.Error("storage failure", zap.String("op", op), zap.Error(err))
		return status.Error(codes.Internal, "database error")
	default:
		s.logger.Error("unexpected error", zap.String("op", op), zap.Error(err))
		return status.Errorf(codes.Internal, "%s failed: %v", op, err)
	}
}

func (s *GRPCHandlers) reviewResponse(op string, r *models.Review) (*structpb.Struct, error) {
	out, err := encode(toReviewPayload(r))
	if err != nil {
		s.logger.Error("encode failed", zap.String("op", op), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

func (s *GRPCHandlers) CreateReview(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req createReviewRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.CompanyID == "" || req.TranscriptID == "" {
		return nil, status.Error(codes.InvalidArgument, "companyId and transcriptId are required")
	}

	ctx, cancel := context.WithTimeout(ctx, defaultGRPCTimeout)
	defer cancel()

	review, err := s.reviews.CreateReview(ctx, service.CreateReviewInput{
		CompanyID:    req.CompanyID,
		TranscriptID: req.TranscriptID,
		Type:         models.ReviewType(req.Type),
		Criteria:     req.Criteria,
	})
	if err != nil {
		return nil, s.handleError(ctx, "CreateReview", err)
	}
	return s.reviewResponse("CreateReview", review)
}

func (s *GRPCHandlers) RetryReview(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req reviewRef
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultGRPCTimeout)
	defer cancel()

	review, err := s.reviews.RetryReview(ctx, req.CompanyID, req.ReviewID)
	if err != nil {
		return nil, s.handleError(ctx, "RetryReview", err)
	}
	return s.reviewResponse("RetryReview", review)
}

func (s *GRPCHandlers) DeleteReview(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req reviewRef
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultGRPCTimeout)
	defer cancel()

	if err := s.reviews.DeleteReview(ctx, req.CompanyID, req.ReviewID); err != nil {
		return nil, s.handleError(ctx, "DeleteReview", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"reviewId": structpb.NewStringValue(req.ReviewID),
		"deleted":  structpb.NewBoolValue(true),
	}}, nil
}

func (s *GRPCHandlers) CorrectReviewScores(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req correctScoresRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := (reviewRef{CompanyID: req.CompanyID, ReviewID: req.ReviewID}).validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultGRPCTimeout)
	defer cancel()

	review, err := s.reviews.CorrectReviewScores(ctx, req.CompanyID, req.ReviewID, service.ScoreCorrection{
		OverallScore:   req.OverallScore,
		SentimentScore: req.SentimentScore,
		SentimentLabel: models.SentimentLabel(req.SentimentLabel),
		CriteriaScores: req.CriteriaScores,
	})
	if err != nil {
		return nil, s.handleError(ctx, "CorrectReviewScores", err)
	}
	return s.reviewResponse("CorrectReviewScores", review)
}

func (s *GRPCHandlers) GetReview(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req reviewRef
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultGRPCTimeout)
	defer cancel()

	review, err := s.reviews.GetReview(ctx, req.CompanyID, req.ReviewID)
	if err != nil {
		return nil, s.handleError(ctx, "GetReview", err)
	}
	return s.reviewResponse("GetReview", review)
}

func (s *GRPCHandlers) GetSeries(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req seriesRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	scope, err := req.scope()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultGRPCTimeout)
	defer cancel()

	kind := "overall"
	if req.Criterion != "" {
		kind = "criterion"
	}

	points, hit, err := FindAndCache(ctx, s.cache, &s.sfGroup, seriesKey(scope, req), s.cacheTTL, s.logger, func(fetchCtx context.Context) ([]service.SeriesPoint, error) {
		return s.series.GetSeries(fetchCtx, scope, req.Criterion, req.From, req.To)
	})
	if err != nil {
		return nil, s.handleError(ctx, "GetSeries", err)
	}
	metrics.SeriesRequests.WithLabelValues(kind, cacheLabel(s.cache, hit)).Inc()

	if points == nil {
		points = []service.SeriesPoint{}
	}
	out, err := encode(seriesPayload{Points: points})
	if err != nil {
		s.logger.Error("encode failed", zap.String("op", "GetSeries"), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

// RefreshDashboards rebuilds one tenant's dashboard snapshot, or every active
// tenant's when companyId is empty.
func (s *GRPCHandlers) RefreshDashboards(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req refreshRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	if req.CompanyID != "" {
		started := time.Now()
		if err := s.dashboards.RefreshTenant(ctx, req.CompanyID); err != nil {
			return nil, s.handleError(ctx, "RefreshDashboards", err)
		}
		return encode(refreshPayload{Tenants: 1, Refreshed: 1, DurationMs: time.Since(started).Milliseconds()})
	}

	summary, err := s.dashboards.RefreshAll(ctx)
	if err != nil {
		return nil, s.handleError(ctx, "RefreshDashboards", err)
	}
	return encode(refreshPayload{
		Tenants:    summary.Tenants,
		Refreshed:  summary.Refreshed,
		Failed:     summary.Failed,
		DurationMs: summary.Duration.Milliseconds(),
	})
}

func (r seriesRequest) scope() (models.Scope, error) {
	if r.CompanyID == "" {
		return models.Scope{}, status.Error(codes.InvalidArgument, "companyId is required")
	}
	if r.From.IsZero() || r.To.IsZero() {
		return models.Scope{}, status.Error(codes.InvalidArgument, "from and to are required")
	}
	if r.To.Before(r.From) {
		return models.Scope{}, status.Error(codes.InvalidArgument, "to must not be before from")
	}

	kind := models.ScopeKind(r.Scope)
	if kind == "" {
		kind = models.ScopeCompany
	}
	scope := models.Scope{CompanyID: r.CompanyID, Kind: kind, EntityID: r.EntityID}
	if err := scope.Validate(); err != nil {
		return models.Scope{}, status.Error(codes.InvalidArgument, err.Error())
	}
	return scope, nil
}

// seriesKey lives under the tenant's series prefix so aggregate writes can
// drop it. Bounds are keyed to the minute.
func seriesKey(scope models.Scope, r seriesRequest) string {
	return fmt.Sprintf("%s%s:%s:%s:%s:%s",
		service.SeriesCacheKeyPrefix(scope.CompanyID),
		scope.Kind, scope.EntityID, r.Criterion,
		r.From.UTC().Truncate(time.Minute).Format(time.RFC3339),
		r.To.UTC().Truncate(time.Minute).Format(time.RFC3339))
}

func cacheLabel(c Cacher, hit bool) string {
	switch {
	case c == nil:
		return "disabled"
	case hit:
		return "hit"
	default:
		return "miss"
	}
}
