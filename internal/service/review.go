package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/godilite/qa-review-engine/internal/metrics"
	"github.com/godilite/qa-review-engine/internal/repository/models"
)

const (
	dbTimeout = 1 * time.Second

	// failTimeout bounds the write that forces a review to ERROR. It runs on a
	// fresh context so a cancelled job can still reach a terminal status.
	failTimeout = 5 * time.Second
)

var tracer = otel.Tracer("github.com/godilite/qa-review-engine/internal/service")

// ReviewDeps are the collaborators of ReviewService. Events and Clock are
// optional.
type ReviewDeps struct {
	Reviews       ReviewStore
	Counter       ReviewCounter
	Transcripts   TranscriptStore
	Subscriptions SubscriptionProvider
	Configs       ReviewConfigProvider
	Scorer        Scorer
	Events        ReviewEventHandler
	Clock         Clock
	Logger        *zap.Logger
}

type ProcessorOptions struct {
	Workers   int
	QueueSize int
	// ProcessTimeout caps one review's processing. Zero means no cap.
	ProcessTimeout time.Duration
}

// CreateReviewInput describes a review request. Criteria overrides the
// tenant's configured criteria when non-empty.
type CreateReviewInput struct {
	CompanyID    string
	TranscriptID string
	Type         models.ReviewType
	Criteria     []models.CriterionWeight
}

// ScoreCorrection carries manual score edits for a REVIEWED review. Nil and
// empty fields are left untouched.
type ScoreCorrection struct {
	OverallScore   *float64
	SentimentScore *float64
	SentimentLabel models.SentimentLabel
	CriteriaScores []models.CriterionScore
}

type job struct {
	companyID string
	reviewID  string
}

// ReviewService owns the review lifecycle: admission, the asynchronous
// NOT_STARTED -> STARTED -> REVIEWED|ERROR processing, retries, deletion and
// score corrections. Every persisted status change is reported to the event
// handler after the write.
type ReviewService struct {
	reviews       ReviewStore
	quota         *QuotaGate
	transcripts   TranscriptStore
	subscriptions SubscriptionProvider
	configs       ReviewConfigProvider
	scorer        Scorer
	events        ReviewEventHandler
	clock         Clock
	logger        *zap.Logger

	workers        int
	processTimeout time.Duration
	queue          chan job

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewReviewService creates a ReviewService. Workers are not running until
// Start is called.
func NewReviewService(deps ReviewDeps, opts ProcessorOptions) *ReviewService {
	if deps.Reviews == nil {
		panic("reviews must not be nil")
	}
	if deps.Counter == nil {
		panic("counter must not be nil")
	}
	if deps.Transcripts == nil || deps.Subscriptions == nil || deps.Configs == nil {
		panic("tenant stores must not be nil")
	}
	if deps.Scorer == nil {
		panic("scorer must not be nil")
	}
	logger := deps.Logger
	if logger == nil {
		l, _ := zap.NewProduction()
		logger = l
	}
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}

	return &ReviewService{
		reviews:        deps.Reviews,
		quota:          NewQuotaGate(deps.Counter),
		transcripts:    deps.Transcripts,
		subscriptions:  deps.Subscriptions,
		configs:        deps.Configs,
		scorer:         deps.Scorer,
		events:         deps.Events,
		clock:          clock,
		logger:         logger,
		workers:        opts.Workers,
		processTimeout: opts.ProcessTimeout,
		queue:          make(chan job, opts.QueueSize),
	}
}

// CreateReview admits a review and hands it to the workers. The returned
// review is the NOT_STARTED record as created; it is ERROR when the hand-off
// itself failed.
func (s *ReviewService) CreateReview(ctx context.Context, in CreateReviewInput) (*models.Review, error) {
	ctx, span := tracer.Start(ctx, "ReviewService.CreateReview",
		trace.WithAttributes(
			attribute.String("company.id", in.CompanyID),
			attribute.String("review.type", string(in.Type)),
		))
	defer span.End()

	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReviewType, in.Type)
	}

	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cfg, err := s.configs.GetReviewConfig(dbCtx, in.CompanyID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrInactiveConfiguration
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if !cfg.Active {
		return nil, ErrInactiveConfiguration
	}

	transcript, err := s.transcripts.GetTranscript(dbCtx, in.CompanyID, in.TranscriptID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrTranscriptNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	criteria := in.Criteria
	if len(criteria) == 0 {
		criteria = cfg.Criteria
	}
	if !in.Type.ScoresPerformance() {
		criteria = nil
	} else if len(criteria) == 0 {
		return nil, ErrMissingCriteria
	}

	if err := s.admit(ctx, "create", in.CompanyID); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	review := &models.Review{
		ID:                uuid.NewString(),
		CompanyID:         in.CompanyID,
		TranscriptID:      transcript.ID,
		Type:              in.Type,
		Status:            models.StatusNotStarted,
		Config:            models.ConfigSnapshot{Criteria: append([]models.CriterionWeight(nil), criteria...), Settings: cfg.Settings},
		EmployeeID:        transcript.EmployeeID,
		TeamID:            transcript.TeamID,
		ContactID:         transcript.ContactID,
		ExternalCompanyID: transcript.ExternalCompanyID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	writeCtx, cancelWrite := context.WithTimeout(ctx, dbTimeout)
	defer cancelWrite()
	if err := s.reviews.CreateReview(writeCtx, review); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create review")
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	span.SetAttributes(attribute.String("review.id", review.ID))

	s.logger.Info("review created",
		zap.String("review_id", review.ID),
		zap.String("company_id", review.CompanyID),
		zap.String("transcript_id", review.TranscriptID),
		zap.String("type", string(review.Type)))

	return s.enqueue(ctx, review), nil
}

// RetryReview re-admits an ERROR review. The review keeps its id and config
// snapshot; the previous result is cleared.
func (s *ReviewService) RetryReview(ctx context.Context, companyID, reviewID string) (*models.Review, error) {
	ctx, span := tracer.Start(ctx, "ReviewService.RetryReview",
		trace.WithAttributes(attribute.String("company.id", companyID), attribute.String("review.id", reviewID)))
	defer span.End()

	review, err := s.load(ctx, companyID, reviewID)
	if err != nil {
		return nil, err
	}
	if review.Status != models.StatusError {
		return nil, fmt.Errorf("%w: retry from %s", ErrInvalidTransition, review.Status)
	}

	if err := s.admit(ctx, "retry", companyID); err != nil {
		return nil, err
	}

	prev := review.Status
	review.ClearResult()
	review.Status = models.StatusNotStarted
	review.UpdatedAt = s.clock.Now().UTC()

	if err := s.update(ctx, review, prev); err != nil {
		return nil, err
	}
	s.publish(ctx, ReviewEvent{Kind: EventStatusChanged, Review: review.Clone(), PreviousStatus: prev, OccurredAt: review.UpdatedAt})

	s.logger.Info("review retried",
		zap.String("review_id", review.ID),
		zap.String("company_id", companyID))

	return s.enqueue(ctx, review), nil
}

// DeleteReview soft-deletes a review. A deleted REVIEWED review leaves the
// aggregates of its day.
func (s *ReviewService) DeleteReview(ctx context.Context, companyID, reviewID string) error {
	review, err := s.load(ctx, companyID, reviewID)
	if err != nil {
		return err
	}

	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	now := s.clock.Now().UTC()
	if err := s.reviews.SoftDeleteReview(dbCtx, companyID, reviewID, now); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return ErrReviewNotFound
		}
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	review.DeletedAt = &now
	review.UpdatedAt = now

	s.publish(ctx, ReviewEvent{Kind: EventDeleted, Review: review, PreviousStatus: review.Status, OccurredAt: now})
	s.logger.Info("review deleted", zap.String("review_id", reviewID), zap.String("company_id", companyID))
	return nil
}

// CorrectReviewScores applies manual score edits to a REVIEWED review.
func (s *ReviewService) CorrectReviewScores(ctx context.Context, companyID, reviewID string, c ScoreCorrection) (*models.Review, error) {
	review, err := s.load(ctx, companyID, reviewID)
	if err != nil {
		return nil, err
	}
	if review.Status != models.StatusReviewed {
		return nil, fmt.Errorf("%w: correct scores of %s review", ErrInvalidTransition, review.Status)
	}

	before := review.Clone()
	if err := applyCorrection(review, c); err != nil {
		return nil, err
	}
	review.UpdatedAt = s.clock.Now().UTC()

	if err := s.update(ctx, review, models.StatusReviewed); err != nil {
		return nil, err
	}
	s.publish(ctx, ReviewEvent{
		Kind:           EventScoresCorrected,
		Review:         review.Clone(),
		PreviousStatus: models.StatusReviewed,
		ScoresChanged:  scoresDiffer(before, review),
		OccurredAt:     review.UpdatedAt,
	})
	return review, nil
}

func (s *ReviewService) GetReview(ctx context.Context, companyID, reviewID string) (*models.Review, error) {
	return s.load(ctx, companyID, reviewID)
}

// admit enforces the tenant's subscription quota.
func (s *ReviewService) admit(ctx context.Context, operation, companyID string) error {
	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	sub, err := s.subscriptions.GetSubscription(dbCtx, companyID)
	if err != nil {
		metrics.ReviewAdmissions.WithLabelValues(operation, "rejected").Inc()
		if errors.Is(err, models.ErrNotFound) {
			return ErrNoSubscription
		}
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	ok, err := s.quota.IsReviewQuotaAvailable(ctx, companyID, sub)
	if err != nil {
		metrics.ReviewAdmissions.WithLabelValues(operation, "rejected").Inc()
		return err
	}
	if !ok {
		metrics.ReviewAdmissions.WithLabelValues(operation, "quota_exceeded").Inc()
		s.logger.Info("review quota exhausted",
			zap.String("company_id", companyID),
			zap.Int64("allowed_reviews", sub.AllowedReviews))
		return ErrQuotaExceeded
	}
	metrics.ReviewAdmissions.WithLabelValues(operation, "accepted").Inc()
	return nil
}

func (s *ReviewService) load(ctx context.Context, companyID, reviewID string) (*models.Review, error) {
	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	review, err := s.reviews.GetReview(dbCtx, companyID, reviewID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return review, nil
}

func (s *ReviewService) update(ctx context.Context, review *models.Review, expected models.ReviewStatus) error {
	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := s.reviews.UpdateReview(dbCtx, review, expected)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrNotFound):
		return ErrReviewNotFound
	case errors.Is(err, models.ErrStaleReview):
		return fmt.Errorf("%w: review is no longer %s", ErrInvalidTransition, expected)
	default:
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
}

func (s *ReviewService) publish(ctx context.Context, ev ReviewEvent) {
	if s.events == nil {
		return
	}
	s.events.HandleReviewEvent(ctx, ev)
}

// enqueue hands review to the workers. A review that cannot be queued is
// forced to ERROR so it never stays NOT_STARTED.
func (s *ReviewService) enqueue(ctx context.Context, review *models.Review) *models.Review {
	result := review.Clone()
	err := s.submit(ctx, job{companyID: review.CompanyID, reviewID: review.ID})
	if err == nil {
		return result
	}

	s.logger.Error("review hand-off failed",
		zap.String("review_id", review.ID),
		zap.String("company_id", review.CompanyID),
		zap.Error(err))

	if failed := s.forceError(job{companyID: review.CompanyID, reviewID: review.ID}, fmt.Errorf("queue review: %w", err)); failed != nil {
		return failed
	}
	return result
}

func applyCorrection(r *models.Review, c ScoreCorrection) error {
	if c.OverallScore != nil {
		if !r.Type.ScoresPerformance() {
			return fmt.Errorf("%w: %s review has no overall score", ErrInvalidScores, r.Type)
		}
		if *c.OverallScore < 0 || *c.OverallScore > 10 {
			return fmt.Errorf("%w: overall score %v outside 0..10", ErrInvalidScores, *c.OverallScore)
		}
		v := *c.OverallScore
		r.OverallScore = &v
	}

	if c.SentimentScore != nil || c.SentimentLabel != "" {
		if !r.Type.ScoresSentiment() {
			return fmt.Errorf("%w: %s review has no sentiment", ErrInvalidScores, r.Type)
		}
	}
	if c.SentimentScore != nil {
		if *c.SentimentScore < 0 || *c.SentimentScore > 10 {
			return fmt.Errorf("%w: sentiment score %v outside 0..10", ErrInvalidScores, *c.SentimentScore)
		}
		v := *c.SentimentScore
		r.SentimentScore = &v
	}
	if c.SentimentLabel != "" {
		if !c.SentimentLabel.Valid() {
			return fmt.Errorf("%w: sentiment label %q", ErrInvalidScores, c.SentimentLabel)
		}
		r.SentimentLabel = c.SentimentLabel
	}

	for _, edit := range c.CriteriaScores {
		if edit.Score < 1 || edit.Score > 10 {
			return fmt.Errorf("%w: criterion %q score %d outside 1..10", ErrInvalidScores, edit.CriterionName, edit.Score)
		}
		i := indexCriterion(r.CriteriaScores, edit.CriterionName)
		if i < 0 {
			return fmt.Errorf("%w: unknown criterion %q", ErrInvalidScores, edit.CriterionName)
		}
		r.CriteriaScores[i].Score = edit.Score
		if edit.Feedback != "" {
			r.CriteriaScores[i].Feedback = edit.Feedback
		}
	}
	return nil
}

func indexCriterion(scores []models.CriterionScore, name string) int {
	for i, cs := range scores {
		if sameCriterion(cs.CriterionName, name) {
			return i
		}
	}
	return -1
}

func scoresDiffer(a, b *models.Review) bool {
	if !equalFloatPtr(a.OverallScore, b.OverallScore) ||
		!equalFloatPtr(a.SentimentScore, b.SentimentScore) ||
		a.SentimentLabel != b.SentimentLabel ||
		len(a.CriteriaScores) != len(b.CriteriaScores) {
		return true
	}
	for i := range a.CriteriaScores {
		if a.CriteriaScores[i].Score != b.CriteriaScores[i].Score {
			return true
		}
	}
	return false
}

func equalFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
