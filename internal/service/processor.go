package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/godilite/qa-review-engine/internal/metrics"
	"github.com/godilite/qa-review-engine/internal/repository/models"
)

// Start launches the processing workers. Jobs run on a context detached from
// ctx's cancellation; Shutdown decides when in-flight work is abandoned.
func (s *ReviewService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true

	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.work(base, i)
	}
	s.logger.Info("review workers started", zap.Int("workers", s.workers), zap.Int("queue_size", cap(s.queue)))
}

// Shutdown stops accepting jobs and waits for the queue to drain. When ctx
// expires first, in-flight scoring is cancelled; those reviews end in ERROR.
func (s *ReviewService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	started := s.started
	s.mu.Unlock()

	if !started {
		// Nothing will drain what was queued.
		for j := range s.queue {
			metrics.ReviewQueueDepth.Dec()
			s.forceError(j, ErrProcessorClosed)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("review workers drained")
		return nil
	case <-ctx.Done():
		s.logger.Warn("review drain deadline reached, cancelling in-flight reviews")
		s.cancel()
		<-done
		return ctx.Err()
	}
}

func (s *ReviewService) submit(ctx context.Context, j job) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrProcessorClosed
	}

	select {
	case s.queue <- j:
		metrics.ReviewQueueDepth.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ReviewService) work(ctx context.Context, id int) {
	defer s.wg.Done()
	for j := range s.queue {
		metrics.ReviewQueueDepth.Dec()
		s.process(ctx, j)
	}
	s.logger.Debug("review worker stopped", zap.Int("worker", id))
}

// process drives one review to a terminal status. Any error or panic after
// the review was claimed forces it to ERROR.
func (s *ReviewService) process(ctx context.Context, j job) {
	ctx, span := tracer.Start(ctx, "ReviewService.process",
		trace.WithAttributes(attribute.String("company.id", j.companyID), attribute.String("review.id", j.reviewID)))
	defer span.End()

	if s.processTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.processTimeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic while processing review: %v", rec)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			s.forceError(j, err)
		}
	}()

	if err := s.run(ctx, j); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "process review")
		s.forceError(j, err)
	}
}

func (s *ReviewService) run(ctx context.Context, j job) error {
	review, err := s.load(ctx, j.companyID, j.reviewID)
	if err != nil {
		if errors.Is(err, ErrReviewNotFound) {
			s.logger.Info("queued review no longer exists", zap.String("review_id", j.reviewID))
			return nil
		}
		return err
	}
	if review.Status != models.StatusNotStarted {
		s.logger.Info("queued review already claimed",
			zap.String("review_id", review.ID),
			zap.String("status", string(review.Status)))
		return nil
	}

	review.Status = models.StatusStarted
	review.UpdatedAt = s.clock.Now().UTC()
	if err := s.update(ctx, review, models.StatusNotStarted); err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrReviewNotFound) {
			s.logger.Info("queued review claimed elsewhere", zap.String("review_id", review.ID), zap.Error(err))
			return nil
		}
		return err
	}
	s.publish(ctx, ReviewEvent{Kind: EventStatusChanged, Review: review.Clone(), PreviousStatus: models.StatusNotStarted, OccurredAt: review.UpdatedAt})

	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	transcript, err := s.transcripts.GetTranscript(dbCtx, review.CompanyID, review.TranscriptID)
	cancel()
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return ErrTranscriptNotFound
		}
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	started := time.Now()
	result, err := s.scorer.Score(ctx, models.ScoreRequest{
		Type:       review.Type,
		Transcript: transcript.Content,
		Criteria:   review.Config.Criteria,
		Settings:   review.Config.Settings,
	})
	metrics.ScoringDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		return fmt.Errorf("score review: %w", err)
	}

	if result.Error != "" {
		return s.finish(ctx, review, models.StatusError, result.Error)
	}
	if err := applyResult(review, result); err != nil {
		return err
	}
	if err := s.finish(ctx, review, models.StatusReviewed, ""); err != nil {
		return err
	}

	markCtx, cancelMark := context.WithTimeout(ctx, dbTimeout)
	defer cancelMark()
	if err := s.transcripts.MarkTranscriptReviewed(markCtx, review.CompanyID, review.TranscriptID); err != nil {
		s.logger.Warn("failed to mark transcript reviewed",
			zap.String("transcript_id", review.TranscriptID),
			zap.String("review_id", review.ID),
			zap.Error(err))
	}
	return nil
}

// finish persists a terminal status reached from STARTED.
func (s *ReviewService) finish(ctx context.Context, review *models.Review, status models.ReviewStatus, message string) error {
	if status == models.StatusError {
		review.ClearResult()
	}
	review.Status = status
	review.ErrorMessage = message
	review.UpdatedAt = s.clock.Now().UTC()

	if err := s.update(ctx, review, models.StatusStarted); err != nil {
		return err
	}
	s.publish(ctx, ReviewEvent{Kind: EventStatusChanged, Review: review.Clone(), PreviousStatus: models.StatusStarted, OccurredAt: review.UpdatedAt})

	outcome := "reviewed"
	if status == models.StatusError {
		outcome = "error"
		s.logger.Warn("review rejected by scorer",
			zap.String("review_id", review.ID),
			zap.String("reason", message))
	} else {
		s.logger.Info("review completed",
			zap.String("review_id", review.ID),
			zap.String("company_id", review.CompanyID))
	}
	metrics.ReviewsProcessed.WithLabelValues(outcome).Inc()
	return nil
}

// forceError moves a not yet terminal review to ERROR with cause as its
// message. It returns the stored review, or nil when there was nothing to do.
func (s *ReviewService) forceError(j job, cause error) *models.Review {
	ctx, cancel := context.WithTimeout(context.Background(), failTimeout)
	defer cancel()

	log := s.logger.With(zap.String("review_id", j.reviewID), zap.String("company_id", j.companyID))

	review, err := s.reviews.GetReview(ctx, j.companyID, j.reviewID)
	if err != nil {
		log.Error("cannot load review to record failure", zap.NamedError("cause", cause), zap.Error(err))
		return nil
	}
	if review.Status != models.StatusNotStarted && review.Status != models.StatusStarted {
		log.Error("review processing failed after terminal status",
			zap.String("status", string(review.Status)), zap.Error(cause))
		return nil
	}

	prev := review.Status
	review.ClearResult()
	review.Status = models.StatusError
	review.ErrorMessage = cause.Error()
	review.UpdatedAt = s.clock.Now().UTC()

	if err := s.reviews.UpdateReview(ctx, review, prev); err != nil {
		log.Error("failed to record review failure", zap.NamedError("cause", cause), zap.Error(err))
		return nil
	}
	s.publish(ctx, ReviewEvent{Kind: EventStatusChanged, Review: review.Clone(), PreviousStatus: prev, OccurredAt: review.UpdatedAt})

	metrics.ReviewsProcessed.WithLabelValues("error").Inc()
	log.Error("review processing failed", zap.Error(cause))
	return review
}

// applyResult copies a scoring result onto r. Criteria scores are aligned to
// the review's config snapshot so retries produce the same shape.
func applyResult(r *models.Review, res models.ScoreResult) error {
	r.ClearResult()
	r.Subject = res.Subject

	if r.Type.ScoresPerformance() {
		if res.OverallScore == nil {
			return fmt.Errorf("%w: missing overall score", ErrInvalidScoreResult)
		}
		overall := clamp(*res.OverallScore, 0, 10)
		r.OverallScore = &overall
		r.OverallFeedback = res.OverallFeedback

		scores, err := alignCriteria(r.Config.Criteria, res.CriteriaScores)
		if err != nil {
			return err
		}
		r.CriteriaScores = scores
	}

	if r.Type.ScoresSentiment() {
		if res.SentimentScore == nil {
			return fmt.Errorf("%w: missing sentiment score", ErrInvalidScoreResult)
		}
		sentiment := clamp(*res.SentimentScore, 0, 10)
		r.SentimentScore = &sentiment
		r.SentimentAnalysis = res.SentimentAnalysis

		label := models.SentimentLabel(strings.ToLower(strings.TrimSpace(string(res.SentimentLabel))))
		if !label.Valid() {
			label = labelForScore(sentiment)
		}
		r.SentimentLabel = label
	}
	return nil
}

func alignCriteria(criteria []models.CriterionWeight, scores []models.CriterionScore) ([]models.CriterionScore, error) {
	aligned := make([]models.CriterionScore, 0, len(criteria))
	for _, c := range criteria {
		i := indexCriterion(scores, c.Name)
		if i < 0 {
			return nil, fmt.Errorf("%w: no score for criterion %q", ErrInvalidScoreResult, c.Name)
		}
		cs := scores[i]
		cs.CriterionName = c.Name
		cs.Score = int(clamp(float64(cs.Score), 1, 10))
		aligned = append(aligned, cs)
	}
	return aligned, nil
}

func sameCriterion(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func labelForScore(score float64) models.SentimentLabel {
	switch {
	case score < 4:
		return models.SentimentNegative
	case score < 7:
		return models.SentimentNeutral
	default:
		return models.SentimentPositive
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
