package service

import (
	"time"

	"github.com/godilite/qa-review-engine/internal/repository/models"
)

type ReviewEventKind string

const (
	EventStatusChanged   ReviewEventKind = "status_changed"
	EventScoresCorrected ReviewEventKind = "scores_corrected"
	EventDeleted         ReviewEventKind = "deleted"
)

// ReviewEvent is emitted after a review write has been persisted.
// Review is the state after the write.
type ReviewEvent struct {
	Kind           ReviewEventKind
	Review         *models.Review
	PreviousStatus models.ReviewStatus
	ScoresChanged  bool
	OccurredAt     time.Time
}

// AffectsAggregates reports whether the event can change a day bucket:
// entering or leaving REVIEWED, deletion while REVIEWED, or a score change on
// a review that stays REVIEWED.
func (e ReviewEvent) AffectsAggregates() bool {
	if e.Review == nil {
		return false
	}
	was := e.PreviousStatus == models.StatusReviewed
	if e.Kind == EventDeleted {
		return was
	}
	is := e.Review.Status == models.StatusReviewed
	if was && is {
		return e.ScoresChanged
	}
	return was || is
}
