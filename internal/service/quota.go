package service

import (
	"context"
	"fmt"

	"github.com/godilite/qa-review-engine/internal/repository/models"
)

// quotaStatuses are the statuses that hold a claim on quota. NOT_STARTED
// counts so that a queued review reserves its slot.
var quotaStatuses = []models.ReviewStatus{
	models.StatusNotStarted,
	models.StatusStarted,
	models.StatusReviewed,
}

// QuotaGate answers whether a tenant may start one more review in its
// current billing period. The check is not transactional with the write that
// follows it: two concurrent callers can both pass.
type QuotaGate struct {
	counter ReviewCounter
}

func NewQuotaGate(counter ReviewCounter) *QuotaGate {
	if counter == nil {
		panic("counter must not be nil")
	}
	return &QuotaGate{counter: counter}
}

// IsReviewQuotaAvailable reports whether the tenant's reviews created within
// [CurrentPeriodStart, CurrentPeriodEnd] are fewer than AllowedReviews.
func (g *QuotaGate) IsReviewQuotaAvailable(ctx context.Context, companyID string, sub *models.Subscription) (bool, error) {
	if sub == nil {
		return false, ErrNoSubscription
	}

	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	count, err := g.counter.CountReviewsInPeriod(dbCtx, companyID, quotaStatuses, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return count < sub.AllowedReviews, nil
}
