package mocks

import (
	"context"
	"errors"
	"time"

	"github.com/godilite/qa-review-engine/internal/repository/models"
)

// MockScorer is a mock implementation of the Scorer interface.
type MockScorer struct {
	ScoreFunc func(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error)
}

func (m *MockScorer) Score(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error) {
	if m.ScoreFunc != nil {
		return m.ScoreFunc(ctx, req)
	}
	return models.ScoreResult{}, errors.New("ScoreFunc not implemented")
}

// MockRecomputer is a mock implementation of the Recomputer interface.
type MockRecomputer struct {
	RecomputeFunc func(ctx context.Context, day time.Time, scope models.Scope) error
}

func (m *MockRecomputer) Recompute(ctx context.Context, day time.Time, scope models.Scope) error {
	if m.RecomputeFunc != nil {
		return m.RecomputeFunc(ctx, day, scope)
	}
	return nil
}

// MockCacheInvalidator is a mock implementation of the CacheInvalidator interface.
type MockCacheInvalidator struct {
	DeleteByPrefixFunc func(ctx context.Context, prefix string) (int64, error)
}

func (m *MockCacheInvalidator) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	if m.DeleteByPrefixFunc != nil {
		return m.DeleteByPrefixFunc(ctx, prefix)
	}
	return 0, nil
}
