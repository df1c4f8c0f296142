package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/godilite/qa-review-engine/internal/repository"
	"github.com/godilite/qa-review-engine/internal/repository/models"
)

const company = "acme"

var baseTime = time.Date(2025, 10, 18, 10, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Every :memory: connection is its own database.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	require.NoError(t, repository.Migrate(context.Background(), db))
	t.Cleanup(func() { db.Close() })
	return db
}

type seed struct {
	id        string
	company   string
	typ       models.ReviewType
	status    models.ReviewStatus
	overall   *float64
	sentiment *float64
	label     models.SentimentLabel
	criteria  []models.CriterionScore
	teamID    string
	contactID string
	offset    time.Duration
	deleted   bool
}

func seedReviews(t *testing.T, repo *repository.ReviewRepository, seeds ...seed) {
	t.Helper()
	ctx := context.Background()

	for _, s := range seeds {
		if s.company == "" {
			s.company = company
		}
		if s.typ == "" {
			s.typ = models.ReviewTypePerformance
		}
		if s.status == "" {
			s.status = models.StatusReviewed
		}
		created := baseTime.Add(s.offset)
		r := &models.Review{
			ID:             s.id,
			CompanyID:      s.company,
			TranscriptID:   "tr-" + s.id,
			Type:           s.typ,
			Status:         s.status,
			OverallScore:   s.overall,
			SentimentScore: s.sentiment,
			SentimentLabel: s.label,
			CriteriaScores: s.criteria,
			TeamID:         s.teamID,
			ContactID:      s.contactID,
			CreatedAt:      created,
			UpdatedAt:      created,
		}
		require.NoError(t, repo.CreateReview(ctx, r))
		if s.deleted {
			require.NoError(t, repo.SoftDeleteReview(ctx, r.CompanyID, r.ID, created.Add(time.Minute)))
		}
	}
}

func ptr(v float64) *float64 { return &v }
