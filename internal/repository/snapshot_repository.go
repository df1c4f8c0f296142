package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/godilite/qa-review-engine/internal/repository/models"
)

// SnapshotRepository computes and stores the non-bucketed dashboard totals.
type SnapshotRepository struct {
	db *sql.DB
}

func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

const liveReviewed = `company_id = ? AND status = 'REVIEWED' AND deleted_at IS NULL`

// PerformanceTotals averages overall scores over all live performance/both reviews.
func (s *SnapshotRepository) PerformanceTotals(ctx context.Context, companyID string) (*float64, int64, error) {
	query := `
		SELECT AVG(overall_score), COUNT(id) FROM reviews
		WHERE ` + liveReviewed + ` AND type IN ('performance','both')`
	return s.averageAndCount(ctx, "PerformanceTotals", query, companyID)
}

// SentimentTotals averages sentiment scores over all live sentiment/both reviews.
func (s *SnapshotRepository) SentimentTotals(ctx context.Context, companyID string) (*float64, int64, error) {
	query := `
		SELECT AVG(sentiment_score), COUNT(id) FROM reviews
		WHERE ` + liveReviewed + ` AND type IN ('sentiment','both')`
	return s.averageAndCount(ctx, "SentimentTotals", query, companyID)
}

func (s *SnapshotRepository) TotalReviewed(ctx context.Context, companyID string) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(id) FROM reviews WHERE `+liveReviewed, companyID).Scan(&count); err != nil {
		return 0, fmt.Errorf("query TotalReviewed: %w", err)
	}
	return count, nil
}

func (s *SnapshotRepository) CriterionTotals(ctx context.Context, companyID string) ([]models.CriterionSnapshot, error) {
	const query = `
		SELECT cs.criterion_name, AVG(CAST(cs.score AS REAL)), COUNT(DISTINCT r.id)
		FROM reviews AS r
		JOIN review_criteria_scores AS cs ON cs.review_id = r.id
		WHERE r.company_id = ? AND r.status = 'REVIEWED' AND r.deleted_at IS NULL
		GROUP BY cs.criterion_name
		ORDER BY cs.criterion_name
	`
	rows, err := s.db.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("query CriterionTotals: %w", err)
	}
	defer rows.Close()

	var results []models.CriterionSnapshot
	for rows.Next() {
		var c models.CriterionSnapshot
		if err := rows.Scan(&c.CriterionName, &c.AvgScore, &c.ReviewCount); err != nil {
			return nil, fmt.Errorf("scan CriterionTotals row: %w", err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate CriterionTotals: %w", err)
	}
	return results, nil
}

// SaveDashboardSnapshot overwrites the tenant's snapshot and criterion rows.
func (s *SnapshotRepository) SaveDashboardSnapshot(ctx context.Context, snap models.DashboardSnapshot) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO dashboard_snapshots
				(company_id, avg_overall, avg_sentiment, performance_review_count, sentiment_review_count, total_review_count, computed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (company_id) DO UPDATE SET
				avg_overall              = excluded.avg_overall,
				avg_sentiment            = excluded.avg_sentiment,
				performance_review_count = excluded.performance_review_count,
				sentiment_review_count   = excluded.sentiment_review_count,
				total_review_count       = excluded.total_review_count,
				computed_at              = excluded.computed_at
		`, snap.CompanyID, nullFloat(snap.AvgOverall), nullFloat(snap.AvgSentiment),
			snap.PerformanceReviewCount, snap.SentimentReviewCount, snap.TotalReviewCount, formatTime(snap.ComputedAt))
		if err != nil {
			return fmt.Errorf("upsert dashboard snapshot: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM dashboard_criterion_snapshots WHERE company_id = ?`, snap.CompanyID); err != nil {
			return fmt.Errorf("clear criterion snapshots: %w", err)
		}
		for _, c := range snap.Criteria {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO dashboard_criterion_snapshots (company_id, criterion_name, avg_score, review_count, computed_at)
				VALUES (?, ?, ?, ?, ?)
			`, snap.CompanyID, c.CriterionName, c.AvgScore, c.ReviewCount, formatTime(snap.ComputedAt))
			if err != nil {
				return fmt.Errorf("insert criterion snapshot %q: %w", c.CriterionName, err)
			}
		}
		return nil
	})
}

func (s *SnapshotRepository) GetDashboardSnapshot(ctx context.Context, companyID string) (*models.DashboardSnapshot, error) {
	const query = `
		SELECT avg_overall, avg_sentiment, performance_review_count, sentiment_review_count, total_review_count, computed_at
		FROM dashboard_snapshots WHERE company_id = ?
	`
	var (
		avgOverall, avgSentiment sql.NullFloat64
		computedAt               string
		snap                     = models.DashboardSnapshot{CompanyID: companyID}
	)
	err := s.db.QueryRowContext(ctx, query, companyID).Scan(
		&avgOverall, &avgSentiment, &snap.PerformanceReviewCount, &snap.SentimentReviewCount, &snap.TotalReviewCount, &computedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("query GetDashboardSnapshot: %w", err)
	}
	snap.AvgOverall = floatPtr(avgOverall)
	snap.AvgSentiment = floatPtr(avgSentiment)
	if snap.ComputedAt, err = parseTime(computedAt); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT criterion_name, avg_score, review_count FROM dashboard_criterion_snapshots
		WHERE company_id = ? ORDER BY criterion_name
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("query criterion snapshots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c models.CriterionSnapshot
		if err := rows.Scan(&c.CriterionName, &c.AvgScore, &c.ReviewCount); err != nil {
			return nil, fmt.Errorf("scan criterion snapshot row: %w", err)
		}
		snap.Criteria = append(snap.Criteria, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate criterion snapshots: %w", err)
	}
	return &snap, nil
}

func (s *SnapshotRepository) averageAndCount(ctx context.Context, op, query, companyID string) (*float64, int64, error) {
	var (
		avg   sql.NullFloat64
		count int64
	)
	if err := s.db.QueryRowContext(ctx, query, companyID).Scan(&avg, &count); err != nil {
		return nil, 0, fmt.Errorf("query %s: %w", op, err)
	}
	return floatPtr(avg), count, nil
}
