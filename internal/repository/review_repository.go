package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/godilite/qa-review-engine/internal/repository/models"
)

const reviewColumns = `
	id, company_id, transcript_id, type, status,
	overall_score, overall_feedback, sentiment_score, sentiment_label, sentiment_analysis,
	subject, error_message, config_snapshot,
	employee_id, team_id, contact_id, external_company_id,
	created_at, updated_at, deleted_at`

type ReviewRepository struct {
	db *sql.DB
}

func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// CreateReview inserts a review and its criteria scores in one transaction.
func (s *ReviewRepository) CreateReview(ctx context.Context, r *models.Review) error {
	snapshot, err := json.Marshal(r.Config)
	if err != nil {
		return fmt.Errorf("encode config snapshot: %w", err)
	}

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		const query = `
			INSERT INTO reviews (` + reviewColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := tx.ExecContext(ctx, query,
			r.ID, r.CompanyID, r.TranscriptID, string(r.Type), string(r.Status),
			nullFloat(r.OverallScore), r.OverallFeedback, nullFloat(r.SentimentScore), string(r.SentimentLabel), r.SentimentAnalysis,
			r.Subject, r.ErrorMessage, string(snapshot),
			r.EmployeeID, r.TeamID, r.ContactID, r.ExternalCompanyID,
			formatTime(r.CreatedAt), formatTime(r.UpdatedAt), nullTime(r.DeletedAt),
		)
		if err != nil {
			return fmt.Errorf("insert CreateReview: %w", err)
		}
		return insertCriteriaScores(ctx, tx, r.ID, r.CriteriaScores)
	})
}

// GetReview loads a non-deleted review of the given tenant.
func (s *ReviewRepository) GetReview(ctx context.Context, companyID, id string) (*models.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = ? AND company_id = ? AND deleted_at IS NULL`

	r, err := scanReview(s.db.QueryRowContext(ctx, query, id, companyID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("query GetReview: %w", err)
	}

	scores, err := s.criteriaScores(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.CriteriaScores = scores
	return r, nil
}

// UpdateReview persists every mutable field of r, provided the stored status
// still equals expected. It returns models.ErrStaleReview when the status has
// moved and models.ErrNotFound when the review is gone.
func (s *ReviewRepository) UpdateReview(ctx context.Context, r *models.Review, expected models.ReviewStatus) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		const query = `
			UPDATE reviews SET
				status = ?, overall_score = ?, overall_feedback = ?,
				sentiment_score = ?, sentiment_label = ?, sentiment_analysis = ?,
				subject = ?, error_message = ?, updated_at = ?
			WHERE id = ? AND company_id = ? AND status = ? AND deleted_at IS NULL
		`
		res, err := tx.ExecContext(ctx, query,
			string(r.Status), nullFloat(r.OverallScore), r.OverallFeedback,
			nullFloat(r.SentimentScore), string(r.SentimentLabel), r.SentimentAnalysis,
			r.Subject, r.ErrorMessage, formatTime(r.UpdatedAt),
			r.ID, r.CompanyID, string(expected),
		)
		if err != nil {
			return fmt.Errorf("update UpdateReview: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows UpdateReview: %w", err)
		}
		if n == 0 {
			return missingOrStale(ctx, tx, r.CompanyID, r.ID)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM review_criteria_scores WHERE review_id = ?`, r.ID); err != nil {
			return fmt.Errorf("clear criteria scores: %w", err)
		}
		return insertCriteriaScores(ctx, tx, r.ID, r.CriteriaScores)
	})
}

// SoftDeleteReview stamps deleted_at on a live review.
func (s *ReviewRepository) SoftDeleteReview(ctx context.Context, companyID, id string, at time.Time) error {
	const query = `
		UPDATE reviews SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND company_id = ? AND deleted_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, formatTime(at), formatTime(at), id, companyID)
	if err != nil {
		return fmt.Errorf("update SoftDeleteReview: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows SoftDeleteReview: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CountReviewsInPeriod counts a tenant's reviews in the given statuses created
// within [start, end]. Soft-deleted reviews still count: they consumed quota.
func (s *ReviewRepository) CountReviewsInPeriod(ctx context.Context, companyID string, statuses []models.ReviewStatus, start, end time.Time) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	query := `
		SELECT COUNT(*) FROM reviews
		WHERE company_id = ? AND status IN (` + placeholders + `)
		  AND created_at >= ? AND created_at <= ?
	`
	args := make([]any, 0, len(statuses)+3)
	args = append(args, companyID)
	for _, st := range statuses {
		args = append(args, string(st))
	}
	args = append(args, formatTime(start), formatTime(end))

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("query CountReviewsInPeriod: %w", err)
	}
	return count, nil
}

func (s *ReviewRepository) criteriaScores(ctx context.Context, reviewID string) ([]models.CriterionScore, error) {
	const query = `
		SELECT criterion_name, score, comment, quote, feedback
		FROM review_criteria_scores
		WHERE review_id = ?
		ORDER BY position
	`
	rows, err := s.db.QueryContext(ctx, query, reviewID)
	if err != nil {
		return nil, fmt.Errorf("query criteriaScores: %w", err)
	}
	defer rows.Close()

	var scores []models.CriterionScore
	for rows.Next() {
		var cs models.CriterionScore
		if err := rows.Scan(&cs.CriterionName, &cs.Score, &cs.Comment, &cs.Quote, &cs.Feedback); err != nil {
			return nil, fmt.Errorf("scan criteriaScores row: %w", err)
		}
		scores = append(scores, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate criteriaScores: %w", err)
	}
	return scores, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReview(row rowScanner) (*models.Review, error) {
	var (
		r                    models.Review
		typ, status, label   string
		overall, sentiment   sql.NullFloat64
		snapshot             string
		createdAt, updatedAt string
		deletedAt            sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.CompanyID, &r.TranscriptID, &typ, &status,
		&overall, &r.OverallFeedback, &sentiment, &label, &r.SentimentAnalysis,
		&r.Subject, &r.ErrorMessage, &snapshot,
		&r.EmployeeID, &r.TeamID, &r.ContactID, &r.ExternalCompanyID,
		&createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Type = models.ReviewType(typ)
	r.Status = models.ReviewStatus(status)
	r.SentimentLabel = models.SentimentLabel(label)
	r.OverallScore = floatPtr(overall)
	r.SentimentScore = floatPtr(sentiment)

	if err := json.Unmarshal([]byte(snapshot), &r.Config); err != nil {
		return nil, fmt.Errorf("decode config snapshot: %w", err)
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t, err := parseTime(deletedAt.String)
		if err != nil {
			return nil, err
		}
		r.DeletedAt = &t
	}
	return &r, nil
}

func insertCriteriaScores(ctx context.Context, tx *sql.Tx, reviewID string, scores []models.CriterionScore) error {
	if len(scores) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO review_criteria_scores (review_id, position, criterion_name, score, comment, quote, feedback)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare criteria scores: %w", err)
	}
	defer stmt.Close()

	for i, cs := range scores {
		if _, err := stmt.ExecContext(ctx, reviewID, i, cs.CriterionName, cs.Score, cs.Comment, cs.Quote, cs.Feedback); err != nil {
			return fmt.Errorf("insert criteria score %q: %w", cs.CriterionName, err)
		}
	}
	return nil
}

func missingOrStale(ctx context.Context, tx *sql.Tx, companyID, id string) error {
	var status string
	err := tx.QueryRowContext(ctx,
		`SELECT status FROM reviews WHERE id = ? AND company_id = ? AND deleted_at IS NULL`,
		id, companyID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query review status: %w", err)
	}
	return models.ErrStaleReview
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// withTx runs fn inside a transaction, rolling back on error.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
