package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/godilite/qa-review-engine/internal/repository/models"
)

// MetricRepository stores the day-bucketed rollups. Every write replaces the
// bucket's value; nothing is incremented in place.
type MetricRepository struct {
	db *sql.DB
}

func NewMetricRepository(db *sql.DB) *MetricRepository {
	return &MetricRepository{db: db}
}

func (s *MetricRepository) UpsertOverallMetric(ctx context.Context, m models.DailyOverallMetric) error {
	const query = `
		INSERT INTO daily_overall_metrics
			(day, company_id, scope_kind, scope_id, avg_overall, avg_sentiment, review_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (day, company_id, scope_kind, scope_id) DO UPDATE SET
			avg_overall   = excluded.avg_overall,
			avg_sentiment = excluded.avg_sentiment,
			review_count  = excluded.review_count,
			updated_at    = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		formatDay(m.Day), m.Scope.CompanyID, string(m.Scope.Kind), m.Scope.EntityID,
		nullFloat(m.AvgOverall), nullFloat(m.AvgSentiment), m.ReviewCount, formatTime(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert UpsertOverallMetric: %w", err)
	}
	return nil
}

func (s *MetricRepository) DeleteOverallMetric(ctx context.Context, day time.Time, scope models.Scope) error {
	const query = `
		DELETE FROM daily_overall_metrics
		WHERE day = ? AND company_id = ? AND scope_kind = ? AND scope_id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, formatDay(day), scope.CompanyID, string(scope.Kind), scope.EntityID); err != nil {
		return fmt.Errorf("delete DeleteOverallMetric: %w", err)
	}
	return nil
}

func (s *MetricRepository) GetOverallMetric(ctx context.Context, day time.Time, scope models.Scope) (*models.DailyOverallMetric, error) {
	metrics, err := s.ListOverallMetrics(ctx, scope, day, day)
	if err != nil {
		return nil, err
	}
	if len(metrics) == 0 {
		return nil, models.ErrNotFound
	}
	return &metrics[0], nil
}

// ListOverallMetrics returns the scope's rows for days in [fromDay, toDay],
// ordered by day.
func (s *MetricRepository) ListOverallMetrics(ctx context.Context, scope models.Scope, fromDay, toDay time.Time) ([]models.DailyOverallMetric, error) {
	const query = `
		SELECT day, avg_overall, avg_sentiment, review_count, updated_at
		FROM daily_overall_metrics
		WHERE company_id = ? AND scope_kind = ? AND scope_id = ? AND day >= ? AND day <= ?
		ORDER BY day
	`
	rows, err := s.db.QueryContext(ctx, query,
		scope.CompanyID, string(scope.Kind), scope.EntityID, formatDay(fromDay), formatDay(toDay))
	if err != nil {
		return nil, fmt.Errorf("query ListOverallMetrics: %w", err)
	}
	defer rows.Close()

	var results []models.DailyOverallMetric
	for rows.Next() {
		var (
			day, updatedAt           string
			avgOverall, avgSentiment sql.NullFloat64
			m                        = models.DailyOverallMetric{Scope: scope}
		)
		if err := rows.Scan(&day, &avgOverall, &avgSentiment, &m.ReviewCount, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan ListOverallMetrics row: %w", err)
		}
		if m.Day, err = parseDay(day); err != nil {
			return nil, err
		}
		if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		m.AvgOverall = floatPtr(avgOverall)
		m.AvgSentiment = floatPtr(avgSentiment)
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ListOverallMetrics: %w", err)
	}
	return results, nil
}

// ReplaceCriterionMetrics swaps the tenant's criterion rows for day with
// metrics. An empty slice leaves the bucket empty.
func (s *MetricRepository) ReplaceCriterionMetrics(ctx context.Context, companyID string, day time.Time, metrics []models.DailyCriterionMetric) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM daily_criterion_metrics WHERE day = ? AND company_id = ?`,
			formatDay(day), companyID,
		); err != nil {
			return fmt.Errorf("delete ReplaceCriterionMetrics: %w", err)
		}

		for _, m := range metrics {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO daily_criterion_metrics (day, company_id, criterion_name, avg_score, review_count, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, formatDay(day), companyID, m.CriterionName, m.AvgScore, m.ReviewCount, formatTime(m.UpdatedAt))
			if err != nil {
				return fmt.Errorf("insert ReplaceCriterionMetrics %q: %w", m.CriterionName, err)
			}
		}
		return nil
	})
}

// ListCriterionMetrics returns one criterion's rows for days in
// [fromDay, toDay]. An empty criterion returns every criterion.
func (s *MetricRepository) ListCriterionMetrics(ctx context.Context, companyID, criterion string, fromDay, toDay time.Time) ([]models.DailyCriterionMetric, error) {
	query := `
		SELECT day, criterion_name, avg_score, review_count, updated_at
		FROM daily_criterion_metrics
		WHERE company_id = ? AND day >= ? AND day <= ?`
	args := []any{companyID, formatDay(fromDay), formatDay(toDay)}
	if criterion != "" {
		query += ` AND criterion_name = ?`
		args = append(args, criterion)
	}
	query += ` ORDER BY day, criterion_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ListCriterionMetrics: %w", err)
	}
	defer rows.Close()

	var results []models.DailyCriterionMetric
	for rows.Next() {
		var (
			day, updatedAt string
			m              = models.DailyCriterionMetric{CompanyID: companyID}
		)
		if err := rows.Scan(&day, &m.CriterionName, &m.AvgScore, &m.ReviewCount, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan ListCriterionMetrics row: %w", err)
		}
		if m.Day, err = parseDay(day); err != nil {
			return nil, err
		}
		if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ListCriterionMetrics: %w", err)
	}
	return results, nil
}

// ReplaceTeamMetrics swaps the tenant's team rows for day with metrics.
func (s *MetricRepository) ReplaceTeamMetrics(ctx context.Context, companyID string, day time.Time, metrics []models.DailyTeamMetric) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM daily_team_metrics WHERE day = ? AND company_id = ?`,
			formatDay(day), companyID,
		); err != nil {
			return fmt.Errorf("delete ReplaceTeamMetrics: %w", err)
		}

		for _, m := range metrics {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO daily_team_metrics (day, company_id, team_id, avg_overall, avg_sentiment, review_count, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, formatDay(day), companyID, m.TeamID, nullFloat(m.AvgOverall), nullFloat(m.AvgSentiment), m.ReviewCount, formatTime(m.UpdatedAt))
			if err != nil {
				return fmt.Errorf("insert ReplaceTeamMetrics %q: %w", m.TeamID, err)
			}
		}
		return nil
	})
}

func (s *MetricRepository) ListTeamMetrics(ctx context.Context, companyID string, day time.Time) ([]models.DailyTeamMetric, error) {
	const query = `
		SELECT team_id, avg_overall, avg_sentiment, review_count, updated_at
		FROM daily_team_metrics
		WHERE company_id = ? AND day = ?
		ORDER BY team_id
	`
	rows, err := s.db.QueryContext(ctx, query, companyID, formatDay(day))
	if err != nil {
		return nil, fmt.Errorf("query ListTeamMetrics: %w", err)
	}
	defer rows.Close()

	var results []models.DailyTeamMetric
	for rows.Next() {
		var (
			updatedAt                string
			avgOverall, avgSentiment sql.NullFloat64
			m                        = models.DailyTeamMetric{Day: models.StartOfDay(day), CompanyID: companyID}
		)
		if err := rows.Scan(&m.TeamID, &avgOverall, &avgSentiment, &m.ReviewCount, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan ListTeamMetrics row: %w", err)
		}
		if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		m.AvgOverall = floatPtr(avgOverall)
		m.AvgSentiment = floatPtr(avgSentiment)
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ListTeamMetrics: %w", err)
	}
	return results, nil
}

func (s *MetricRepository) UpsertSentimentLabelMetric(ctx context.Context, m models.DailySentimentLabelMetric) error {
	const query = `
		INSERT INTO daily_sentiment_label_metrics
			(day, company_id, negative, neutral, positive, total, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (day, company_id) DO UPDATE SET
			negative   = excluded.negative,
			neutral    = excluded.neutral,
			positive   = excluded.positive,
			total      = excluded.total,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		formatDay(m.Day), m.CompanyID, m.Negative, m.Neutral, m.Positive, m.Total, formatTime(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert UpsertSentimentLabelMetric: %w", err)
	}
	return nil
}

func (s *MetricRepository) DeleteSentimentLabelMetric(ctx context.Context, companyID string, day time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM daily_sentiment_label_metrics WHERE day = ? AND company_id = ?`,
		formatDay(day), companyID,
	); err != nil {
		return fmt.Errorf("delete DeleteSentimentLabelMetric: %w", err)
	}
	return nil
}

func (s *MetricRepository) GetSentimentLabelMetric(ctx context.Context, companyID string, day time.Time) (*models.DailySentimentLabelMetric, error) {
	const query = `
		SELECT negative, neutral, positive, total, updated_at
		FROM daily_sentiment_label_metrics
		WHERE company_id = ? AND day = ?
	`
	var (
		updatedAt string
		m         = models.DailySentimentLabelMetric{Day: models.StartOfDay(day), CompanyID: companyID}
	)
	err := s.db.QueryRowContext(ctx, query, companyID, formatDay(day)).
		Scan(&m.Negative, &m.Neutral, &m.Positive, &m.Total, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("query GetSentimentLabelMetric: %w", err)
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
