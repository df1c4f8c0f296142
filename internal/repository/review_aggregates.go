package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/godilite/qa-review-engine/internal/repository/models"
)

var scopeColumns = map[models.ScopeKind]string{
	models.ScopeEmployee:        "r.employee_id",
	models.ScopeTeam:            "r.team_id",
	models.ScopeContact:         "r.contact_id",
	models.ScopeExternalCompany: "r.external_company_id",
}

// reviewedFilter is the base predicate of every aggregate: REVIEWED, not
// deleted, inside the window, narrowed by scope.
func reviewedFilter(scope models.Scope, w models.Window) (string, []any, error) {
	if err := scope.Validate(); err != nil {
		return "", nil, err
	}

	startOp, endOp := ">=", "<"
	if w.StartExclusive {
		startOp = ">"
	}
	if w.EndInclusive {
		endOp = "<="
	}

	where := `r.company_id = ? AND r.status = 'REVIEWED' AND r.deleted_at IS NULL` +
		` AND r.created_at ` + startOp + ` ? AND r.created_at ` + endOp + ` ?`
	args := []any{scope.CompanyID, formatTime(w.Start), formatTime(w.End)}

	if col, ok := scopeColumns[scope.Kind]; ok {
		where += ` AND ` + col + ` = ?`
		args = append(args, scope.EntityID)
	}
	return where, args, nil
}

// AggregateOverall averages overall scores over performance/both reviews and
// sentiment scores over sentiment/both reviews; the count spans all types.
func (s *ReviewRepository) AggregateOverall(ctx context.Context, scope models.Scope, w models.Window) (models.OverallAggregate, error) {
	where, args, err := reviewedFilter(scope, w)
	if err != nil {
		return models.OverallAggregate{}, err
	}

	query := `
		SELECT
			AVG(CASE WHEN r.type IN ('performance','both') THEN r.overall_score END) AS avg_overall,
			AVG(CASE WHEN r.type IN ('sentiment','both') THEN r.sentiment_score END) AS avg_sentiment,
			COUNT(r.id) AS review_count
		FROM reviews AS r
		WHERE ` + where

	var (
		avgOverall, avgSentiment sql.NullFloat64
		count                    int64
	)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&avgOverall, &avgSentiment, &count); err != nil {
		return models.OverallAggregate{}, fmt.Errorf("query AggregateOverall: %w", err)
	}

	return models.OverallAggregate{
		AvgOverall:   floatPtr(avgOverall),
		AvgSentiment: floatPtr(avgSentiment),
		ReviewCount:  count,
	}, nil
}

// AggregateCriteria unwinds criteria scores and groups them by criterion name.
// A non-empty criterion restricts the result to that name.
func (s *ReviewRepository) AggregateCriteria(ctx context.Context, scope models.Scope, w models.Window, criterion string) ([]models.CriterionAggregate, error) {
	where, args, err := reviewedFilter(scope, w)
	if err != nil {
		return nil, err
	}
	if criterion != "" {
		where += ` AND cs.criterion_name = ?`
		args = append(args, criterion)
	}

	query := `
		SELECT
			cs.criterion_name,
			AVG(CAST(cs.score AS REAL)) AS avg_score,
			COUNT(DISTINCT r.id) AS review_count
		FROM reviews AS r
		JOIN review_criteria_scores AS cs ON cs.review_id = r.id
		WHERE ` + where + `
		GROUP BY cs.criterion_name
		ORDER BY cs.criterion_name
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query AggregateCriteria: %w", err)
	}
	defer rows.Close()

	var results []models.CriterionAggregate
	for rows.Next() {
		var a models.CriterionAggregate
		if err := rows.Scan(&a.CriterionName, &a.AvgScore, &a.ReviewCount); err != nil {
			return nil, fmt.Errorf("scan AggregateCriteria row: %w", err)
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate AggregateCriteria: %w", err)
	}
	return results, nil
}

// AggregateTeams groups team-scoped reviews by team. The overall and
// sentiment averages are computed over their own review types and merged per
// team; the count covers every review of the team.
func (s *ReviewRepository) AggregateTeams(ctx context.Context, scope models.Scope, w models.Window) ([]models.TeamAggregate, error) {
	where, args, err := reviewedFilter(scope, w)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT
			r.team_id,
			AVG(CASE WHEN r.type IN ('performance','both') THEN r.overall_score END) AS avg_overall,
			AVG(CASE WHEN r.type IN ('sentiment','both') THEN r.sentiment_score END) AS avg_sentiment,
			COUNT(r.id) AS review_count
		FROM reviews AS r
		WHERE ` + where + ` AND r.team_id <> ''
		GROUP BY r.team_id
		ORDER BY r.team_id
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query AggregateTeams: %w", err)
	}
	defer rows.Close()

	var results []models.TeamAggregate
	for rows.Next() {
		var (
			a                        models.TeamAggregate
			avgOverall, avgSentiment sql.NullFloat64
		)
		if err := rows.Scan(&a.TeamID, &avgOverall, &avgSentiment, &a.ReviewCount); err != nil {
			return nil, fmt.Errorf("scan AggregateTeams row: %w", err)
		}
		a.AvgOverall = floatPtr(avgOverall)
		a.AvgSentiment = floatPtr(avgSentiment)
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate AggregateTeams: %w", err)
	}
	return results, nil
}

// AggregateSentimentLabels counts reviews per sentiment label.
func (s *ReviewRepository) AggregateSentimentLabels(ctx context.Context, scope models.Scope, w models.Window) (models.SentimentLabelCounts, error) {
	where, args, err := reviewedFilter(scope, w)
	if err != nil {
		return models.SentimentLabelCounts{}, err
	}

	query := `
		SELECT
			COALESCE(SUM(CASE WHEN r.sentiment_label = 'negative' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN r.sentiment_label = 'neutral' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN r.sentiment_label = 'positive' THEN 1 ELSE 0 END), 0)
		FROM reviews AS r
		WHERE ` + where

	var c models.SentimentLabelCounts
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&c.Negative, &c.Neutral, &c.Positive); err != nil {
		return models.SentimentLabelCounts{}, fmt.Errorf("query AggregateSentimentLabels: %w", err)
	}
	return c, nil
}
