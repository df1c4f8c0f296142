package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// Timestamps are stored as fixed-width UTC TEXT (see timeLayout) so that
// string comparison in SQL orders them chronologically. Days are "2006-01-02".
var schema = []string{
	`CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		company_id TEXT PRIMARY KEY,
		current_period_start TEXT NOT NULL,
		current_period_end TEXT NOT NULL,
		allowed_reviews INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS review_configs (
		company_id TEXT PRIMARY KEY,
		active INTEGER NOT NULL DEFAULT 1,
		criteria TEXT NOT NULL DEFAULT '[]',
		settings TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		employee_id TEXT NOT NULL DEFAULT '',
		team_id TEXT NOT NULL DEFAULT '',
		contact_id TEXT NOT NULL DEFAULT '',
		external_company_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		reviewed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		transcript_id TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('performance','sentiment','both')),
		status TEXT NOT NULL CHECK (status IN ('NOT_STARTED','STARTED','REVIEWED','ERROR')),
		overall_score REAL,
		overall_feedback TEXT NOT NULL DEFAULT '',
		sentiment_score REAL,
		sentiment_label TEXT NOT NULL DEFAULT '',
		sentiment_analysis TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		config_snapshot TEXT NOT NULL DEFAULT '{}',
		employee_id TEXT NOT NULL DEFAULT '',
		team_id TEXT NOT NULL DEFAULT '',
		contact_id TEXT NOT NULL DEFAULT '',
		external_company_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_company_created ON reviews (company_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_company_status ON reviews (company_id, status)`,
	`CREATE TABLE IF NOT EXISTS review_criteria_scores (
		review_id TEXT NOT NULL REFERENCES reviews(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		criterion_name TEXT NOT NULL,
		score INTEGER NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		quote TEXT NOT NULL DEFAULT '',
		feedback TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (review_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS daily_overall_metrics (
		day TEXT NOT NULL,
		company_id TEXT NOT NULL,
		scope_kind TEXT NOT NULL,
		scope_id TEXT NOT NULL DEFAULT '',
		avg_overall REAL,
		avg_sentiment REAL,
		review_count INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (day, company_id, scope_kind, scope_id)
	)`,
	`CREATE TABLE IF NOT EXISTS daily_criterion_metrics (
		day TEXT NOT NULL,
		company_id TEXT NOT NULL,
		criterion_name TEXT NOT NULL,
		avg_score REAL NOT NULL,
		review_count INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (day, company_id, criterion_name)
	)`,
	`CREATE TABLE IF NOT EXISTS daily_team_metrics (
		day TEXT NOT NULL,
		company_id TEXT NOT NULL,
		team_id TEXT NOT NULL,
		avg_overall REAL,
		avg_sentiment REAL,
		review_count INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (day, company_id, team_id)
	)`,
	`CREATE TABLE IF NOT EXISTS daily_sentiment_label_metrics (
		day TEXT NOT NULL,
		company_id TEXT NOT NULL,
		negative INTEGER NOT NULL,
		neutral INTEGER NOT NULL,
		positive INTEGER NOT NULL,
		total INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (day, company_id)
	)`,
	`CREATE TABLE IF NOT EXISTS dashboard_snapshots (
		company_id TEXT PRIMARY KEY,
		avg_overall REAL,
		avg_sentiment REAL,
		performance_review_count INTEGER NOT NULL,
		sentiment_review_count INTEGER NOT NULL,
		total_review_count INTEGER NOT NULL,
		computed_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dashboard_criterion_snapshots (
		company_id TEXT NOT NULL,
		criterion_name TEXT NOT NULL,
		avg_score REAL NOT NULL,
		review_count INTEGER NOT NULL,
		computed_at TEXT NOT NULL,
		PRIMARY KEY (company_id, criterion_name)
	)`,
}

// Migrate creates the tables and indexes the engine needs. It is safe to run
// on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
