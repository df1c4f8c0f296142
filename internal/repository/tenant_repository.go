package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/godilite/qa-review-engine/internal/repository/models"
)

// TenantRepository reads the tenant-owned records the engine consumes:
// companies, subscriptions, transcripts and live review configuration.
type TenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (s *TenantRepository) ListActiveCompanyIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM companies WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query ListActiveCompanyIDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ListActiveCompanyIDs row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ListActiveCompanyIDs: %w", err)
	}
	return ids, nil
}

func (s *TenantRepository) SaveCompany(ctx context.Context, c models.Company) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (id, name, active) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, active = excluded.active
	`, c.ID, c.Name, boolInt(c.Active))
	if err != nil {
		return fmt.Errorf("upsert SaveCompany: %w", err)
	}
	return nil
}

func (s *TenantRepository) GetSubscription(ctx context.Context, companyID string) (*models.Subscription, error) {
	var (
		start, end string
		sub        = models.Subscription{CompanyID: companyID}
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT current_period_start, current_period_end, allowed_reviews
		FROM subscriptions WHERE company_id = ?
	`, companyID).Scan(&start, &end, &sub.AllowedReviews)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("query GetSubscription: %w", err)
	}
	if sub.CurrentPeriodStart, err = parseTime(start); err != nil {
		return nil, err
	}
	if sub.CurrentPeriodEnd, err = parseTime(end); err != nil {
		return nil, err
	}
	return &sub, nil
}

// SaveSubscription mirrors the billing provider's view of a subscription.
func (s *TenantRepository) SaveSubscription(ctx context.Context, sub models.Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (company_id, current_period_start, current_period_end, allowed_reviews)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (company_id) DO UPDATE SET
			current_period_start = excluded.current_period_start,
			current_period_end   = excluded.current_period_end,
			allowed_reviews      = excluded.allowed_reviews
	`, sub.CompanyID, formatTime(sub.CurrentPeriodStart), formatTime(sub.CurrentPeriodEnd), sub.AllowedReviews)
	if err != nil {
		return fmt.Errorf("upsert SaveSubscription: %w", err)
	}
	return nil
}

func (s *TenantRepository) GetReviewConfig(ctx context.Context, companyID string) (*models.ReviewConfig, error) {
	var (
		active             int
		criteria, settings string
		cfg                = models.ReviewConfig{CompanyID: companyID}
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT active, criteria, settings FROM review_configs WHERE company_id = ?
	`, companyID).Scan(&active, &criteria, &settings)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("query GetReviewConfig: %w", err)
	}
	cfg.Active = active == 1
	if err := json.Unmarshal([]byte(criteria), &cfg.Criteria); err != nil {
		return nil, fmt.Errorf("decode review criteria: %w", err)
	}
	if err := json.Unmarshal([]byte(settings), &cfg.Settings); err != nil {
		return nil, fmt.Errorf("decode model settings: %w", err)
	}
	return &cfg, nil
}

func (s *TenantRepository) SaveReviewConfig(ctx context.Context, cfg models.ReviewConfig) error {
	criteria, err := json.Marshal(cfg.Criteria)
	if err != nil {
		return fmt.Errorf("encode review criteria: %w", err)
	}
	settings, err := json.Marshal(cfg.Settings)
	if err != nil {
		return fmt.Errorf("encode model settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO review_configs (company_id, active, criteria, settings) VALUES (?, ?, ?, ?)
		ON CONFLICT (company_id) DO UPDATE SET
			active = excluded.active, criteria = excluded.criteria, settings = excluded.settings
	`, cfg.CompanyID, boolInt(cfg.Active), string(criteria), string(settings))
	if err != nil {
		return fmt.Errorf("upsert SaveReviewConfig: %w", err)
	}
	return nil
}

func (s *TenantRepository) GetTranscript(ctx context.Context, companyID, id string) (*models.Transcript, error) {
	var (
		reviewed  int
		createdAt string
		t         models.Transcript
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, employee_id, team_id, contact_id, external_company_id, content, reviewed, created_at
		FROM transcripts WHERE id = ? AND company_id = ?
	`, id, companyID).Scan(
		&t.ID, &t.CompanyID, &t.EmployeeID, &t.TeamID, &t.ContactID, &t.ExternalCompanyID, &t.Content, &reviewed, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("query GetTranscript: %w", err)
	}
	t.Reviewed = reviewed == 1
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *TenantRepository) SaveTranscript(ctx context.Context, t models.Transcript) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcripts (id, company_id, employee_id, team_id, contact_id, external_company_id, content, reviewed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			employee_id = excluded.employee_id, team_id = excluded.team_id,
			contact_id = excluded.contact_id, external_company_id = excluded.external_company_id,
			content = excluded.content, reviewed = excluded.reviewed
	`, t.ID, t.CompanyID, t.EmployeeID, t.TeamID, t.ContactID, t.ExternalCompanyID, t.Content, boolInt(t.Reviewed), formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert SaveTranscript: %w", err)
	}
	return nil
}

func (s *TenantRepository) MarkTranscriptReviewed(ctx context.Context, companyID, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE transcripts SET reviewed = 1 WHERE id = ? AND company_id = ?`, id, companyID)
	if err != nil {
		return fmt.Errorf("update MarkTranscriptReviewed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows MarkTranscriptReviewed: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
