package grpc

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/godilite/qa-review-engine/internal/repository/models"
	"github.com/godilite/qa-review-engine/internal/service"
)

type createReviewRequest struct {
	CompanyID    string                   `json:"companyId"`
	TranscriptID string                   `json:"transcriptId"`
	Type         string                   `json:"type"`
	Criteria     []models.CriterionWeight `json:"criteria,omitempty"`
}

type reviewRef struct {
	CompanyID string `json:"companyId"`
	ReviewID  string `json:"reviewId"`
}

type correctScoresRequest struct {
	CompanyID      string                  `json:"companyId"`
	ReviewID       string                  `json:"reviewId"`
	OverallScore   *float64                `json:"overallScore,omitempty"`
	SentimentScore *float64                `json:"sentimentScore,omitempty"`
	SentimentLabel string                  `json:"sentimentLabel,omitempty"`
	CriteriaScores []models.CriterionScore `json:"criteriaScores,omitempty"`
}

// seriesRequest selects an overall series for a scope, or a criterion series
// for a company when Criterion is set. Scope defaults to company.
type seriesRequest struct {
	CompanyID string    `json:"companyId"`
	Scope     string    `json:"scope,omitempty"`
	EntityID  string    `json:"entityId,omitempty"`
	Criterion string    `json:"criterion,omitempty"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
}

type refreshRequest struct {
	CompanyID string `json:"companyId,omitempty"`
}

type reviewPayload struct {
	ID                string                  `json:"id"`
	CompanyID         string                  `json:"companyId"`
	TranscriptID      string                  `json:"transcriptId"`
	Type              string                  `json:"type"`
	Status            string                  `json:"status"`
	OverallScore      *float64                `json:"overallScore,omitempty"`
	OverallFeedback   string                  `json:"overallFeedback,omitempty"`
	SentimentScore    *float64                `json:"sentimentScore,omitempty"`
	SentimentLabel    string                  `json:"sentimentLabel,omitempty"`
	SentimentAnalysis string                  `json:"sentimentAnalysis,omitempty"`
	Subject           string                  `json:"subject,omitempty"`
	CriteriaScores    []models.CriterionScore `json:"criteriaScores,omitempty"`
	ErrorMessage      string                  `json:"errorMessage,omitempty"`
	Config            models.ConfigSnapshot   `json:"config"`
	EmployeeID        string                  `json:"employeeId,omitempty"`
	TeamID            string                  `json:"teamId,omitempty"`
	ContactID         string                  `json:"contactId,omitempty"`
	ExternalCompanyID string                  `json:"externalCompanyId,omitempty"`
	CreatedAt         time.Time               `json:"createdAt"`
	UpdatedAt         time.Time               `json:"updatedAt"`
}

type seriesPayload struct {
	Points []service.SeriesPoint `json:"points"`
}

type refreshPayload struct {
	Tenants    int   `json:"tenants"`
	Refreshed  int   `json:"refreshed"`
	Failed     int   `json:"failed"`
	DurationMs int64 `json:"durationMs"`
}

func toReviewPayload(r *models.Review) reviewPayload {
	return reviewPayload{
		ID:                r.ID,
		CompanyID:         r.CompanyID,
		TranscriptID:      r.TranscriptID,
		Type:              string(r.Type),
		Status:            string(r.Status),
		OverallScore:      r.OverallScore,
		OverallFeedback:   r.OverallFeedback,
		SentimentScore:    r.SentimentScore,
		SentimentLabel:    string(r.SentimentLabel),
		SentimentAnalysis: r.SentimentAnalysis,
		Subject:           r.Subject,
		CriteriaScores:    r.CriteriaScores,
		ErrorMessage:      r.ErrorMessage,
		Config:            r.Config,
		EmployeeID:        r.EmployeeID,
		TeamID:            r.TeamID,
		ContactID:         r.ContactID,
		ExternalCompanyID: r.ExternalCompanyID,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// decode copies a Struct payload into dst through its JSON form.
func decode(in *structpb.Struct, dst any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request payload: %v", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request payload: %v", err)
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}

func (r reviewRef) validate() error {
	if r.CompanyID == "" || r.ReviewID == "" {
		return status.Error(codes.InvalidArgument, "companyId and reviewId are required")
	}
	return nil
}
