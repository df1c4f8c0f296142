package models

import (
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrStaleReview = errors.New("review status changed concurrently")
)

type ReviewType string

const (
	ReviewTypePerformance ReviewType = "performance"
	ReviewTypeSentiment   ReviewType = "sentiment"
	ReviewTypeBoth        ReviewType = "both"
)

// Valid reports whether t is one of the known review types.
func (t ReviewType) Valid() bool {
	switch t {
	case ReviewTypePerformance, ReviewTypeSentiment, ReviewTypeBoth:
		return true
	}
	return false
}

// ScoresPerformance reports whether reviews of this type carry an overall score and criteria.
func (t ReviewType) ScoresPerformance() bool {
	return t == ReviewTypePerformance || t == ReviewTypeBoth
}

// ScoresSentiment reports whether reviews of this type carry a sentiment score and label.
func (t ReviewType) ScoresSentiment() bool {
	return t == ReviewTypeSentiment || t == ReviewTypeBoth
}

type ReviewStatus string

const (
	StatusNotStarted ReviewStatus = "NOT_STARTED"
	StatusStarted    ReviewStatus = "STARTED"
	StatusReviewed   ReviewStatus = "REVIEWED"
	StatusError      ReviewStatus = "ERROR"
)

type SentimentLabel string

const (
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentPositive SentimentLabel = "positive"
)

// Valid reports whether l is one of the three histogram labels.
func (l SentimentLabel) Valid() bool {
	switch l {
	case SentimentNegative, SentimentNeutral, SentimentPositive:
		return true
	}
	return false
}

type CriterionScore struct {
	CriterionName string `json:"criterionName"`
	Score         int    `json:"score"`
	Comment       string `json:"comment,omitempty"`
	Quote         string `json:"quote,omitempty"`
	Feedback      string `json:"feedback,omitempty"`
}

type CriterionWeight struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Weight      float64 `json:"weight"`
}

type ModelSettings struct {
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

// ConfigSnapshot is the review configuration frozen at creation time.
// Retries score against it rather than the tenant's live configuration.
type ConfigSnapshot struct {
	Criteria []CriterionWeight `json:"criteria"`
	Settings ModelSettings     `json:"settings"`
}

// Review is one transcript scoring job and its result.
// EmployeeID, TeamID, ContactID and ExternalCompanyID are copied from the
// transcript at creation and never re-derived. An empty string means unset.
type Review struct {
	ID           string
	CompanyID    string
	TranscriptID string
	Type         ReviewType
	Status       ReviewStatus

	OverallScore      *float64
	OverallFeedback   string
	SentimentScore    *float64
	SentimentLabel    SentimentLabel
	SentimentAnalysis string
	Subject           string
	CriteriaScores    []CriterionScore
	ErrorMessage      string

	Config ConfigSnapshot

	EmployeeID        string
	TeamID            string
	ContactID         string
	ExternalCompanyID string

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// ClearResult drops every scoring output so the review can be scored again.
func (r *Review) ClearResult() {
	r.OverallScore = nil
	r.OverallFeedback = ""
	r.SentimentScore = nil
	r.SentimentLabel = ""
	r.SentimentAnalysis = ""
	r.Subject = ""
	r.CriteriaScores = nil
	r.ErrorMessage = ""
}

// Clone returns a deep copy.
func (r *Review) Clone() *Review {
	if r == nil {
		return nil
	}
	c := *r
	if r.OverallScore != nil {
		v := *r.OverallScore
		c.OverallScore = &v
	}
	if r.SentimentScore != nil {
		v := *r.SentimentScore
		c.SentimentScore = &v
	}
	if r.DeletedAt != nil {
		v := *r.DeletedAt
		c.DeletedAt = &v
	}
	c.CriteriaScores = append([]CriterionScore(nil), r.CriteriaScores...)
	c.Config.Criteria = append([]CriterionWeight(nil), r.Config.Criteria...)
	return &c
}
