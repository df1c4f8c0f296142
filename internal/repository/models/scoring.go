package models

type ScoreRequest struct {
	Type       ReviewType
	Transcript string
	Criteria   []CriterionWeight
	Settings   ModelSettings
}

// ScoreResult is what the scoring collaborator returns. A non-empty Error is a
// content-level failure, not a transport failure.
type ScoreResult struct {
	OverallScore      *float64         `json:"overallScore,omitempty"`
	OverallFeedback   string           `json:"overallFeedback,omitempty"`
	CriteriaScores    []CriterionScore `json:"criteriaScores,omitempty"`
	SentimentScore    *float64         `json:"sentimentScore,omitempty"`
	SentimentLabel    SentimentLabel   `json:"sentimentLabel,omitempty"`
	SentimentAnalysis string           `json:"sentimentAnalysis,omitempty"`
	Subject           string           `json:"subject,omitempty"`
	Error             string           `json:"error,omitempty"`
}
