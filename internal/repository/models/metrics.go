package models

import (
	"errors"
	"time"
)

var ErrInvalidScope = errors.New("invalid entity scope")

const Day = 24 * time.Hour

// StartOfDay returns midnight UTC of the day t falls in.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

type ScopeKind string

const (
	ScopeCompany         ScopeKind = "company"
	ScopeEmployee        ScopeKind = "employee"
	ScopeTeam            ScopeKind = "team"
	ScopeContact         ScopeKind = "contact"
	ScopeExternalCompany ScopeKind = "external_company"
)

// Scope narrows aggregation to a tenant or one entity inside it.
type Scope struct {
	CompanyID string
	Kind      ScopeKind
	EntityID  string
}

func CompanyScope(companyID string) Scope {
	return Scope{CompanyID: companyID, Kind: ScopeCompany}
}

// Company widens s to its tenant.
func (s Scope) Company() Scope {
	return CompanyScope(s.CompanyID)
}

func (s Scope) Validate() error {
	if s.CompanyID == "" {
		return ErrInvalidScope
	}
	switch s.Kind {
	case ScopeCompany:
		if s.EntityID != "" {
			return ErrInvalidScope
		}
		return nil
	case ScopeEmployee, ScopeTeam, ScopeContact, ScopeExternalCompany:
		if s.EntityID == "" {
			return ErrInvalidScope
		}
		return nil
	}
	return ErrInvalidScope
}

// ScopesForReview lists the materialized scopes a review contributes to.
// Employee scope is left out: employee rollups are not day-bucketed.
func ScopesForReview(r *Review) []Scope {
	scopes := []Scope{CompanyScope(r.CompanyID)}
	if r.TeamID != "" {
		scopes = append(scopes, Scope{CompanyID: r.CompanyID, Kind: ScopeTeam, EntityID: r.TeamID})
	}
	if r.ContactID != "" {
		scopes = append(scopes, Scope{CompanyID: r.CompanyID, Kind: ScopeContact, EntityID: r.ContactID})
	}
	if r.ExternalCompanyID != "" {
		scopes = append(scopes, Scope{CompanyID: r.CompanyID, Kind: ScopeExternalCompany, EntityID: r.ExternalCompanyID})
	}
	return scopes
}

// Window is a created_at range. Start is inclusive unless StartExclusive is
// set; End is exclusive unless EndInclusive is set.
type Window struct {
	Start          time.Time
	End            time.Time
	StartExclusive bool
	EndInclusive   bool
}

// DayWindow is the [day, day+1) bucket containing day.
func DayWindow(day time.Time) Window {
	start := StartOfDay(day)
	return Window{Start: start, End: start.Add(Day)}
}

// Unbounded covers every review ever created.
func Unbounded() Window {
	return Window{
		Start:        time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		End:          time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC),
		EndInclusive: true,
	}
}

type OverallAggregate struct {
	AvgOverall   *float64
	AvgSentiment *float64
	ReviewCount  int64
}

type CriterionAggregate struct {
	CriterionName string
	AvgScore      float64
	ReviewCount   int64
}

type TeamAggregate struct {
	TeamID       string
	AvgOverall   *float64
	AvgSentiment *float64
	ReviewCount  int64
}

type SentimentLabelCounts struct {
	Negative int64
	Neutral  int64
	Positive int64
}

func (c SentimentLabelCounts) Total() int64 {
	return c.Negative + c.Neutral + c.Positive
}

type DailyOverallMetric struct {
	Day   time.Time
	Scope Scope
	OverallAggregate
	UpdatedAt time.Time
}

type DailyCriterionMetric struct {
	Day       time.Time
	CompanyID string
	CriterionAggregate
	UpdatedAt time.Time
}

type DailyTeamMetric struct {
	Day       time.Time
	CompanyID string
	TeamAggregate
	UpdatedAt time.Time
}

type DailySentimentLabelMetric struct {
	Day       time.Time
	CompanyID string
	SentimentLabelCounts
	Total     int64
	UpdatedAt time.Time
}

// DashboardSnapshot holds a tenant's current totals, rebuilt wholesale.
type DashboardSnapshot struct {
	CompanyID              string
	AvgOverall             *float64
	AvgSentiment           *float64
	PerformanceReviewCount int64
	SentimentReviewCount   int64
	TotalReviewCount       int64
	Criteria               []CriterionSnapshot
	ComputedAt             time.Time
}

type CriterionSnapshot struct {
	CriterionName string
	AvgScore      float64
	ReviewCount   int64
}
