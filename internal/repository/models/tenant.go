package models

import "time"

type Company struct {
	ID     string
	Name   string
	Active bool
}

// Subscription is owned by the billing provider and only read here.
type Subscription struct {
	CompanyID          string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	AllowedReviews     int64
}

type Transcript struct {
	ID                string
	CompanyID         string
	EmployeeID        string
	TeamID            string
	ContactID         string
	ExternalCompanyID string
	Content           string
	Reviewed          bool
	CreatedAt         time.Time
}

// ReviewConfig is a tenant's live review configuration.
type ReviewConfig struct {
	CompanyID string
	Active    bool
	Criteria  []CriterionWeight
	Settings  ModelSettings
}
