package service

import "errors"

// Admission errors are returned before any review is written.
var (
	ErrQuotaExceeded         = errors.New("review quota exceeded for the current billing period")
	ErrInactiveConfiguration = errors.New("review configuration is inactive")
	ErrNoSubscription        = errors.New("no subscription for company")
	ErrInvalidReviewType     = errors.New("invalid review type")
	ErrMissingCriteria       = errors.New("performance reviews need at least one criterion")
)

var (
	ErrReviewNotFound     = errors.New("review not found")
	ErrTranscriptNotFound = errors.New("transcript not found")
	ErrInvalidTransition  = errors.New("invalid review status transition")
	ErrInvalidScores      = errors.New("invalid review scores")
	ErrInvalidScoreResult = errors.New("invalid scoring result")
	ErrInvalidScope       = errors.New("invalid entity scope")
	ErrInvalidRange       = errors.New("invalid time range")
	ErrProcessorClosed    = errors.New("review processor is shut down")
	ErrStorageFailure     = errors.New("storage failure")
)
