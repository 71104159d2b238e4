package services

import "errors"

// Search service errors
var (
	ErrSearchNotFound      = errors.New("search not found")
	ErrSearchNotFinished   = errors.New("search has not completed")
	ErrSearchFinished      = errors.New("search already finished")
	ErrFamilyNotInSearch   = errors.New("family was not part of this search")
	ErrFamilyRequired      = errors.New("search covers several families, one must be chosen")
	ErrUnknownReportFormat = errors.New("unknown report format")
	ErrEmptySeries         = errors.New("series has no observations")
	ErrServiceStopped      = errors.New("search service is shutting down")
)
