package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidTitle  = errors.New("title must be between 1 and 255 characters")
	ErrInvalidBody   = errors.New("body must be between 1 and 1600 characters")
	ErrInvalidTripID = errors.New("trip id must be a valid UUID")
	ErrInvalidUserID = errors.New("user id must be a valid UUID")
	ErrTripCancelled = errors.New("trip is cancelled")
)
