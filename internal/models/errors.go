package models

import "errors"

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound           = errors.New("resource not found")
	ErrDevotionalNotFound = errors.New("devotional not found")
	ErrDayNotFound        = errors.New("devotional day not found")

	// Generation Errors
	ErrGenerationInProgress = errors.New("generation is already in progress for this devotional")
	ErrContinuationSkipped  = errors.New("continuation skipped: another generation holds the lock")
	ErrNoSessionToRecover   = errors.New("no recoverable generation session")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
	ErrInvalidInput   = errors.New("invalid input data")
	ErrForbidden      = errors.New("forbidden")
)
