package model

import "errors"

var (
	// ErrQuoteUnavailable means one venue could not quote one pair.
	ErrQuoteUnavailable = errors.New("quote unavailable")
	// ErrConnectorUnavailable means no connector is registered for a venue.
	ErrConnectorUnavailable = errors.New("connector unavailable")
	// ErrConfiguration flags missing or invalid reference data, such as a
	// venue without a fee schedule.
	ErrConfiguration = errors.New("configuration error")
	// ErrLimitReached means the risk governor refuses new executions.
	ErrLimitReached = errors.New("daily limit reached")
	ErrNotFound     = errors.New("not found")

	ErrDuplicateOpportunity = errors.New("opportunity already dispatched")
	ErrExecutionUnsupported = errors.New("execution not supported")
	ErrInvalidRequest       = errors.New("invalid request")
)
