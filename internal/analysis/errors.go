package analysis

import "errors"

var (
	// ErrInvalidPlan is returned when the requested steps cannot be planned,
	// for example because their dependencies form a cycle.
	ErrInvalidPlan = errors.New("invalid step selection")

	// ErrAllFailed is returned by a batch in which no request produced a result.
	ErrAllFailed = errors.New("every request in the batch was rejected")
)
