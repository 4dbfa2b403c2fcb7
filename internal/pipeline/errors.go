package pipeline

import "errors"

// ErrNoSteps is returned when a run names no steps.
var ErrNoSteps = errors.New("no steps requested")
