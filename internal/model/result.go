package model

import (
	"time"
)

// OverallStatus summarizes the outcome of every step in a request.
type OverallStatus string

const (
	// StatusCompleted means every step succeeded.
	StatusCompleted OverallStatus = "completed"

	// StatusPartial means at least one step succeeded and at least one did not.
	StatusPartial OverallStatus = "partial"

	// StatusFailed means no step succeeded.
	StatusFailed OverallStatus = "failed"
)

// Overall derives the request status from its step results.
// An empty slice is reported as failed.
func Overall(results []StepResult) OverallStatus {
	succeeded := 0
	for _, r := range results {
		if r.Succeeded() {
			succeeded++
		}
	}

	switch {
	case succeeded == 0:
		return StatusFailed
	case succeeded == len(results):
		return StatusCompleted
	default:
		return StatusPartial
	}
}

// PageSummary is the part of the scraped page echoed in a result.
type PageSummary struct {
	Title         string `json:"title,omitempty"`
	Description   string `json:"description,omitempty"`
	ContentLength int    `json:"content_length"`
}

// AnalysisResult is the aggregated outcome of one request.
type AnalysisResult struct {
	// ID uniquely identifies this response, including cache hits.
	ID string `json:"id"`

	// Request echoes the request with its URL already normalized.
	Request AnalysisRequest `json:"request"`

	// Steps holds one result per executed step in declared order.
	Steps []StepResult `json:"steps"`

	// Status is the overall outcome.
	Status OverallStatus `json:"status"`

	// CacheHit reports whether the result came from the cache.
	CacheHit bool `json:"cache_hit"`

	// TimedOut reports whether the request deadline elapsed before every
	// step reached a terminal state.
	TimedOut bool `json:"timed_out,omitempty"`

	// Page summarizes the analyzed page.
	Page PageSummary `json:"page"`

	// Warnings carries non-fatal validator findings.
	Warnings []string `json:"warnings,omitempty"`

	// CreatedAt is when the underlying analysis ran.
	CreatedAt time.Time `json:"created_at"`

	// Duration is the wall-clock time spent serving this request.
	Duration time.Duration `json:"duration"`
}

// Step returns the result for the named step.
func (r *AnalysisResult) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// SuccessRate returns the fraction of steps that succeeded.
func (r *AnalysisResult) SuccessRate() float64 {
	if len(r.Steps) == 0 {
		return 0
	}
	succeeded := 0
	for _, s := range r.Steps {
		if s.Succeeded() {
			succeeded++
		}
	}
	return float64(succeeded) / float64(len(r.Steps))
}
