package model

import (
	"fmt"
	"time"
)

// Depth selects the default set of steps for a request.
type Depth string

const (
	// DepthQuick runs the reduced step subset (classification and summary).
	DepthQuick Depth = "quick"

	// DepthFull runs every registered step.
	DepthFull Depth = "full"
)

// ParseDepth converts a user supplied string into a Depth.
// An empty string yields DepthFull.
func ParseDepth(s string) (Depth, error) {
	switch Depth(s) {
	case "", DepthFull:
		return DepthFull, nil
	case DepthQuick:
		return DepthQuick, nil
	default:
		return "", fmt.Errorf("%w: %q (want quick or full)", ErrInvalidDepth, s)
	}
}

// Shape selects how much of a result is rendered for the caller.
type Shape string

const (
	// ShapeJSON renders the complete result.
	ShapeJSON Shape = "json"

	// ShapeSummary renders status, per-step status and headline fields only.
	ShapeSummary Shape = "summary"

	// ShapeDetailed renders the complete result plus page metadata.
	ShapeDetailed Shape = "detailed"
)

// ParseShape converts a user supplied string into a Shape.
// An empty string yields ShapeJSON.
func ParseShape(s string) (Shape, error) {
	switch Shape(s) {
	case "", ShapeJSON:
		return ShapeJSON, nil
	case ShapeSummary:
		return ShapeSummary, nil
	case ShapeDetailed:
		return ShapeDetailed, nil
	default:
		return "", fmt.Errorf("%w: %q (want json, summary or detailed)", ErrInvalidShape, s)
	}
}

// AnonymousClient is the client identity used when the caller supplies none.
const AnonymousClient = "anonymous"

// AnalysisRequest is a single request entering the pipeline.
// It is owned by the caller that creates it and treated as read-only by
// every pipeline component afterwards.
type AnalysisRequest struct {
	// URL is the raw target URL as supplied by the caller.
	URL string `json:"url"`

	// Depth selects the default step set when Steps is empty.
	Depth Depth `json:"depth"`

	// Steps optionally names the exact steps to run, in reporting order.
	Steps []string `json:"steps,omitempty"`

	// Shape selects the output rendering.
	Shape Shape `json:"shape,omitempty"`

	// ClientID identifies the caller for rate limiting.
	ClientID string `json:"client_id,omitempty"`

	// Content is optional page text supplied by the caller.
	// When set, the scraper is not invoked.
	Content string `json:"-"`

	// NoCache bypasses both cache lookup and cache store.
	NoCache bool `json:"no_cache,omitempty"`

	// Timeout is the whole-request deadline. Zero uses the configured default.
	Timeout time.Duration `json:"-"`
}

// Client returns the rate limiting identity for the request.
func (r AnalysisRequest) Client() string {
	if r.ClientID == "" {
		return AnonymousClient
	}
	return r.ClientID
}

// NormalizedRequest is an AnalysisRequest after validation.
type NormalizedRequest struct {
	// URL is the canonical form of the target URL.
	// Two inputs that normalize to the same URL share cache entries.
	URL string `json:"url"`

	// Host is the lower-cased ASCII host without port.
	Host string `json:"host"`

	// Content is the sanitized caller content, empty if none was supplied.
	Content string `json:"-"`

	// Warnings lists non-fatal findings from validation, such as stripped markup.
	Warnings []string `json:"warnings,omitempty"`
}
