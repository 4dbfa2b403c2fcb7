// Package model defines the core data structures used throughout sitescope.
//
// This package contains the following main types:
//   - AnalysisRequest: What a caller asks the pipeline to do
//   - StepDescriptor: Static configuration of a single analysis step
//   - StepResult: The outcome of running (or skipping) one step
//   - AnalysisResult: The aggregated outcome of one request
//   - Page: Raw page data supplied by the scraper
//
// The error taxonomy shared by every pipeline component (ValidationError,
// RateLimitError, TransientProviderError, CircuitOpenError,
// DependencyFailedError) also lives here so that the validator, executor,
// orchestrator and façade can classify failures without importing each other.
//
// All types are serializable to JSON for cache storage and report output.
package model
