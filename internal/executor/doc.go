// Package executor runs a single analysis step against an external
// endpoint with a hard per-attempt timeout, exponential backoff retries
// and a circuit breaker per endpoint.
//
// Execute never returns an error and never lets a panic escape: every
// outcome, including an open circuit or an expired request deadline, is a
// model.StepResult with a classified error kind.
package executor
