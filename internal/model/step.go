package model

import (
	"encoding/json"
	"time"
)

// StepDescriptor is the static configuration of one analysis step.
// Descriptors are built once at process start and never mutated.
type StepDescriptor struct {
	// Name uniquely identifies the step (e.g. "classify").
	Name string `json:"name" yaml:"name"`

	// DependsOn lists the steps that must reach a terminal state before
	// this one starts. Order is significant only for error messages.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

	// Idempotent reports whether repeating the external call is harmless.
	Idempotent bool `json:"idempotent" yaml:"idempotent"`

	// MaxRetries is the number of additional attempts after the first one.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Timeout bounds a single attempt.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Endpoint keys the circuit breaker guarding this step.
	// Steps sharing a provider endpoint share a breaker.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// Attempts returns the total number of attempts allowed for the step.
func (d StepDescriptor) Attempts() int {
	if d.MaxRetries < 0 {
		return 1
	}
	return d.MaxRetries + 1
}

// StepStatus is the terminal state of a step.
type StepStatus string

const (
	// StepSucceeded means the step produced a payload.
	StepSucceeded StepStatus = "succeeded"

	// StepFailed means every allowed attempt failed or the circuit was open.
	StepFailed StepStatus = "failed"

	// StepSkipped means the step was never attempted, either because a
	// dependency did not succeed or because the request deadline passed.
	StepSkipped StepStatus = "skipped"
)

// ErrorKind classifies why a step did not succeed.
type ErrorKind string

const (
	// KindTransient covers timeouts, 5xx responses and connection failures.
	KindTransient ErrorKind = "transient"

	// KindQuota means the provider refused the call for quota reasons.
	KindQuota ErrorKind = "quota"

	// KindValidation means the provider rejected the input or returned
	// output that could not be parsed.
	KindValidation ErrorKind = "validation"

	// KindCircuitOpen means the endpoint's circuit breaker short-circuited the call.
	KindCircuitOpen ErrorKind = "circuit_open"

	// KindDependencyFailed means an upstream step did not succeed.
	KindDependencyFailed ErrorKind = "dependency_failed"

	// KindDeadline means the request deadline passed before or during the step.
	KindDeadline ErrorKind = "deadline"

	// KindInternal covers everything else, including recovered panics.
	KindInternal ErrorKind = "internal"
)

// StepError is the classified failure carried by a StepResult.
type StepError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// StepResult is the outcome of one step within one request.
type StepResult struct {
	Name     string          `json:"name"`
	Status   StepStatus      `json:"status"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Error    *StepError      `json:"error,omitempty"`
	Attempts int             `json:"attempts"`
	Duration time.Duration   `json:"duration"`

	// Cached is true when the result was reused from the per-step cache.
	Cached bool `json:"cached,omitempty"`
}

// Succeeded reports whether the step produced a payload.
func (r StepResult) Succeeded() bool {
	return r.Status == StepSucceeded
}

// Skipped builds a skipped result with the given reason.
func Skipped(name string, kind ErrorKind, message string) StepResult {
	return StepResult{
		Name:   name,
		Status: StepSkipped,
		Error:  &StepError{Kind: kind, Message: message},
	}
}
