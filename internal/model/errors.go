package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// Sentinel errors shared across the pipeline.
var (
	// ErrInvalidDepth is returned when a depth string is not recognized.
	ErrInvalidDepth = errors.New("invalid analysis depth")

	// ErrInvalidShape is returned when an output shape string is not recognized.
	ErrInvalidShape = errors.New("invalid output shape")

	// ErrUnknownStep is returned when a request names a step that is not registered.
	ErrUnknownStep = errors.New("unknown step")

	// ErrDependencyCycle is returned when step dependencies form a cycle.
	ErrDependencyCycle = errors.New("step dependency cycle")

	// ErrMalformedOutput is returned when a provider response cannot be parsed.
	// It is never retried.
	ErrMalformedOutput = errors.New("malformed provider output")

	// ErrQuotaExceeded is returned when a provider refuses a call for quota reasons.
	// It is never retried.
	ErrQuotaExceeded = errors.New("provider quota exceeded")

	// ErrProviderRejected is returned when a provider refuses the input
	// itself (4xx other than quota). It is never retried.
	ErrProviderRejected = errors.New("provider rejected request")
)

// ValidationRule names the specific validator rule a request violated.
type ValidationRule string

const (
	RuleEmptyURL         ValidationRule = "empty_url"
	RuleURLTooLong       ValidationRule = "url_too_long"
	RuleUnparseableURL   ValidationRule = "unparseable_url"
	RuleInjectionPattern ValidationRule = "injection_pattern"
	RuleSchemeNotAllowed ValidationRule = "scheme_not_allowed"
	RuleMissingHost      ValidationRule = "missing_host"
	RuleBlockedDomain    ValidationRule = "blocked_domain"
	RulePrivateAddress   ValidationRule = "private_address"
	RuleUnknownStep      ValidationRule = "unknown_step"
)

// ValidationError reports malformed or unsafe input. It is always terminal.
type ValidationError struct {
	Rule   ValidationRule
	Detail string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return "validation failed: " + string(e.Rule)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Rule, e.Detail)
}

// RateLimitError reports an exhausted per-client quota.
// It is terminal for the current call; the caller may retry after RetryAfter.
type RateLimitError struct {
	ClientID   string
	Limit      int
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: client %q exceeded %d requests, retry after %s",
		e.ClientID, e.Limit, e.RetryAfter.Round(time.Millisecond))
}

// TransientProviderError marks a provider failure that is worth retrying.
type TransientProviderError struct {
	// Transport is true when the failure happened before a response was
	// received (dial failure, connection reset). Only transport failures
	// are retried for non-idempotent steps.
	Transport bool
	Err       error
}

// Error implements the error interface.
func (e *TransientProviderError) Error() string {
	return "transient provider error: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *TransientProviderError) Unwrap() error {
	return e.Err
}

// CircuitOpenError is returned when an endpoint's breaker rejects a call.
type CircuitOpenError struct {
	Endpoint string
	Until    time.Time
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for endpoint %q until %s", e.Endpoint, e.Until.Format(time.RFC3339))
}

// DependencyFailedError records that a step was skipped because an
// upstream step did not succeed. It is recorded as status, never raised.
type DependencyFailedError struct {
	Step       string
	Dependency string
}

// Error implements the error interface.
func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("step %q skipped: dependency %q did not succeed", e.Step, e.Dependency)
}

// Classify maps an error returned by a provider call to an ErrorKind.
// Unknown errors are treated as internal and are not retried.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var (
		circuitErr   *CircuitOpenError
		transientErr *TransientProviderError
		depErr       *DependencyFailedError
		netErr       net.Error
	)

	switch {
	case errors.As(err, &circuitErr):
		return KindCircuitOpen
	case errors.As(err, &depErr):
		return KindDependencyFailed
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuota
	case errors.Is(err, ErrMalformedOutput), errors.Is(err, ErrProviderRejected):
		return KindValidation
	case errors.Is(err, context.Canceled):
		return KindDeadline
	case errors.As(err, &transientErr):
		return KindTransient
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED):
		return KindTransient
	case errors.As(err, &netErr) && netErr.Timeout():
		return KindTransient
	default:
		return KindInternal
	}
}

// IsTransportFailure reports whether err happened before the external
// service could have processed the call.
func IsTransportFailure(err error) bool {
	var transientErr *TransientProviderError
	if errors.As(err, &transientErr) {
		return transientErr.Transport
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

// StepErrorFrom converts err into a StepError using Classify.
func StepErrorFrom(err error) *StepError {
	if err == nil {
		return nil
	}
	return &StepError{Kind: Classify(err), Message: err.Error()}
}
