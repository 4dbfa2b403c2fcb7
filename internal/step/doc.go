// Package step provides the registered analysis steps.
//
// Each step turns the scraped page, plus the payloads of the steps it
// depends on, into one bounded-size prompt, sends it to the provider and
// validates the JSON answer against a typed result. The validated result
// is the step payload; anything that does not parse is reported as
// model.ErrMalformedOutput and is not retried.
//
// Registry maps step names to descriptors and implementations and is what
// the orchestrator resolves names against.
package step
