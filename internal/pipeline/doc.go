// Package pipeline orchestrates the analysis steps of a single request.
//
// The requested step names are expanded with their transitive
// dependencies, checked for unknown names and cycles, and grouped into
// topological waves. Steps of one wave run concurrently through the
// executor; a step whose dependency did not succeed is skipped rather than
// attempted, and the request itself is never aborted by a step failure.
//
// Design decision: steps are looked up by name in a Registry instead of
// being wired into the orchestrator, so new steps are added by registering
// them, and the orchestrator can be tested with plain function steps.
//
// Results are reported in the requested order followed by any dependency
// that was pulled in, independent of completion order.
package pipeline
