package pipeline

import (
	"context"
	"encoding/json"

	"github.com/nao1215/sitescope/internal/model"
)

// Input is what a step receives. It is shared read-only by every step of
// a request except for Dependencies, which is built per step.
type Input struct {
	// Request is the validated request.
	Request model.NormalizedRequest

	// Page is the acquired page. It is never nil when steps run.
	Page *model.Page

	// Dependencies holds the payloads of the step's dependencies, all of
	// which succeeded.
	Dependencies map[string]json.RawMessage
}

// Step defines the interface that all analysis steps implement.
//
// Design decision: an interface rather than a function type, so that a
// step can carry its prompt and provider and report its own name.
type Step interface {
	// Do performs one attempt of the step. Retries and timeouts are
	// applied around it by the executor.
	Do(ctx context.Context, in *Input) (json.RawMessage, error)

	// Name returns the step's registered name.
	Name() string
}

// StepFunc adapts a function to Step.
type StepFunc struct {
	StepName string
	Fn       func(ctx context.Context, in *Input) (json.RawMessage, error)
}

// Do implements Step.
func (f StepFunc) Do(ctx context.Context, in *Input) (json.RawMessage, error) {
	return f.Fn(ctx, in)
}

// Name implements Step.
func (f StepFunc) Name() string {
	return f.StepName
}

// Registry resolves step names to their descriptor and implementation.
type Registry interface {
	Lookup(name string) (model.StepDescriptor, Step, bool)
}
