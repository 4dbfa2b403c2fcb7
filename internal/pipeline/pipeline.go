package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitescope/internal/executor"
	"github.com/nao1215/sitescope/internal/model"
)

// DefaultConcurrency bounds the steps of one wave that run at once.
const DefaultConcurrency = 4

// Orchestrator runs a set of named steps for one request.
// It is safe for concurrent use; every Run is independent.
type Orchestrator struct {
	// registry resolves step names.
	registry Registry

	// exec applies timeout, retry and circuit breaking to each step.
	exec *executor.Executor

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// concurrency bounds the parallel steps within one wave.
	concurrency int
}

// Option is a function that configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a custom logger for the orchestrator.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithConcurrency bounds the number of steps running at once within a wave.
// Non-positive values keep the default.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// New creates an Orchestrator over registry and exec.
func New(registry Registry, exec *executor.Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:    registry,
		exec:        exec,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// runOptions holds per-run settings.
type runOptions struct {
	reuse map[string]model.StepResult
}

// RunOption configures a single Run.
type RunOption func(*runOptions)

// WithReuse supplies results computed earlier, typically from the per-step
// cache. A succeeded result is reported as Cached instead of running the
// step again; any other result is ignored.
func WithReuse(results map[string]model.StepResult) RunOption {
	return func(r *runOptions) {
		r.reuse = results
	}
}

// Plan validates names against the registry without running anything.
func (o *Orchestrator) Plan(names []string) (*Plan, error) {
	return BuildPlan(o.registry, names)
}

// Run executes names and their dependencies wave by wave.
//
// The returned error is non-nil only when the plan itself is invalid
// (no steps, an unknown step or a cycle); in that case nothing runs.
// Step failures are reported in the results, which follow Plan.Order.
//
// Design decision: a step whose dependency did not succeed is skipped
// rather than attempted, and the request deadline turns not-yet-started
// steps into skipped steps with kind deadline. Completed results are kept.
func (o *Orchestrator) Run(ctx context.Context, names []string, in Input, opts ...RunOption) ([]model.StepResult, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	plan, err := o.Plan(names)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results = make(map[string]model.StepResult, len(plan.Order))
	)
	record := func(r model.StepResult) {
		mu.Lock()
		results[r.Name] = r
		mu.Unlock()
	}

	for i, wave := range plan.Waves {
		o.logger.Debug("running wave", "wave", i, "steps", wave, "url", in.Request.URL)

		// Every dependency finished in an earlier wave; the copy keeps
		// reads apart from this wave's writes.
		done := maps.Clone(results)

		var g errgroup.Group
		g.SetLimit(o.concurrency)
		for _, name := range wave {
			desc := plan.Descriptor(name)

			// A reused result stands only on dependencies that succeeded in
			// this run.
			if skip, ok := o.blocked(ctx, desc, done); ok {
				record(skip)
				continue
			}
			if prev, ok := ro.reuse[name]; ok && prev.Succeeded() {
				prev.Name = name
				prev.Cached = true
				record(prev)
				continue
			}

			stepIn := in
			stepIn.Dependencies = make(map[string]json.RawMessage, len(desc.DependsOn))
			for _, dep := range desc.DependsOn {
				stepIn.Dependencies[dep] = done[dep].Payload
			}
			step := plan.steps[name]

			g.Go(func() error {
				if ctx.Err() != nil {
					record(model.Skipped(name, model.KindDeadline, "request deadline passed before the step started"))
					return nil
				}
				res := o.exec.Execute(ctx, desc, func(ctx context.Context) (json.RawMessage, error) {
					return step.Do(ctx, &stepIn)
				})
				o.logger.Debug("step finished", "step", name, "status", res.Status, "attempts", res.Attempts, "duration", res.Duration)
				record(res)
				return nil
			})
		}
		_ = g.Wait() // steps record their outcome and never return an error
	}

	ordered := make([]model.StepResult, 0, len(plan.Order))
	for _, name := range plan.Order {
		ordered = append(ordered, results[name])
	}
	return ordered, nil
}

// blocked reports whether desc must be skipped without running.
func (o *Orchestrator) blocked(ctx context.Context, desc model.StepDescriptor, results map[string]model.StepResult) (model.StepResult, bool) {
	if ctx.Err() != nil {
		return model.Skipped(desc.Name, model.KindDeadline, "request deadline passed before the step started"), true
	}
	for _, dep := range desc.DependsOn {
		if results[dep].Succeeded() {
			continue
		}
		err := &model.DependencyFailedError{Step: desc.Name, Dependency: dep}
		o.logger.Info("skipping step", "step", desc.Name, "dependency", dep, "dependency_status", results[dep].Status)
		return model.Skipped(desc.Name, model.KindDependencyFailed, err.Error()), true
	}
	return model.StepResult{}, false
}

// TimedOut reports whether any result ended because of the request deadline.
func TimedOut(results []model.StepResult) bool {
	for _, r := range results {
		if r.Error != nil && r.Error.Kind == model.KindDeadline {
			return true
		}
	}
	return false
}
