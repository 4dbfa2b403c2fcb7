package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/sitescope/internal/executor"
	"github.com/nao1215/sitescope/internal/log"
	"github.com/nao1215/sitescope/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, in *Input) (json.RawMessage, error)
	callCount atomic.Int32
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, in *Input) (json.RawMessage, error) {
	m.callCount.Add(1)
	if m.doFunc != nil {
		return m.doFunc(ctx, in)
	}
	return json.RawMessage(`{"step":"` + m.name + `"}`), nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

// mapRegistry is a Registry backed by maps.
type mapRegistry struct {
	descs map[string]model.StepDescriptor
	steps map[string]*mockStep
}

func newMapRegistry() *mapRegistry {
	return &mapRegistry{
		descs: make(map[string]model.StepDescriptor),
		steps: make(map[string]*mockStep),
	}
}

func (r *mapRegistry) add(name string, deps ...string) *mockStep {
	r.descs[name] = model.StepDescriptor{
		Name:       name,
		DependsOn:  deps,
		Idempotent: true,
		Timeout:    time.Second,
	}
	s := &mockStep{name: name}
	r.steps[name] = s
	return s
}

func (r *mapRegistry) Lookup(name string) (model.StepDescriptor, Step, bool) {
	d, ok := r.descs[name]
	if !ok {
		return model.StepDescriptor{}, nil, false
	}
	return d, r.steps[name], true
}

// defaultGraph mirrors the shipped step graph.
func defaultGraph() *mapRegistry {
	r := newMapRegistry()
	r.add("classify")
	r.add("summary", "classify")
	r.add("ux_review", "classify")
	r.add("design", "classify")
	return r
}

func newTestOrchestrator(r Registry, opts ...Option) *Orchestrator {
	exec := executor.New(
		executor.WithLogger(log.Discard()),
		executor.WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	)
	return New(r, exec, append([]Option{WithLogger(log.Discard())}, opts...)...)
}

func names(results []model.StepResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Name
	}
	return out
}

func TestBuildPlan(t *testing.T) {
	t.Parallel()

	t.Run("groups steps into waves", func(t *testing.T) {
		t.Parallel()

		p, err := BuildPlan(defaultGraph(), []string{"summary", "classify", "design"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := strings.Join(p.Order, ","); got != "summary,classify,design" {
			t.Errorf("order = %s", got)
		}
		if len(p.Waves) != 2 {
			t.Fatalf("expected 2 waves, got %v", p.Waves)
		}
		if got := strings.Join(p.Waves[0], ","); got != "classify" {
			t.Errorf("wave 0 = %s", got)
		}
		if got := strings.Join(p.Waves[1], ","); got != "summary,design" {
			t.Errorf("wave 1 = %s", got)
		}
	})

	t.Run("pulls in dependencies after requested steps", func(t *testing.T) {
		t.Parallel()

		p, err := BuildPlan(defaultGraph(), []string{"ux_review", "summary", "ux_review"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := strings.Join(p.Order, ","); got != "ux_review,summary,classify" {
			t.Errorf("order = %s", got)
		}
		if p.Requested["classify"] {
			t.Error("classify should not be marked as requested")
		}
	})

	t.Run("deep chains get one wave per level", func(t *testing.T) {
		t.Parallel()

		r := newMapRegistry()
		r.add("a")
		r.add("b", "a")
		r.add("c", "b")
		r.add("d", "a", "c")
		p, err := BuildPlan(r, []string{"d"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(p.Waves) != 4 {
			t.Fatalf("expected 4 waves, got %v", p.Waves)
		}
		if p.Waves[3][0] != "d" {
			t.Errorf("expected d last, got %v", p.Waves)
		}
	})

	tests := []struct {
		name    string
		steps   []string
		wantErr error
		msg     string
	}{
		{name: "empty", steps: nil, wantErr: ErrNoSteps},
		{name: "unknown requested step", steps: []string{"classify", "sentiment"}, wantErr: model.ErrUnknownStep, msg: "sentiment"},
		{name: "unknown dependency", steps: []string{"broken"}, wantErr: model.ErrUnknownStep, msg: "required by"},
		{name: "cycle", steps: []string{"x"}, wantErr: model.ErrDependencyCycle, msg: "x -> y -> x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := defaultGraph()
			r.add("broken", "missing")
			r.add("x", "y")
			r.add("y", "x")

			_, err := BuildPlan(r, tt.steps)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.msg != "" && !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error %q should contain %q", err, tt.msg)
			}
		})
	}
}

func TestOrchestratorRun(t *testing.T) {
	t.Parallel()

	t.Run("reports in declared order regardless of completion", func(t *testing.T) {
		t.Parallel()

		r := defaultGraph()
		r.steps["summary"].doFunc = func(ctx context.Context, _ *Input) (json.RawMessage, error) {
			time.Sleep(30 * time.Millisecond)
			return json.RawMessage(`{"slow":true}`), nil
		}
		o := newTestOrchestrator(r)

		results, err := o.Run(context.Background(), []string{"summary", "ux_review", "classify"}, Input{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := strings.Join(names(results), ","); got != "summary,ux_review,classify" {
			t.Errorf("order = %s", got)
		}
		if model.Overall(results) != model.StatusCompleted {
			t.Errorf("expected completed, got %s", model.Overall(results))
		}
	})

	t.Run("invalid plan runs nothing", func(t *testing.T) {
		t.Parallel()

		r := defaultGraph()
		o := newTestOrchestrator(r)

		_, err := o.Run(context.Background(), []string{"classify", "nope"}, Input{})
		if !errors.Is(err, model.ErrUnknownStep) {
			t.Fatalf("expected ErrUnknownStep, got %v", err)
		}
		if r.steps["classify"].callCount.Load() != 0 {
			t.Error("classify should not run when the plan is invalid")
		}
	})

	t.Run("dependents of a failed step are skipped", func(t *testing.T) {
		t.Parallel()

		r := defaultGraph()
		r.add("links")
		r.steps["classify"].doFunc = func(context.Context, *Input) (json.RawMessage, error) {
			return nil, model.ErrMalformedOutput
		}
		o := newTestOrchestrator(r)

		results, err := o.Run(context.Background(), []string{"classify", "summary", "links"}, Input{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if results[0].Status != model.StepFailed || results[0].Error.Kind != model.KindValidation {
			t.Errorf("classify = %+v", results[0])
		}
		summary := results[1]
		if summary.Status != model.StepSkipped || summary.Error.Kind != model.KindDependencyFailed {
			t.Errorf("summary = %+v", summary)
		}
		if !strings.Contains(summary.Error.Message, `"classify"`) {
			t.Errorf("skip message should name the dependency: %q", summary.Error.Message)
		}
		if r.steps["summary"].callCount.Load() != 0 {
			t.Error("summary must not be attempted")
		}
		if !results[2].Succeeded() {
			t.Errorf("independent sibling should succeed: %+v", results[2])
		}
		if model.Overall(results) != model.StatusPartial {
			t.Errorf("expected partial, got %s", model.Overall(results))
		}
	})

	t.Run("dependency payloads are passed to dependents", func(t *testing.T) {
		t.Parallel()

		r := defaultGraph()
		r.steps["classify"].doFunc = func(context.Context, *Input) (json.RawMessage, error) {
			return json.RawMessage(`{"category":"blog"}`), nil
		}
		var got json.RawMessage
		r.steps["summary"].doFunc = func(_ context.Context, in *Input) (json.RawMessage, error) {
			got = in.Dependencies["classify"]
			if in.Request.URL != "https://example.com" {
				t.Errorf("request not propagated: %+v", in.Request)
			}
			return json.RawMessage(`{}`), nil
		}
		o := newTestOrchestrator(r)

		in := Input{Request: model.NormalizedRequest{URL: "https://example.com"}}
		if _, err := o.Run(context.Background(), []string{"summary"}, in); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(got) != `{"category":"blog"}` {
			t.Errorf("dependency payload = %s", got)
		}
	})

	t.Run("reused results are not recomputed", func(t *testing.T) {
		t.Parallel()

		r := defaultGraph()
		o := newTestOrchestrator(r)
		reuse := map[string]model.StepResult{
			"classify": {Name: "classify", Status: model.StepSucceeded, Payload: json.RawMessage(`{"cached":1}`), Attempts: 1},
			"summary":  {Name: "summary", Status: model.StepFailed},
		}

		results, err := o.Run(context.Background(), []string{"classify", "summary"}, Input{}, WithReuse(reuse))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.steps["classify"].callCount.Load() != 0 {
			t.Error("classify should come from the reuse map")
		}
		if !results[0].Cached || string(results[0].Payload) != `{"cached":1}` {
			t.Errorf("classify = %+v", results[0])
		}
		if r.steps["summary"].callCount.Load() != 1 || results[1].Cached {
			t.Errorf("failed reuse entries must be recomputed: %+v", results[1])
		}
	})

	t.Run("reused result is skipped when its dependency fails", func(t *testing.T) {
		t.Parallel()

		r := defaultGraph()
		r.steps["classify"].doFunc = func(context.Context, *Input) (json.RawMessage, error) {
			return nil, model.ErrMalformedOutput
		}
		o := newTestOrchestrator(r)
		reuse := map[string]model.StepResult{
			"summary": {Name: "summary", Status: model.StepSucceeded, Payload: json.RawMessage(`{"cached":1}`), Attempts: 1},
		}

		results, err := o.Run(context.Background(), []string{"classify", "summary"}, Input{}, WithReuse(reuse))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if results[0].Status != model.StepFailed {
			t.Fatalf("classify = %+v, want failed", results[0])
		}
		if results[1].Status != model.StepSkipped || results[1].Cached {
			t.Errorf("summary = %+v, want skipped and not cached", results[1])
		}
		if results[1].Error == nil || results[1].Error.Kind != model.KindDependencyFailed {
			t.Errorf("summary error = %+v, want dependency_failed", results[1].Error)
		}
	})

	t.Run("deadline keeps completed results", func(t *testing.T) {
		t.Parallel()

		r := defaultGraph()
		r.add("final", "summary")
		r.steps["summary"].doFunc = func(ctx context.Context, _ *Input) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		o := newTestOrchestrator(r)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		results, err := o.Run(ctx, []string{"classify", "summary", "final"}, Input{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !results[0].Succeeded() {
			t.Errorf("classify should keep its result: %+v", results[0])
		}
		if results[1].Status != model.StepFailed || results[1].Error.Kind != model.KindDeadline {
			t.Errorf("in-flight step = %+v", results[1])
		}
		if results[2].Status != model.StepSkipped || results[2].Error.Kind != model.KindDeadline {
			t.Errorf("unstarted step = %+v", results[2])
		}
		if !TimedOut(results) {
			t.Error("expected TimedOut")
		}
		if model.Overall(results) != model.StatusPartial {
			t.Errorf("expected partial, got %s", model.Overall(results))
		}
	})

	t.Run("wave concurrency is bounded", func(t *testing.T) {
		t.Parallel()

		r := newMapRegistry()
		var (
			mu        sync.Mutex
			running   int
			maxAtOnce int
		)
		work := func(context.Context, *Input) (json.RawMessage, error) {
			mu.Lock()
			running++
			if running > maxAtOnce {
				maxAtOnce = running
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
			return json.RawMessage(`{}`), nil
		}
		var steps []string
		for _, n := range []string{"a", "b", "c", "d", "e"} {
			r.add(n).doFunc = work
			steps = append(steps, n)
		}
		o := newTestOrchestrator(r, WithConcurrency(2))

		results, err := o.Run(context.Background(), steps, Input{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if model.Overall(results) != model.StatusCompleted {
			t.Errorf("expected completed, got %s", model.Overall(results))
		}
		if maxAtOnce > 2 {
			t.Errorf("expected at most 2 concurrent steps, saw %d", maxAtOnce)
		}
		if maxAtOnce < 2 {
			t.Errorf("expected steps of one wave to overlap, saw %d", maxAtOnce)
		}
	})
}

func TestTimedOut(t *testing.T) {
	t.Parallel()

	ok := []model.StepResult{{Name: "a", Status: model.StepSucceeded}}
	if TimedOut(ok) {
		t.Error("no deadline result expected")
	}
	late := append(ok, model.Skipped("b", model.KindDeadline, "late"))
	if !TimedOut(late) {
		t.Error("expected TimedOut")
	}
}
