package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/sitescope/internal/model"
)

// Default retry and breaker settings.
const (
	DefaultBackoffBase      = 500 * time.Millisecond
	DefaultBackoffMax       = 10 * time.Second
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 30 * time.Second
	DefaultEndpoint         = "default"
)

// Func performs one attempt of a step. It must honor ctx.
type Func func(ctx context.Context) (json.RawMessage, error)

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// Observer receives every finished StepResult.
type Observer func(result model.StepResult)

// Executor runs steps with timeout, retry and circuit breaking.
// It is safe for concurrent use; breakers and pacers are shared across
// requests.
type Executor struct {
	breakers        *Breakers
	backoffBase     time.Duration
	backoffMax      time.Duration
	sleep           Sleeper
	now             func() time.Time
	logger          *slog.Logger
	defaultEndpoint string
	observer        Observer

	pacersMu sync.Mutex
	pacers   map[string]*rate.Limiter
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithBackoff sets the first retry delay and the delay cap.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(e *Executor) {
		if base > 0 {
			e.backoffBase = base
		}
		if maxDelay > 0 {
			e.backoffMax = maxDelay
		}
	}
}

// WithSleeper replaces the backoff wait. Tests use it to avoid real delays.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) {
		e.sleep = s
	}
}

// WithClock replaces time.Now for durations and breaker cool-downs.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// WithBreaker sets the failure threshold and cool-down of every endpoint breaker.
func WithBreaker(threshold int, cooldown time.Duration) Option {
	return func(e *Executor) {
		if threshold > 0 {
			e.breakers.threshold = threshold
		}
		if cooldown > 0 {
			e.breakers.cooldown = cooldown
		}
	}
}

// WithBreakerHook is called on every breaker state change.
func WithBreakerHook(fn func(endpoint string, from, to State)) Option {
	return func(e *Executor) {
		e.breakers.onChange = fn
	}
}

// WithPacer limits calls to endpoint to perMinute, waited before each attempt.
func WithPacer(endpoint string, perMinute int) Option {
	return func(e *Executor) {
		if perMinute <= 0 {
			return
		}
		limit := rate.Limit(float64(perMinute) / 60.0)
		e.pacers[endpoint] = rate.NewLimiter(limit, 1)
	}
}

// WithDefaultEndpoint names the breaker used by descriptors without an Endpoint.
func WithDefaultEndpoint(name string) Option {
	return func(e *Executor) {
		if name != "" {
			e.defaultEndpoint = name
		}
	}
}

// WithObserver registers a callback for every finished step.
func WithObserver(o Observer) Option {
	return func(e *Executor) {
		e.observer = o
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		breakers:        NewBreakers(DefaultBreakerThreshold, DefaultBreakerCooldown, nil),
		backoffBase:     DefaultBackoffBase,
		backoffMax:      DefaultBackoffMax,
		sleep:           sleepContext,
		now:             time.Now,
		logger:          slog.Default(),
		defaultEndpoint: DefaultEndpoint,
		pacers:          make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.breakers.now = e.now
	return e
}

// Breakers returns the breaker registry for health reporting.
func (e *Executor) Breakers() *Breakers {
	return e.breakers
}

// Endpoint returns the breaker key used for desc.
func (e *Executor) Endpoint(desc model.StepDescriptor) string {
	if desc.Endpoint != "" {
		return desc.Endpoint
	}
	return e.defaultEndpoint
}

// Execute runs fn under desc's policy and returns the step outcome.
//
// Only transient failures are retried. Idempotent steps retry every
// transient failure; other steps retry only when the failure happened
// before the endpoint received the call. When ctx ends, the step fails
// with KindDeadline.
func (e *Executor) Execute(ctx context.Context, desc model.StepDescriptor, fn Func) model.StepResult {
	start := e.now()
	endpoint := e.Endpoint(desc)
	breaker := e.breakers.Get(endpoint)
	logger := e.logger.With("step", desc.Name, "endpoint", endpoint)

	result := model.StepResult{Name: desc.Name}
	finish := func(status model.StepStatus, payload json.RawMessage, stepErr *model.StepError) model.StepResult {
		result.Status = status
		result.Payload = payload
		result.Error = stepErr
		result.Duration = e.now().Sub(start)
		if e.observer != nil {
			e.observer(result)
		}
		return result
	}

	var lastErr *model.StepError
	for attempt := 0; attempt < desc.Attempts(); attempt++ {
		if attempt > 0 {
			delay := e.backoff(attempt - 1)
			logger.Debug("retrying step", "attempt", attempt+1, "delay", delay, "error", lastErr)
			if err := e.sleep(ctx, delay); err != nil {
				return finish(model.StepFailed, nil, deadlineError(lastErr))
			}
		}
		if ctx.Err() != nil {
			return finish(model.StepFailed, nil, deadlineError(lastErr))
		}

		allowed, release := breaker.Allow()
		if !allowed {
			openErr := &model.CircuitOpenError{Endpoint: endpoint, Until: breaker.OpenUntil()}
			logger.Warn("circuit open, step short-circuited", "until", openErr.Until)
			return finish(model.StepFailed, nil, model.StepErrorFrom(openErr))
		}

		if pacer := e.pacer(endpoint); pacer != nil {
			if err := pacer.Wait(ctx); err != nil {
				release()
				return finish(model.StepFailed, nil, deadlineError(lastErr))
			}
		}

		result.Attempts++
		payload, err := e.attempt(ctx, desc, fn)
		if err == nil {
			breaker.RecordSuccess()
			release()
			return finish(model.StepSucceeded, payload, nil)
		}

		kind := model.Classify(err)
		if ctx.Err() != nil {
			kind = model.KindDeadline
		}
		if kind == model.KindTransient {
			breaker.RecordFailure()
		}
		release()

		lastErr = &model.StepError{Kind: kind, Message: err.Error()}
		if kind != model.KindTransient {
			break
		}
		if !desc.Idempotent && !model.IsTransportFailure(err) {
			logger.Debug("not retrying non-idempotent step after the call was sent", "error", err)
			break
		}
	}

	logger.Info("step failed", "attempts", result.Attempts, "kind", lastErr.Kind, "error", lastErr.Message)
	return finish(model.StepFailed, nil, lastErr)
}

// attempt runs fn once under the per-attempt timeout. The timeout is hard:
// if fn ignores its context, attempt still returns when the timeout fires.
func (e *Executor) attempt(ctx context.Context, desc model.StepDescriptor, fn Func) (json.RawMessage, error) {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if desc.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, desc.Timeout)
	}
	defer cancel()

	type outcome struct {
		payload json.RawMessage
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("step %s panicked: %v", desc.Name, r)}
			}
		}()
		payload, err := fn(attemptCtx)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && attemptCtx.Err() != nil && ctx.Err() == nil {
			// The step reported something else while its attempt timed out.
			return nil, fmt.Errorf("attempt timed out after %s: %w", desc.Timeout, context.DeadlineExceeded)
		}
		return out.payload, out.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("attempt timed out after %s: %w", desc.Timeout, context.DeadlineExceeded)
	}
}

// backoff returns base * 2^n capped at the maximum.
func (e *Executor) backoff(n int) time.Duration {
	d := e.backoffBase
	for range n {
		d *= 2
		if d >= e.backoffMax {
			return e.backoffMax
		}
	}
	if d > e.backoffMax {
		return e.backoffMax
	}
	return d
}

func (e *Executor) pacer(endpoint string) *rate.Limiter {
	e.pacersMu.Lock()
	defer e.pacersMu.Unlock()
	return e.pacers[endpoint]
}

// deadlineError reports an expired request deadline, keeping the last
// attempt's message when there was one.
func deadlineError(last *model.StepError) *model.StepError {
	msg := "request deadline exceeded"
	if last != nil {
		msg += " after: " + last.Message
	}
	return &model.StepError{Kind: model.KindDeadline, Message: msg}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsDeadline reports whether a result failed or was skipped because the
// request deadline passed.
func IsDeadline(r model.StepResult) bool {
	return r.Error != nil && r.Error.Kind == model.KindDeadline
}
