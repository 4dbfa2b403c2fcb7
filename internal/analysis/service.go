package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/sitescope/internal/cache"
	"github.com/nao1215/sitescope/internal/config"
	"github.com/nao1215/sitescope/internal/executor"
	"github.com/nao1215/sitescope/internal/metrics"
	"github.com/nao1215/sitescope/internal/model"
	"github.com/nao1215/sitescope/internal/pipeline"
	"github.com/nao1215/sitescope/internal/ratelimit"
	"github.com/nao1215/sitescope/internal/scrape"
	"github.com/nao1215/sitescope/internal/validate"
)

// sinkTimeout bounds a single SaveResult call.
const sinkTimeout = 5 * time.Second

// Fetcher acquires the page for a URL. *scrape.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*model.Page, error)
}

// ResultSink stores finished results. It is write-only from the Service's
// point of view; a failed write is logged and does not fail the request.
type ResultSink interface {
	SaveResult(ctx context.Context, result *model.AnalysisResult) error
}

// pinger is implemented by collaborators that can report readiness.
type pinger interface {
	Ping(ctx context.Context) error
}

// Service analyzes URLs. It is safe for concurrent use.
type Service struct {
	cfg          *config.Config
	validator    *validate.Validator
	limiter      *ratelimit.Limiter
	cache        *cache.Cache
	exec         *executor.Executor
	orchestrator *pipeline.Orchestrator
	fetcher      Fetcher
	sink         ResultSink
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string

	requests  atomic.Int64
	rejected  atomic.Int64
	lookups   atomic.Int64
	cacheHits atomic.Int64

	mu    sync.Mutex
	steps map[string]*stepCounter
}

type stepCounter struct {
	total, succeeded, failed, skipped int64
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithValidator replaces the validator built from the config.
func WithValidator(v *validate.Validator) Option {
	return func(s *Service) {
		s.validator = v
	}
}

// WithLimiter replaces the rate limiter built from the config.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *Service) {
		s.limiter = l
	}
}

// WithCache replaces the in-process cache built from the config.
// The Service closes it on Close.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithExecutor replaces the executor built from the config.
func WithExecutor(e *executor.Executor) Option {
	return func(s *Service) {
		s.exec = e
	}
}

// WithFetcher replaces the HTTP scraper.
func WithFetcher(f Fetcher) Option {
	return func(s *Service) {
		s.fetcher = f
	}
}

// WithSink forwards every finished result to sink.
func WithSink(sink ResultSink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

// WithMetrics records request outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator sets the function generating result IDs.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// New creates a Service running the steps in registry. Components not
// supplied as options are built from cfg.
func New(cfg *config.Config, registry pipeline.Registry, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
		steps:  make(map[string]*stepCounter),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.validator == nil {
		s.validator = validate.New(
			validate.WithLogger(s.logger),
			validate.WithMaxURLLength(cfg.Validator.MaxURLLength),
			validate.WithMaxContentLength(cfg.Validator.MaxContentLength),
			validate.WithBlockedDomains(cfg.Validator.BlockedDomains),
			validate.WithAllowPrivate(cfg.Validator.AllowPrivate),
		)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.New(cfg.RateLimit.Limit, cfg.RateLimit.Window,
			ratelimit.WithOverrides(cfg.RateLimit.Overrides),
			ratelimit.WithLogger(s.logger),
		)
	}
	if s.cache == nil {
		s.cache = cache.New(cache.NewMemory(cfg.Cache.MaxEntries), config.DefaultCacheBackend,
			cache.WithDefaultTTL(cfg.Cache.TTL),
			cache.WithOpTimeout(cfg.Cache.OpTimeout),
			cache.WithLogger(s.logger),
		)
	}
	if s.exec == nil {
		s.exec = executor.New(
			executor.WithLogger(s.logger),
			executor.WithBackoff(cfg.Executor.BackoffBase, cfg.Executor.BackoffMax),
			executor.WithBreaker(cfg.Executor.BreakerThreshold, cfg.Executor.BreakerCooldown),
		)
	}
	if s.fetcher == nil {
		s.fetcher = scrape.FromConfig(cfg.Scraper,
			scrape.WithLogger(s.logger),
			scrape.WithAllowPrivate(cfg.Validator.AllowPrivate),
		)
	}

	s.orchestrator = pipeline.New(registry, s.exec,
		pipeline.WithLogger(s.logger),
		pipeline.WithConcurrency(cfg.Pipeline.Concurrency),
	)
	return s
}

// Analyze runs req through the pipeline.
//
// A request rejected by validation returns a *model.ValidationError, and
// one rejected by the rate limiter returns a *model.RateLimitError. Step
// failures never produce an error; they are reported in the result.
func (s *Service) Analyze(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error) {
	start := s.now()
	s.requests.Add(1)
	logger := s.logger.With("client", req.Client())
	t := newTracker(logger)

	normalized, err := s.validator.Validate(ctx, req.URL, req.Content)
	if err != nil {
		return nil, s.reject(t, start, err)
	}
	names := s.stepNames(req)
	plan, err := s.orchestrator.Plan(names)
	if err != nil {
		return nil, s.reject(t, start, planError(err))
	}
	t.advance(StateValidated)

	if err := s.limiter.Check(req.Client()); err != nil {
		return nil, s.reject(t, start, err)
	}
	t.advance(StateRateChecked)

	echo := req
	echo.URL = normalized.URL
	echo.Steps = names
	key := s.resultKey(normalized, plan.Order)

	t.advance(StateCacheLookup)
	if !req.NoCache {
		if result, ok := s.cached(ctx, key); ok {
			result.ID = s.newID()
			result.Request = echo
			result.CacheHit = true
			result.Duration = s.now().Sub(start)
			t.advance(StateDone)
			logger.Info("analysis served from cache", "url", normalized.URL, "id", result.ID)
			s.finish(ctx, result)
			return result, nil
		}
	}

	t.advance(StateOrchestrating)
	result := s.orchestrate(ctx, req, normalized, plan)
	result.ID = s.newID()
	result.Request = echo
	result.CreatedAt = start
	result.Duration = s.now().Sub(start)

	t.advance(StateCacheStore)
	if !req.NoCache && result.Status == model.StatusCompleted {
		s.store(ctx, key, result)
	}
	t.advance(StateDone)

	logger.Info("analysis finished",
		"url", normalized.URL,
		"id", result.ID,
		"status", result.Status,
		"timed_out", result.TimedOut,
		"duration", result.Duration,
	)
	s.finish(ctx, result)
	return result, nil
}

// QuickAnalyze analyzes url with the quick step set.
func (s *Service) QuickAnalyze(ctx context.Context, url, clientID string) (*model.AnalysisResult, error) {
	return s.Analyze(ctx, model.AnalysisRequest{
		URL:      url,
		Depth:    model.DepthQuick,
		ClientID: clientID,
	})
}

// stepNames returns the explicit steps of req, or the set for its depth.
func (s *Service) stepNames(req model.AnalysisRequest) []string {
	switch {
	case len(req.Steps) > 0:
		return slices.Clone(req.Steps)
	case req.Depth == model.DepthQuick:
		return slices.Clone(s.cfg.Pipeline.QuickSteps)
	default:
		return slices.Clone(s.cfg.Pipeline.FullSteps)
	}
}

// planError maps a planning failure to the error returned to the caller.
func planError(err error) error {
	if errors.Is(err, model.ErrUnknownStep) {
		return &model.ValidationError{Rule: model.RuleUnknownStep, Detail: err.Error()}
	}
	return fmt.Errorf("%w: %w", ErrInvalidPlan, err)
}

func (s *Service) reject(t *tracker, start time.Time, err error) error {
	t.advance(StateRejected)
	s.rejected.Add(1)
	if s.metrics != nil {
		s.metrics.RequestFinished(StateRejected.String(), false, s.now().Sub(start))
	}
	t.logger.Info("request rejected", "error", err)
	return err
}

// orchestrate acquires the page and runs the planned steps under the
// request deadline.
func (s *Service) orchestrate(ctx context.Context, req model.AnalysisRequest, nr model.NormalizedRequest, plan *pipeline.Plan) *model.AnalysisResult {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := &model.AnalysisResult{Warnings: slices.Clone(nr.Warnings)}

	page, scraped := s.acquire(ctx, nr)
	if page == nil {
		result.Steps = make([]model.StepResult, 0, len(plan.Order))
		for _, name := range plan.Order {
			dep := &model.DependencyFailedError{Step: name, Dependency: config.ScrapeStep}
			result.Steps = append(result.Steps, model.Skipped(name, model.KindDependencyFailed, dep.Error()))
		}
		result.Warnings = append(result.Warnings, "page acquisition failed: "+scraped.Error.Error())
		result.TimedOut = executor.IsDeadline(scraped)
		result.Status = model.Overall(result.Steps)
		s.count(result.Steps)
		return result
	}
	result.Page = page.Summary()

	var opts []pipeline.RunOption
	if s.cfg.Cache.PerStep && !req.NoCache {
		if reuse := s.reusable(ctx, nr, page, plan); len(reuse) > 0 {
			opts = append(opts, pipeline.WithReuse(reuse))
		}
	}

	steps, err := s.orchestrator.Run(ctx, plan.Order, pipeline.Input{Request: nr, Page: page}, opts...)
	if err != nil {
		// The plan was built from the same names, so this is a registry bug.
		s.logger.Error("orchestration failed", "url", nr.URL, "error", err)
		steps = make([]model.StepResult, 0, len(plan.Order))
		for _, name := range plan.Order {
			steps = append(steps, model.StepResult{
				Name:   name,
				Status: model.StepFailed,
				Error:  &model.StepError{Kind: model.KindInternal, Message: err.Error()},
			})
		}
	}

	if s.cfg.Cache.PerStep && !req.NoCache {
		s.storeSteps(ctx, nr, page, plan, steps)
	}

	result.Steps = steps
	result.Status = model.Overall(steps)
	result.TimedOut = pipeline.TimedOut(steps)
	s.count(steps)
	return result
}

// acquire returns the page for nr: the caller's content when supplied,
// otherwise a scrape run under the executor. On failure the page is nil
// and the scrape result says why.
func (s *Service) acquire(ctx context.Context, nr model.NormalizedRequest) (*model.Page, model.StepResult) {
	if nr.Content != "" {
		page := &model.Page{
			URL:         nr.URL,
			ContentType: "text/plain",
			Content:     nr.Content,
			FetchedAt:   s.now(),
		}
		page.ComputeHash([]byte(nr.Content))
		return page, model.StepResult{Name: config.ScrapeStep, Status: model.StepSucceeded}
	}

	var fetched atomic.Pointer[model.Page]
	res := s.exec.Execute(ctx, s.cfg.ScrapeDescriptor(), func(ctx context.Context) (json.RawMessage, error) {
		page, err := s.fetcher.Fetch(ctx, nr.URL)
		if err != nil {
			return nil, err
		}
		fetched.Store(page)
		return json.Marshal(struct {
			StatusCode    int    `json:"status_code"`
			ContentLength int    `json:"content_length"`
			Hash          string `json:"hash"`
		}{page.StatusCode, len(page.Content), page.Hash})
	})
	if !res.Succeeded() {
		s.logger.Warn("page acquisition failed", "url", nr.URL, "kind", res.Error.Kind, "error", res.Error.Message)
		return nil, res
	}

	page := fetched.Load()
	content, warnings := s.validator.SanitizeContent(page.Content)
	if len(warnings) > 0 {
		s.logger.Debug("scraped content sanitized", "url", nr.URL, "warnings", warnings)
	}
	page.Content = content
	return page, res
}

// resultKey derives the whole-result cache key. It covers everything that
// changes the result: URL, model, step set and caller content.
func (s *Service) resultKey(nr model.NormalizedRequest, steps []string) string {
	sorted := slices.Clone(steps)
	slices.Sort(sorted)
	return cache.Key("result", nr.URL, s.cfg.Provider.Model, strings.Join(sorted, ","), nr.Content)
}

// stepKey derives the per-step cache key. The page hash ties the entry
// to the exact content the step saw.
func (s *Service) stepKey(nr model.NormalizedRequest, page *model.Page, name string) string {
	return cache.Key("step", nr.URL, s.cfg.Provider.Model, name, page.Hash)
}

func (s *Service) cached(ctx context.Context, key string) (*model.AnalysisResult, bool) {
	s.lookups.Add(1)
	data, ok := s.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var result model.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		s.logger.Warn("discarding undecodable cache entry", "cache_key", key, "error", err)
		_ = s.cache.Invalidate(ctx, key) //nolint:errcheck // logged by the cache
		return nil, false
	}
	s.cacheHits.Add(1)
	return &result, true
}

func (s *Service) store(ctx context.Context, key string, result *model.AnalysisResult) {
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("cannot encode result for cache", "id", result.ID, "error", err)
		return
	}
	_ = s.cache.Put(context.WithoutCancel(ctx), key, data, s.cfg.Cache.TTL) //nolint:errcheck // logged by the cache
}

// reusable returns the cached results of idempotent planned steps.
func (s *Service) reusable(ctx context.Context, nr model.NormalizedRequest, page *model.Page, plan *pipeline.Plan) map[string]model.StepResult {
	reuse := make(map[string]model.StepResult)
	for _, name := range plan.Order {
		if !plan.Descriptor(name).Idempotent {
			continue
		}
		data, ok := s.cache.Get(ctx, s.stepKey(nr, page, name))
		if !ok {
			continue
		}
		var r model.StepResult
		if json.Unmarshal(data, &r) == nil && r.Succeeded() {
			reuse[name] = r
		}
	}
	return reuse
}

// storeSteps caches fresh successful results of idempotent steps.
func (s *Service) storeSteps(ctx context.Context, nr model.NormalizedRequest, page *model.Page, plan *pipeline.Plan, steps []model.StepResult) {
	ctx = context.WithoutCancel(ctx)
	for _, r := range steps {
		if !r.Succeeded() || r.Cached || !plan.Descriptor(r.Name).Idempotent {
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			continue
		}
		_ = s.cache.Put(ctx, s.stepKey(nr, page, r.Name), data, s.cfg.Cache.TTL) //nolint:errcheck // logged by the cache
	}
}

// count records freshly executed steps for Stats.
func (s *Service) count(steps []model.StepResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range steps {
		if r.Cached {
			continue
		}
		c, ok := s.steps[r.Name]
		if !ok {
			c = &stepCounter{}
			s.steps[r.Name] = c
		}
		c.total++
		switch r.Status {
		case model.StepSucceeded:
			c.succeeded++
		case model.StepFailed:
			c.failed++
		case model.StepSkipped:
			c.skipped++
		}
	}
}

// finish records the request outcome and forwards the result to the sink.
func (s *Service) finish(ctx context.Context, result *model.AnalysisResult) {
	if s.metrics != nil {
		s.metrics.RequestFinished(string(result.Status), result.CacheHit, result.Duration)
	}
	if s.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	if err := s.sink.SaveResult(ctx, result); err != nil {
		s.logger.Warn("failed to persist result", "id", result.ID, "url", result.Request.URL, "error", err)
	}
}

// InvalidateURL removes the cached quick and full results for rawURL.
// Results for custom step sets or caller content, and per-step entries,
// expire with their TTL.
func (s *Service) InvalidateURL(ctx context.Context, rawURL string) error {
	normalized, err := s.validator.NormalizeURL(ctx, rawURL)
	if err != nil {
		return err
	}
	nr := model.NormalizedRequest{URL: normalized}

	var errs []error
	for _, names := range [][]string{s.cfg.Pipeline.QuickSteps, s.cfg.Pipeline.FullSteps} {
		plan, err := s.orchestrator.Plan(names)
		if err != nil {
			continue
		}
		if err := s.cache.Invalidate(ctx, s.resultKey(nr, plan.Order)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClearCache removes every cached entry.
func (s *Service) ClearCache(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

// Close releases the cache.
func (s *Service) Close() error {
	return s.cache.Close()
}
