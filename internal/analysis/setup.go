package analysis

import (
	"log/slog"

	"github.com/nao1215/sitescope/internal/cache"
	"github.com/nao1215/sitescope/internal/config"
	"github.com/nao1215/sitescope/internal/executor"
	"github.com/nao1215/sitescope/internal/metrics"
	"github.com/nao1215/sitescope/internal/provider"
	"github.com/nao1215/sitescope/internal/ratelimit"
	"github.com/nao1215/sitescope/internal/scrape"
	"github.com/nao1215/sitescope/internal/step"
)

// NewFromConfig assembles a Service from cfg: the configured cache backend,
// the registered steps backed by p, and the scraper. When m is not nil,
// cache, rate limit, step and breaker events are recorded in it.
// extra options are applied last and may replace any component.
func NewFromConfig(cfg *config.Config, p provider.Provider, m *metrics.Metrics, logger *slog.Logger, extra ...Option) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry, err := step.Build(cfg.Steps, p, cfg.Provider.PromptContentLimit, logger)
	if err != nil {
		return nil, err
	}

	var (
		cacheOpts   []cache.Option
		limiterOpts = []ratelimit.Option{
			ratelimit.WithOverrides(cfg.RateLimit.Overrides),
			ratelimit.WithLogger(logger),
		}
		execOpts = []executor.Option{
			executor.WithLogger(logger),
			executor.WithBackoff(cfg.Executor.BackoffBase, cfg.Executor.BackoffMax),
			executor.WithBreaker(cfg.Executor.BreakerThreshold, cfg.Executor.BreakerCooldown),
			executor.WithDefaultEndpoint(p.Name()),
		}
	)
	if cfg.Provider.RequestsPerMinute > 0 {
		execOpts = append(execOpts, executor.WithPacer(p.Name(), cfg.Provider.RequestsPerMinute))
	}
	if m != nil {
		cacheOpts = append(cacheOpts, cache.WithObserver(m.CacheOp))
		limiterOpts = append(limiterOpts, ratelimit.WithRejectHook(m.RateLimited))
		execOpts = append(execOpts,
			executor.WithObserver(m.StepFinished),
			executor.WithBreakerHook(m.BreakerChanged),
		)
	}

	c, err := cache.Open(cfg.Cache, cfg.CacheDir(), logger, cacheOpts...)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithLogger(logger),
		WithCache(c),
		WithLimiter(ratelimit.New(cfg.RateLimit.Limit, cfg.RateLimit.Window, limiterOpts...)),
		WithExecutor(executor.New(execOpts...)),
		WithFetcher(scrape.FromConfig(cfg.Scraper,
			scrape.WithLogger(logger),
			scrape.WithAllowPrivate(cfg.Validator.AllowPrivate),
		)),
		WithMetrics(m),
	}
	return New(cfg, registry, append(opts, extra...)...), nil
}
