package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/sitescope/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "sitescope"

	// DefaultTimeout is the whole-request deadline. Four provider calls of
	// up to a minute each, two of them in parallel, fit comfortably.
	DefaultTimeout = 3 * time.Minute

	// DefaultBatchSize is the number of URLs analyzed concurrently.
	DefaultBatchSize = 4

	// DefaultRateLimit is the number of requests a client may make per window.
	DefaultRateLimit = 60

	// DefaultRateWindow is the sliding window size.
	DefaultRateWindow = time.Minute

	// DefaultCacheBackend is the in-process cache.
	DefaultCacheBackend = "memory"

	// DefaultCacheTTL is how long a full analysis result stays cached.
	DefaultCacheTTL = time.Hour

	// DefaultCacheMaxEntries bounds the in-process cache.
	DefaultCacheMaxEntries = 1000

	// DefaultCacheOpTimeout bounds a single cache operation. A backend that
	// cannot answer in time is treated as a miss.
	DefaultCacheOpTimeout = 250 * time.Millisecond

	// DefaultCacheSweepInterval is how often expired cache entries are purged.
	DefaultCacheSweepInterval = 10 * time.Minute

	// DefaultMaxURLLength is the longest URL the validator accepts.
	DefaultMaxURLLength = 2048

	// DefaultMaxContentLength is the longest page text passed to steps.
	DefaultMaxContentLength = 1_000_000

	// DefaultConcurrency bounds parallel steps within one request.
	DefaultConcurrency = 4

	// DefaultBreakerThreshold is the number of consecutive transient
	// failures that opens an endpoint's circuit.
	DefaultBreakerThreshold = 5

	// DefaultBreakerCooldown is how long an open circuit rejects calls
	// before allowing a half-open trial.
	DefaultBreakerCooldown = 30 * time.Second

	// DefaultBackoffBase is the first retry delay.
	DefaultBackoffBase = 500 * time.Millisecond

	// DefaultBackoffMax caps the retry delay.
	DefaultBackoffMax = 10 * time.Second

	// DefaultProviderName is the breaker endpoint for the language model.
	DefaultProviderName = "openai"

	// DefaultProviderModel is the chat model used when none is configured.
	DefaultProviderModel = "gpt-4o-mini"

	// DefaultProviderRPM paces outbound provider calls.
	// Zero disables pacing.
	DefaultProviderRPM = 120

	// DefaultPromptContentLimit is the number of page-text characters
	// embedded in a single prompt.
	DefaultPromptContentLimit = 4000

	// DefaultScrapeTimeout bounds a single page fetch.
	DefaultScrapeTimeout = 30 * time.Second

	// DefaultUserAgent identifies sitescope in HTTP requests.
	DefaultUserAgent = "sitescope/1.0 (+https://github.com/nao1215/sitescope)"

	// DefaultMaxBodySize limits the response body read by the scraper.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// ScrapeStep is the name of the implicit page acquisition step.
	ScrapeStep = "scrape"
)

// Step names registered by default.
const (
	StepClassify = "classify"
	StepSummary  = "summary"
	StepUXReview = "ux_review"
	StepDesign   = "design"
)

// ProviderConfig configures the language-model provider.
type ProviderConfig struct {
	// Name keys the circuit breaker shared by every step using this provider.
	Name string `yaml:"name"`

	// Model is the chat model name. It is part of every cache key.
	Model string `yaml:"model"`

	// BaseURL overrides the API endpoint (OpenAI-compatible servers).
	BaseURL string `yaml:"base_url,omitempty"`

	// APIKey is normally taken from OPENAI_API_KEY rather than the file.
	APIKey string `yaml:"api_key,omitempty"`

	// Temperature for every completion.
	Temperature float32 `yaml:"temperature"`

	// RequestsPerMinute paces outbound calls. Zero disables pacing.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// PromptContentLimit bounds the page text embedded in a prompt.
	PromptContentLimit int `yaml:"prompt_content_limit"`
}

// RateLimitConfig configures the per-client sliding window limiter.
type RateLimitConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`

	// Overrides sets a different limit for specific client identities.
	Overrides map[string]int `yaml:"overrides,omitempty"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	// Backend is one of memory, redis, sqlite or badger.
	Backend string `yaml:"backend"`

	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`

	// OpTimeout bounds every backend call.
	OpTimeout time.Duration `yaml:"op_timeout"`

	// SweepInterval is how often expired entries are purged and disk
	// space reclaimed. Zero disables the sweep.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// PerStep enables caching of individual idempotent step results.
	PerStep bool `yaml:"per_step"`

	// Dir holds the sqlite or badger files. Defaults to the XDG cache dir.
	Dir string `yaml:"dir,omitempty"`

	RedisAddr     string `yaml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`
}

// ExecutorConfig configures retries and circuit breaking.
type ExecutorConfig struct {
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	BackoffMax       time.Duration `yaml:"backoff_max"`
}

// PipelineConfig configures the orchestrator.
type PipelineConfig struct {
	// Concurrency bounds the steps running at once within a request.
	Concurrency int `yaml:"concurrency"`

	// QuickSteps is the step subset used for quick analyses.
	QuickSteps []string `yaml:"quick_steps"`

	// FullSteps is the step set used for full analyses.
	FullSteps []string `yaml:"full_steps"`
}

// ValidatorConfig configures input validation.
type ValidatorConfig struct {
	MaxURLLength     int      `yaml:"max_url_length"`
	MaxContentLength int      `yaml:"max_content_length"`
	BlockedDomains   []string `yaml:"blocked_domains,omitempty"`

	// AllowPrivate disables the private-address check. Intended for
	// local development only.
	AllowPrivate bool `yaml:"allow_private,omitempty"`
}

// ScraperConfig configures the page fetcher.
type ScraperConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	UserAgent   string        `yaml:"user_agent"`
	MaxBodySize int64         `yaml:"max_body_size"`
	MaxRetries  int           `yaml:"max_retries"`

	// Sites holds per-host cookies and headers.
	Sites HostSettings `yaml:"sites,omitempty"`
}

// Config holds all configuration options for sitescope.
// It is populated from defaults, then the YAML file, then CLI flags, and
// is passed through the application explicitly rather than as global state.
type Config struct {
	Provider  ProviderConfig         `yaml:"provider"`
	RateLimit RateLimitConfig        `yaml:"rate_limit"`
	Cache     CacheConfig            `yaml:"cache"`
	Executor  ExecutorConfig         `yaml:"executor"`
	Pipeline  PipelineConfig         `yaml:"pipeline"`
	Validator ValidatorConfig        `yaml:"validator"`
	Scraper   ScraperConfig          `yaml:"scraper"`
	Steps     []model.StepDescriptor `yaml:"steps"`

	// Timeout is the whole-request deadline.
	Timeout time.Duration `yaml:"timeout"`

	// BatchSize is the number of URLs analyzed concurrently.
	BatchSize int `yaml:"batch_size"`

	// DBDir is the directory for the results database.
	// When empty, results are not persisted.
	DBDir string `yaml:"db_dir,omitempty"`

	// The following are set from CLI flags only.

	// Verbose enables debug logging.
	Verbose bool `yaml:"-"`

	// ConfigFilePath is the configuration file that was loaded, if any.
	ConfigFilePath string `yaml:"-"`

	// ReportFormat is json, markdown or text.
	ReportFormat string `yaml:"-"`

	// ReportFile is written instead of stdout when set.
	ReportFile string `yaml:"-"`

	// Targets are the URLs to analyze.
	Targets []string `yaml:"-"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:               DefaultProviderName,
			Model:              DefaultProviderModel,
			Temperature:        0.3,
			RequestsPerMinute:  DefaultProviderRPM,
			PromptContentLimit: DefaultPromptContentLimit,
		},
		RateLimit: RateLimitConfig{
			Limit:  DefaultRateLimit,
			Window: DefaultRateWindow,
		},
		Cache: CacheConfig{
			Backend:    DefaultCacheBackend,
			TTL:        DefaultCacheTTL,
			MaxEntries: DefaultCacheMaxEntries,
			OpTimeout:  DefaultCacheOpTimeout,

			SweepInterval: DefaultCacheSweepInterval,
		},
		Executor: ExecutorConfig{
			BreakerThreshold: DefaultBreakerThreshold,
			BreakerCooldown:  DefaultBreakerCooldown,
			BackoffBase:      DefaultBackoffBase,
			BackoffMax:       DefaultBackoffMax,
		},
		Pipeline: PipelineConfig{
			Concurrency: DefaultConcurrency,
			QuickSteps:  []string{StepClassify, StepSummary},
			FullSteps:   []string{StepClassify, StepSummary, StepUXReview, StepDesign},
		},
		Validator: ValidatorConfig{
			MaxURLLength:     DefaultMaxURLLength,
			MaxContentLength: DefaultMaxContentLength,
		},
		Scraper: ScraperConfig{
			Timeout:     DefaultScrapeTimeout,
			UserAgent:   DefaultUserAgent,
			MaxBodySize: DefaultMaxBodySize,
			MaxRetries:  2,
		},
		Steps:        DefaultSteps(),
		Timeout:      DefaultTimeout,
		BatchSize:    DefaultBatchSize,
		ReportFormat: "text",
	}
}

// DefaultSteps returns the built-in step descriptors.
// summary, ux_review and design all use the classification as context.
func DefaultSteps() []model.StepDescriptor {
	return []model.StepDescriptor{
		{Name: StepClassify, Idempotent: true, MaxRetries: 2, Timeout: 30 * time.Second},
		{Name: StepSummary, DependsOn: []string{StepClassify}, Idempotent: true, MaxRetries: 2, Timeout: 45 * time.Second},
		{Name: StepUXReview, DependsOn: []string{StepClassify}, Idempotent: true, MaxRetries: 2, Timeout: 45 * time.Second},
		{Name: StepDesign, DependsOn: []string{StepClassify}, Idempotent: false, MaxRetries: 1, Timeout: 60 * time.Second},
	}
}

// ScrapeDescriptor returns the descriptor used for page acquisition.
func (c *Config) ScrapeDescriptor() model.StepDescriptor {
	return model.StepDescriptor{
		Name:       ScrapeStep,
		Idempotent: true,
		MaxRetries: c.Scraper.MaxRetries,
		Timeout:    c.Scraper.Timeout,
		Endpoint:   ScrapeStep,
	}
}

// ApplyEnv fills provider credentials from the environment.
// Values already present in the config file take precedence.
func (c *Config) ApplyEnv() {
	if c.Provider.APIKey == "" {
		c.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" && c.Provider.Model == DefaultProviderModel {
		c.Provider.Model = model
	}
}

// XDGDataDir returns the XDG data directory for sitescope.
// On Linux: ~/.local/share/sitescope
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for sitescope.
// On Linux: ~/.config/sitescope
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for sitescope.
// On Linux: ~/.cache/sitescope
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// CacheDir returns the directory for on-disk cache backends.
func (c *Config) CacheDir() string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	return XDGCacheDir()
}

// Validate checks if the configuration is valid.
// It returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	return c.ValidateRuntime()
}

// ValidateRuntime checks everything except the CLI targets. Commands that
// do not analyze URLs (stats, history) call this directly.
func (c *Config) ValidateRuntime() error {
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	switch c.ReportFormat {
	case "", "json", "markdown", "text":
	default:
		return ErrInvalidReportFormat
	}

	if c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0 {
		return ErrInvalidRateLimit
	}
	for _, limit := range c.RateLimit.Overrides {
		if limit <= 0 {
			return ErrInvalidRateLimit
		}
	}

	switch c.Cache.Backend {
	case "memory", "sqlite", "badger":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return ErrMissingRedisAddress
		}
	default:
		return ErrInvalidCacheBackend
	}

	if c.Cache.TTL <= 0 {
		return ErrInvalidCacheTTL
	}

	if c.Executor.BreakerThreshold <= 0 || c.Executor.BreakerCooldown <= 0 {
		return ErrInvalidBreaker
	}

	if c.Validator.MaxURLLength <= 0 {
		return ErrInvalidMaxURLLength
	}

	return validateSteps(c.Steps)
}

// validateSteps checks step names and timeouts. Unknown dependencies and
// cycles are reported by the orchestrator when the graph is built.
func validateSteps(steps []model.StepDescriptor) error {
	seen := make(map[string]bool, len(steps))
	for i, s := range steps {
		if s.Name == "" {
			return fmt.Errorf("%w: step #%d has no name", ErrInvalidStep, i+1)
		}
		if s.Name == ScrapeStep {
			return fmt.Errorf("%w: %q is reserved", ErrInvalidStep, s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate step %q", ErrInvalidStep, s.Name)
		}
		if s.Timeout <= 0 {
			return fmt.Errorf("%w: step %q needs a positive timeout", ErrInvalidStep, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}
