package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultOpTimeout bounds each backend call made through Cache.
const DefaultOpTimeout = 250 * time.Millisecond

// Outcome names reported to an Observer.
const (
	OutcomeHit   = "hit"
	OutcomeMiss  = "miss"
	OutcomeError = "error"
	OutcomeSet   = "set"
)

// Observer receives one call per cache operation outcome.
type Observer func(backend, outcome string)

// Stats is a snapshot of cache counters.
type Stats struct {
	Backend string  `json:"backend"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Deletes int64   `json:"deletes"`
	Errors  int64   `json:"errors"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// Cache wraps a Store with fail-fast timeouts, error-to-miss degradation
// and counters. It is safe for concurrent use.
type Cache struct {
	store      Store
	backend    string
	opTimeout  time.Duration
	defaultTTL time.Duration
	logger     *slog.Logger
	observer   Observer

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepDone     sync.WaitGroup
	closeOnce     sync.Once

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
	errors  atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithOpTimeout sets the per-operation timeout.
func WithOpTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.opTimeout = d
		}
	}
}

// WithDefaultTTL sets the TTL used when Put is called with ttl <= 0.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *Cache) {
		c.defaultTTL = d
	}
}

// WithLogger sets the logger used for degraded operations.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithObserver registers a callback for every operation outcome.
func WithObserver(o Observer) Option {
	return func(c *Cache) {
		c.observer = o
	}
}

// WithSweepInterval runs Sweep every d in the background until Close.
// It has no effect when the store does not implement Sweeper.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) {
		c.sweepInterval = d
	}
}

// New wraps store. backend names the store in stats and logs.
func New(store Store, backend string, opts ...Option) *Cache {
	c := &Cache{
		store:     store,
		backend:   backend,
		opTimeout: DefaultOpTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, ok := store.(Sweeper); ok && c.sweepInterval > 0 {
		c.stopSweep = make(chan struct{})
		c.sweepDone.Add(1)
		go c.sweepLoop()
	}
	return c
}

func (c *Cache) sweepLoop() {
	defer c.sweepDone.Done()
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			_ = c.Sweep(context.Background()) //nolint:errcheck // logged by Sweep
		}
	}
}

// Sweep removes expired entries and reclaims space when the store
// supports it. Sweeps are not bounded by the operation timeout.
func (c *Cache) Sweep(ctx context.Context) error {
	sw, ok := c.store.(Sweeper)
	if !ok {
		return nil
	}
	if err := sw.Sweep(ctx); err != nil {
		c.fail("sweep", "", err)
		return err
	}
	c.logger.Debug("cache swept", "backend", c.backend)
	return nil
}

// Backend returns the backend name.
func (c *Cache) Backend() string {
	return c.backend
}

// Get returns the value for key. Backend errors and timeouts count as
// errors and are reported as a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	value, found, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		c.fail("get", key, err)
		c.misses.Add(1)
		return nil, false
	case !found:
		c.misses.Add(1)
		c.observe(OutcomeMiss)
		return nil, false
	default:
		c.hits.Add(1)
		c.observe(OutcomeHit)
		return value, true
	}
}

// Put stores value under key. A failed write is counted, logged and
// returned; callers may ignore it.
func (c *Cache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.store.Put(ctx, key, value, ttl); err != nil {
		c.fail("put", key, err)
		return err
	}
	c.sets.Add(1)
	c.observe(OutcomeSet)
	return nil
}

// Invalidate removes key.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.store.Invalidate(ctx, key); err != nil {
		c.fail("invalidate", key, err)
		return err
	}
	c.deletes.Add(1)
	return nil
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.store.Clear(ctx); err != nil {
		c.fail("clear", "", err)
		return err
	}
	return nil
}

// Ping checks that the backend is reachable within the operation timeout.
func (c *Cache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.store.Ping(ctx)
}

// Stats returns a snapshot of the counters and the current entry count.
// When the size cannot be read it is reported as -1.
func (c *Cache) Stats(ctx context.Context) Stats {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	size, err := c.store.Len(ctx)
	if err != nil {
		c.fail("len", "", err)
		size = -1
	}

	s := Stats{
		Backend: c.backend,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Sets:    c.sets.Load(),
		Deletes: c.deletes.Load(),
		Errors:  c.errors.Load(),
		Size:    size,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// Close stops the background sweep and closes the underlying store.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		if c.stopSweep != nil {
			close(c.stopSweep)
			c.sweepDone.Wait()
		}
	})
	return c.store.Close()
}

func (c *Cache) fail(op, key string, err error) {
	c.errors.Add(1)
	c.observe(OutcomeError)
	level := slog.LevelWarn
	if errors.Is(err, context.Canceled) {
		level = slog.LevelDebug
	}
	c.logger.Log(context.Background(), level, "cache operation degraded",
		"backend", c.backend, "op", op, "cache_key", key, "error", err)
}

func (c *Cache) observe(outcome string) {
	if c.observer != nil {
		c.observer(c.backend, outcome)
	}
}
