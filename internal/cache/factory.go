package cache

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/nao1215/sitescope/internal/config"
)

// Open builds the Store selected by cfg.Backend and wraps it in a Cache.
// dir holds on-disk backends.
func Open(cfg config.CacheConfig, dir string, logger *slog.Logger, opts ...Option) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case "", "memory":
		store = NewMemory(cfg.MaxEntries)
	case "redis":
		store = NewRedis(RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			IOTimeout: cfg.OpTimeout,
		})
	case "sqlite":
		store, err = OpenSQLite(dir)
	case "badger":
		store, err = OpenBadger(BadgerConfig{Path: filepath.Join(dir, "badger"), Logger: logger})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	backend := cfg.Backend
	if backend == "" {
		backend = "memory"
	}
	base := []Option{
		WithOpTimeout(cfg.OpTimeout),
		WithDefaultTTL(cfg.TTL),
		WithLogger(logger),
		WithSweepInterval(cfg.SweepInterval),
	}
	return New(store, backend, append(base, opts...)...), nil
}
