package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// badgerPrefix namespaces cache keys inside the Badger directory.
var badgerPrefix = []byte("cache/")

// BadgerConfig configures the Badger store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in memory. Used by tests.
	InMemory bool

	// Logger receives Badger's internal messages. Nil silences them.
	Logger *slog.Logger

	// Now overrides the clock used for expiry. Used by tests.
	Now func() time.Time
}

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// expiryHeader is the size of the expiry prefix stored before each value:
// big-endian Unix nanoseconds, zero for no expiry.
const expiryHeader = 8

// Badger is an on-disk LSM store. Each value carries its exact expiry,
// checked on read. Badger's native entry TTL, which has one-second
// resolution, is set rounded up so the LSM can drop the entry afterwards.
type Badger struct {
	db  *badger.DB
	now func() time.Time
}

// OpenBadger opens or creates a Badger store.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, ErrMissingPath
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Badger{db: db, now: now}, nil
}

func badgerKey(key string) []byte {
	return append(append([]byte{}, badgerPrefix...), key...)
}

// Get implements Store.
func (b *Badger) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var (
		value []byte
		found bool
	)
	now := b.now()
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(key))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		value, found = unwrapExpiry(raw, now)
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("badger get: %w", err)
	}
	return value, found, nil
}

// Put implements Store.
func (b *Badger) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = b.now().Add(ttl)
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(badgerKey(key), wrapExpiry(value, expiresAt))
		if ttl > 0 {
			e = e.WithTTL(nativeTTL(ttl))
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

// nativeTTL pads ttl so that Badger's second-truncated expiry never falls
// before the stored one.
func nativeTTL(ttl time.Duration) time.Duration {
	return ttl.Truncate(time.Second) + 2*time.Second
}

func wrapExpiry(value []byte, expiresAt time.Time) []byte {
	out := make([]byte, expiryHeader+len(value))
	if !expiresAt.IsZero() {
		binary.BigEndian.PutUint64(out, uint64(expiresAt.UnixNano())) //nolint:gosec // post-1970 timestamps
	}
	copy(out[expiryHeader:], value)
	return out
}

// unwrapExpiry returns the value and whether it is still live at now.
func unwrapExpiry(raw []byte, now time.Time) ([]byte, bool) {
	if len(raw) < expiryHeader {
		return nil, false
	}
	if ns := binary.BigEndian.Uint64(raw); ns != 0 && !now.Before(time.Unix(0, int64(ns))) { //nolint:gosec // written by wrapExpiry
		return nil, false
	}
	return raw[expiryHeader:], true
}

// Invalidate implements Store.
func (b *Badger) Invalidate(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// Len implements Store. Expired entries are not counted.
func (b *Badger) Len(ctx context.Context) (int, error) {
	n := 0
	now := b.now()
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(raw []byte) error {
				if _, live := unwrapExpiry(raw, now); live {
					n++
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger count: %w", err)
	}
	return n, nil
}

// Clear implements Store.
func (b *Badger) Clear(_ context.Context) error {
	if err := b.db.DropPrefix(badgerPrefix); err != nil {
		return fmt.Errorf("badger drop: %w", err)
	}
	return nil
}

// Sweep implements Sweeper. Expired entries are dropped by compaction;
// Sweep reclaims the value log space they leave behind.
func (b *Badger) Sweep(_ context.Context) error {
	return b.RunGC()
}

// RunGC reclaims value log space. It returns nil when there was nothing
// to rewrite.
func (b *Badger) RunGC() error {
	err := b.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
		return err
	}
	return nil
}

// Ping implements Store.
func (b *Badger) Ping(_ context.Context) error {
	if b.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

// Close implements Store.
func (b *Badger) Close() error {
	return b.db.Close()
}
