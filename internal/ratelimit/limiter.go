package ratelimit

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nao1215/sitescope/internal/model"
)

// window is the request history of one client.
type window struct {
	mu    sync.Mutex
	times []time.Time
	limit int

	// dead is set by Sweep after the window was removed from the map.
	// A caller holding a stale pointer must look the client up again.
	dead bool
}

// prune drops timestamps at or before cutoff. Timestamps are appended in
// order, so the survivors are a suffix.
func (w *window) prune(cutoff time.Time) {
	i := 0
	for i < len(w.times) && !w.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
}

// Limiter is a per-client sliding window rate limiter.
// It is safe for concurrent use.
type Limiter struct {
	limit     int
	size      time.Duration
	overrides map[string]int
	now       func() time.Time
	logger    *slog.Logger
	onReject  func(clientID string)

	mu        sync.Mutex
	clients   map[string]*window
	lastSweep time.Time

	rejections atomic.Int64
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now. Tests use it to move time explicitly.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithOverrides sets per-client limits that replace the default limit.
func WithOverrides(overrides map[string]int) Option {
	return func(l *Limiter) {
		for id, n := range overrides {
			if n > 0 {
				l.overrides[id] = n
			}
		}
	}
}

// WithLogger sets the logger used to report rejections.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithRejectHook registers a function called for every rejected request.
func WithRejectHook(fn func(clientID string)) Option {
	return func(l *Limiter) {
		l.onReject = fn
	}
}

// New creates a Limiter that accepts limit requests per client within any
// trailing interval of length size.
func New(limit int, size time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		limit:     limit,
		size:      size,
		overrides: make(map[string]int),
		now:       time.Now,
		logger:    slog.Default(),
		clients:   make(map[string]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()
	return l
}

// Limit returns the effective limit for a client.
func (l *Limiter) Limit(clientID string) int {
	if n, ok := l.overrides[clientID]; ok {
		return n
	}
	return l.limit
}

// Window returns the window size.
func (l *Limiter) Window() time.Duration {
	return l.size
}

// Allow reports whether the client may make a request now, and records the
// request if so.
func (l *Limiter) Allow(clientID string) bool {
	w := l.lock(clientID)
	defer w.mu.Unlock()

	// Read under the window lock so timestamps are appended in order.
	now := l.now()
	w.prune(now.Add(-l.size))
	if len(w.times) >= w.limit {
		l.rejections.Add(1)
		l.logger.Debug("rate limited", "client", clientID, "limit", w.limit)
		if l.onReject != nil {
			l.onReject(clientID)
		}
		return false
	}
	w.times = append(w.times, now)
	return true
}

// Check is Allow returning a *model.RateLimitError on rejection, with the
// retry hint computed from the oldest timestamp in the window.
func (l *Limiter) Check(clientID string) error {
	if l.Allow(clientID) {
		return nil
	}
	return &model.RateLimitError{
		ClientID:   clientID,
		Limit:      l.Limit(clientID),
		RetryAfter: l.RetryAfter(clientID),
	}
}

// RemainingQuota returns how many requests the client may still make and
// when the oldest recorded request leaves the window. For a client with no
// recorded requests resetAt is now.
func (l *Limiter) RemainingQuota(clientID string) (int, time.Time) {
	w := l.lock(clientID)
	defer w.mu.Unlock()

	now := l.now()
	w.prune(now.Add(-l.size))
	remaining := w.limit - len(w.times)
	if remaining < 0 {
		remaining = 0
	}
	if len(w.times) == 0 {
		return remaining, now
	}
	return remaining, w.times[0].Add(l.size)
}

// RetryAfter returns how long the client must wait before a request would
// be accepted. It is zero when the client has quota left.
func (l *Limiter) RetryAfter(clientID string) time.Duration {
	remaining, resetAt := l.RemainingQuota(clientID)
	if remaining > 0 {
		return 0
	}
	if d := resetAt.Sub(l.now()); d > 0 {
		return d
	}
	return 0
}

// Rejections returns the number of requests denied since creation.
func (l *Limiter) Rejections() int64 {
	return l.rejections.Load()
}

// Clients returns the number of clients currently tracked.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Sweep removes clients whose windows hold no live timestamps and returns
// how many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(l.now())
}

func (l *Limiter) sweepLocked(now time.Time) int {
	cutoff := now.Add(-l.size)
	removed := 0
	for id, w := range l.clients {
		w.mu.Lock()
		w.prune(cutoff)
		if len(w.times) == 0 {
			w.dead = true
			delete(l.clients, id)
			removed++
		}
		w.mu.Unlock()
	}
	l.lastSweep = now
	return removed
}

// lock returns the client's window with its mutex held, creating the window
// if needed. It sweeps idle clients when two window lengths have passed
// since the last sweep.
func (l *Limiter) lock(clientID string) *window {
	for {
		l.mu.Lock()
		if now := l.now(); now.Sub(l.lastSweep) >= 2*l.size {
			if n := l.sweepLocked(now); n > 0 {
				l.logger.Debug("swept idle rate limit windows", "removed", n)
			}
		}
		w, ok := l.clients[clientID]
		if !ok {
			w = &window{limit: l.Limit(clientID)}
			l.clients[clientID] = w
		}
		l.mu.Unlock()

		w.mu.Lock()
		if !w.dead {
			return w
		}
		w.mu.Unlock()
	}
}
