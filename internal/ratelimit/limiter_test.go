package ratelimit

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/sitescope/internal/model"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLimiter_LimitPlusOneRejected(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := New(3, time.Minute, WithClock(clock.Now))

	for i := range 3 {
		if !l.Allow("a") {
			t.Fatalf("call %d should be allowed", i+1)
		}
		clock.Advance(time.Second)
	}
	if l.Allow("a") {
		t.Fatal("4th call within the window should be rejected")
	}
	if l.Rejections() != 1 {
		t.Errorf("expected 1 rejection, got %d", l.Rejections())
	}

	clock.Advance(time.Minute)
	if !l.Allow("a") {
		t.Error("call after the window should be allowed")
	}
}

func TestLimiter_SlidingNotFixed(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := New(2, 10*time.Second, WithClock(clock.Now))

	l.Allow("a") // t=0
	clock.Advance(6 * time.Second)
	l.Allow("a") // t=6
	clock.Advance(4 * time.Second)

	// t=10: the first request is exactly one window old and leaves.
	if !l.Allow("a") {
		t.Fatal("expected the oldest timestamp to have expired")
	}
	// t=10: requests at 6 and 10 are still inside.
	if l.Allow("a") {
		t.Fatal("expected rejection while two requests are in the window")
	}
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := New(1, time.Minute, WithClock(clock.Now))

	if !l.Allow("a") || !l.Allow("b") {
		t.Fatal("first call of each client should be allowed")
	}
	if l.Allow("a") {
		t.Error("client a should be limited")
	}
}

func TestLimiter_Overrides(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := New(1, time.Minute, WithClock(clock.Now), WithOverrides(map[string]int{"partner": 3, "broken": 0}))

	for i := range 3 {
		if !l.Allow("partner") {
			t.Fatalf("partner call %d should be allowed", i+1)
		}
	}
	if l.Allow("partner") {
		t.Error("partner should be limited after 3 calls")
	}
	if l.Limit("broken") != 1 {
		t.Errorf("non-positive override should be ignored, got %d", l.Limit("broken"))
	}
}

func TestLimiter_RemainingQuotaAndRetryAfter(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	start := clock.Now()
	l := New(2, time.Minute, WithClock(clock.Now))

	remaining, resetAt := l.RemainingQuota("a")
	if remaining != 2 || !resetAt.Equal(start) {
		t.Errorf("fresh client: got %d, %v", remaining, resetAt)
	}

	l.Allow("a")
	clock.Advance(20 * time.Second)
	l.Allow("a")

	remaining, resetAt = l.RemainingQuota("a")
	if remaining != 0 {
		t.Errorf("expected 0 remaining, got %d", remaining)
	}
	if !resetAt.Equal(start.Add(time.Minute)) {
		t.Errorf("resetAt should follow the oldest timestamp, got %v", resetAt)
	}
	if got := l.RetryAfter("a"); got != 40*time.Second {
		t.Errorf("RetryAfter = %v, want 40s", got)
	}
	if got := l.RetryAfter("b"); got != 0 {
		t.Errorf("RetryAfter for unused client = %v, want 0", got)
	}
}

func TestLimiter_Check(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := New(1, time.Minute, WithClock(clock.Now))

	if err := l.Check("a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := l.Check("a")
	var rlErr *model.RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rlErr.ClientID != "a" || rlErr.Limit != 1 || rlErr.RetryAfter != time.Minute {
		t.Errorf("unexpected error fields: %+v", rlErr)
	}
}

func TestLimiter_RejectHook(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	l := New(1, time.Minute, WithRejectHook(func(string) { calls.Add(1) }))
	l.Allow("a")
	l.Allow("a")
	l.Allow("a")
	if calls.Load() != 2 {
		t.Errorf("expected 2 hook calls, got %d", calls.Load())
	}
}

func TestLimiter_Sweep(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := New(5, time.Minute, WithClock(clock.Now))

	l.Allow("a")
	l.Allow("b")
	clock.Advance(30 * time.Second)
	l.Allow("b")
	clock.Advance(45 * time.Second)

	if n := l.Sweep(); n != 1 {
		t.Errorf("expected 1 client swept, got %d", n)
	}
	if l.Clients() != 1 {
		t.Errorf("expected 1 client left, got %d", l.Clients())
	}

	// Lazy sweep runs once two windows have passed.
	clock.Advance(3 * time.Minute)
	l.Allow("c")
	if l.Clients() != 1 {
		t.Errorf("expected only c after lazy sweep, got %d clients", l.Clients())
	}
}

func TestLimiter_ConcurrentSameClient(t *testing.T) {
	t.Parallel()

	const limit = 50
	l := New(limit, time.Hour)

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != limit {
		t.Errorf("expected exactly %d allowed, got %d", limit, allowed.Load())
	}
	if l.Rejections() != 150 {
		t.Errorf("expected 150 rejections, got %d", l.Rejections())
	}
}

func TestLimiter_ConcurrentTimestampsStayOrdered(t *testing.T) {
	t.Parallel()

	// Every clock read returns a later instant, so any read taken outside
	// the window lock could be appended after a newer one.
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var ticks atomic.Int64
	now := func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)) * time.Microsecond)
	}

	const limit = 500
	l := New(limit, time.Hour, WithClock(now))

	var wg sync.WaitGroup
	for range limit {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Allow("shared")
		}()
	}
	wg.Wait()

	w := l.lock("shared")
	defer w.mu.Unlock()
	if len(w.times) != limit {
		t.Fatalf("recorded %d timestamps, want %d", len(w.times), limit)
	}
	for i := 1; i < len(w.times); i++ {
		if w.times[i].Before(w.times[i-1]) {
			t.Fatalf("timestamp %d (%v) precedes %d (%v)", i, w.times[i], i-1, w.times[i-1])
		}
	}
}
