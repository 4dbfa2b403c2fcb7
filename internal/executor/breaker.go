package executor

import (
	"sort"
	"sync"
	"time"
)

// State is the state of a circuit breaker.
type State int

const (
	// StateClosed passes every call through.
	StateClosed State = iota

	// StateOpen rejects calls until the cool-down elapses.
	StateOpen

	// StateHalfOpen lets a single trial call decide between closed and open.
	StateHalfOpen
)

// String returns the state name used in logs and health reports.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker is a consecutive-failure circuit breaker for one endpoint.
//
// Only failures reported through RecordFailure move it; callers report
// transient failures there and simply release the slot for anything else.
type Breaker struct {
	endpoint  string
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	onChange  func(endpoint string, from, to State)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool // a half-open trial call is in flight

	rejections int64
}

// NewBreaker creates a closed breaker that opens after threshold
// consecutive failures and stays open for cooldown.
func NewBreaker(endpoint string, threshold int, cooldown time.Duration, now func() time.Time) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		endpoint:  endpoint,
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
	}
}

// Allow reports whether a call may proceed. When it may, the returned
// release function must be called once the outcome has been recorded.
func (b *Breaker) Allow() (bool, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, func() {}
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.rejections++
			return false, nil
		}
		b.transition(StateHalfOpen)
	}

	// Half-open: one trial at a time.
	if b.trial {
		b.rejections++
		return false, nil
	}
	b.trial = true
	return true, func() {
		b.mu.Lock()
		b.trial = false
		b.mu.Unlock()
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

// RecordFailure counts a transient failure. A failed half-open trial
// reopens the breaker immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	switch b.state {
	case StateClosed:
		if b.failures >= b.threshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

// State returns the current state, reporting an open breaker whose
// cool-down has elapsed as half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// OpenUntil returns when an open breaker will admit a trial call.
func (b *Breaker) OpenUntil() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openedAt.Add(b.cooldown)
}

// Rejections returns how many calls the breaker has short-circuited.
func (b *Breaker) Rejections() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejections
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.failures = 0
	if to == StateOpen {
		b.openedAt = b.now()
	}
	if b.onChange != nil && from != to {
		b.onChange(b.endpoint, from, to)
	}
}

// Breakers holds one Breaker per endpoint, created on first use.
type Breakers struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	onChange  func(endpoint string, from, to State)

	mu sync.Mutex
	m  map[string]*Breaker
}

// NewBreakers creates an empty registry with shared settings.
func NewBreakers(threshold int, cooldown time.Duration, now func() time.Time) *Breakers {
	return &Breakers{
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
		m:         make(map[string]*Breaker),
	}
}

// Get returns the endpoint's breaker.
func (r *Breakers) Get(endpoint string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.m[endpoint]
	if !ok {
		b = NewBreaker(endpoint, r.threshold, r.cooldown, r.now)
		b.onChange = r.onChange
		r.m[endpoint] = b
	}
	return b
}

// States returns the state of every known endpoint, sorted by name.
func (r *Breakers) States() []EndpointState {
	r.mu.Lock()
	endpoints := make([]string, 0, len(r.m))
	breakers := make(map[string]*Breaker, len(r.m))
	for name, b := range r.m {
		endpoints = append(endpoints, name)
		breakers[name] = b
	}
	r.mu.Unlock()

	sort.Strings(endpoints)
	out := make([]EndpointState, 0, len(endpoints))
	for _, name := range endpoints {
		b := breakers[name]
		out = append(out, EndpointState{Endpoint: name, State: b.State().String(), Rejections: b.Rejections()})
	}
	return out
}

// EndpointState is a breaker snapshot for health reporting.
type EndpointState struct {
	Endpoint   string `json:"endpoint"`
	State      string `json:"state"`
	Rejections int64  `json:"rejections"`
}
