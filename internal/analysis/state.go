package analysis

import (
	"fmt"
	"log/slog"
)

// State is a point in the life of one request.
type State int

const (
	StateReceived State = iota
	StateValidated
	StateRateChecked
	StateCacheLookup
	StateOrchestrating
	StateCacheStore
	StateDone
	StateRejected
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateValidated:
		return "validated"
	case StateRateChecked:
		return "rate_checked"
	case StateCacheLookup:
		return "cache_lookup"
	case StateOrchestrating:
		return "orchestrating"
	case StateCacheStore:
		return "cache_store"
	case StateDone:
		return "done"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateReceived:      {StateValidated, StateRejected},
	StateValidated:     {StateRateChecked, StateRejected},
	StateRateChecked:   {StateCacheLookup},
	StateCacheLookup:   {StateDone, StateOrchestrating},
	StateOrchestrating: {StateCacheStore},
	StateCacheStore:    {StateDone},
}

// strictTransitions makes an invalid transition panic instead of only
// being logged. Tests enable it.
var strictTransitions = false

// tracker records the path of one request.
type tracker struct {
	state  State
	path   []State
	logger *slog.Logger
}

func newTracker(logger *slog.Logger) *tracker {
	return &tracker{state: StateReceived, path: []State{StateReceived}, logger: logger}
}

// advance moves to next. A transition outside the table is logged, and
// the state is left unchanged.
func (t *tracker) advance(next State) {
	for _, allowed := range transitions[t.state] {
		if allowed == next {
			t.logger.Debug("request state", "from", t.state, "to", next)
			t.state = next
			t.path = append(t.path, next)
			return
		}
	}

	t.logger.Error("invalid request state transition", "from", t.state, "to", next)
	if strictTransitions {
		panic(fmt.Sprintf("analysis: invalid transition %s -> %s", t.state, next))
	}
}

// terminal reports whether the request has finished.
func (t *tracker) terminal() bool {
	return t.state == StateDone || t.state == StateRejected
}
