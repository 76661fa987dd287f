// Package governor tracks in-flight pipeline runs for health reporting.
package governor

import (
	"sync"
	"sync/atomic"
)

// State is the health state derived from the in-flight counter.
type State string

// Health states.
const (
	StateHealthy    State = "healthy"
	StateOverloaded State = "overloaded"
)

// Status is a point-in-time snapshot of the governor.
type Status struct {
	State  State
	Active int64
	Max    int64
}

// Governor is a process-wide counter of in-flight runs. It signals load; it
// never rejects work.
type Governor struct {
	active atomic.Int64
	max    int64
}

// New returns a Governor that reports overloaded above max in-flight runs.
func New(maxRuns int) *Governor {
	return &Governor{max: int64(maxRuns)}
}

// Enter counts a run as in flight and returns its release function. Calling
// release more than once has no further effect.
func (g *Governor) Enter() (release func()) {
	g.active.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { g.active.Add(-1) })
	}
}

// Current returns the number of in-flight runs.
func (g *Governor) Current() int64 {
	return g.active.Load()
}

// Max returns the configured threshold.
func (g *Governor) Max() int64 {
	return g.max
}

// Status compares the current count against the threshold.
func (g *Governor) Status() Status {
	active := g.Current()
	state := StateHealthy
	if active > g.max {
		state = StateOverloaded
	}
	return Status{State: state, Active: active, Max: g.max}
}
