package trajectory

import (
	"time"
)

// Engine owns the running state of one capture session.
//
// An Engine is not safe for concurrent use. Ingestion and reads on the same
// Engine must be serialized by the caller (one writer per session, or a lock
// around every call).
type Engine struct {
	state    State
	location *time.Location
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithLocation sets the time zone used to format path timestamps.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// NewEngine creates an empty engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{location: time.Local}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Replay folds readings into a fresh engine.
func Replay(readings []Reading, opts ...Option) *Engine {
	e := NewEngine(opts...)
	for _, r := range readings {
		e.AddPoint(r.X, r.Y, r.Z, r.Timestamp)
	}
	return e
}

// AddPoint ingests one reading and returns the stored sample.
func (e *Engine) AddPoint(x, y, z float64, timestamp int64) Sample {
	var sample Sample
	e.state, sample = Step(e.state, x, y, z, timestamp)
	return sample
}

// Stage folds readings into the current state and returns the result without
// changing the engine. The staged state shares backing arrays with the engine,
// so it must be committed before the next ingestion or discarded.
func (e *Engine) Stage(readings []Reading) (State, []Sample) {
	next := e.state
	samples := make([]Sample, len(readings))
	for i, r := range readings {
		next, samples[i] = Step(next, r.X, r.Y, r.Z, r.Timestamp)
	}
	return next, samples
}

// Commit installs a state produced by Stage.
func (e *Engine) Commit(s State) {
	e.state = s
}

// DetectFloor classifies z against the engine's current floor without
// changing any state.
func (e *Engine) DetectFloor(z float64) int {
	return DetectFloor(e.state.CurrentFloor, z)
}

// CurrentFloor returns the most recently detected floor.
func (e *Engine) CurrentFloor() int { return e.state.CurrentFloor }

// Len returns the number of ingested samples.
func (e *Engine) Len() int { return len(e.state.Points) }

// Transitions returns the number of trajectory entries recorded so far.
func (e *Engine) Transitions() int { return len(e.state.Trajectory) }

// SetTiming records the session start and end and derives Duration from them
// in whole seconds. A zero end leaves Duration untouched.
func (e *Engine) SetTiming(start, end time.Time) {
	e.state.StartTime = start
	e.state.EndTime = end
	if !start.IsZero() && !end.IsZero() {
		e.state.Duration = float64(int64(end.Sub(start) / time.Second))
	}
}

// SetDuration overrides the session duration in seconds.
func (e *Engine) SetDuration(seconds float64) { e.state.Duration = seconds }

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() State {
	s := e.state
	s.Points = append([]Sample(nil), e.state.Points...)
	s.Trajectory = append([]Entry(nil), e.state.Trajectory...)
	return s
}

// Reset discards all session state.
func (e *Engine) Reset() {
	e.state = State{}
}
