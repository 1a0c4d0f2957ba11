// Package trajectory reconstructs a floor-by-floor elevator trajectory from
// raw tri-axial accelerometer samples and derives heat-map views from it.
//
// The floor classifier is a coarse threshold-and-integration heuristic: a
// vertical acceleration above VerticalThreshold is integrated over a fixed
// FloorTransitionTime window and rounded to whole floors. It is not an
// inertial navigation system.
package trajectory

import (
	"math"
	"strconv"
	"time"
)

// Classifier constants.
const (
	// VerticalThreshold is the |z| below which a sample is treated as noise (m/s²).
	VerticalThreshold = 0.5
	// FloorTransitionTime is the fixed integration window in milliseconds.
	FloorTransitionTime = 500
	// FloorHeight is the assumed distance between floors in meters.
	FloorHeight = 3.0

	MinFloor = 0
	MaxFloor = 12
	// FloorCount is the number of addressable floors, car top included.
	FloorCount = MaxFloor - MinFloor + 1
)

// Car geometry used to project horizontal acceleration into car coordinates (meters).
const (
	CarWidth = 1.5
	CarDepth = 1.5
)

// Sample is one accelerometer reading. It is immutable once ingested.
type Sample struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Timestamp int64   `json:"timestamp"`
	Magnitude float64 `json:"magnitude"`
	// Floor is the floor detected when the sample was ingested.
	Floor int `json:"floor"`
}

// Entry records that the car was detected on Floor starting at Timestamp.
type Entry struct {
	Floor     int     `json:"floor"`
	Timestamp int64   `json:"timestamp"`
	Duration  float64 `json:"duration"`
}

// State is the session aggregate. Points and Trajectory only ever grow.
type State struct {
	Points       []Sample
	Trajectory   []Entry
	CurrentFloor int

	// Caller-owned bookkeeping; ingestion never touches these.
	Duration  float64
	StartTime time.Time
	EndTime   time.Time
}

// Reading is a raw (x, y, z, timestamp) tuple as delivered by a capture device.
type Reading struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Timestamp int64   `json:"timestamp"`
}

// DetectFloor classifies a vertical acceleration z relative to current.
//
// The distance estimate uses the fixed FloorTransitionTime window rather than
// the real inter-sample interval, so one large |z| may move several floors at
// once. Only the [MinFloor, MaxFloor] clamp bounds the jump.
func DetectFloor(current int, z float64) int {
	if math.Abs(z) < VerticalThreshold {
		return current
	}

	distance := math.Abs(z) * (FloorTransitionTime / 1000.0)
	change := int(math.Round(distance / FloorHeight))

	if z > 0 {
		return min(current+change, MaxFloor)
	}
	return max(current-change, MinFloor)
}

// NewSample builds a sample from raw axes, coercing non-finite values to 0.
func NewSample(x, y, z float64, timestamp int64) Sample {
	x, y, z = finite(x), finite(y), finite(z)
	return Sample{
		X:         x,
		Y:         y,
		Z:         z,
		Timestamp: timestamp,
		Magnitude: math.Sqrt(x*x + y*y + z*z),
	}
}

// Step folds one reading into s and returns the new state and the stored sample.
// The returned state shares backing arrays with s. Appends never overwrite
// elements visible through s, but s must not be stepped again while the
// returned state is kept.
func Step(s State, x, y, z float64, timestamp int64) (State, Sample) {
	sample := NewSample(x, y, z, timestamp)

	floor := DetectFloor(s.CurrentFloor, sample.Z)
	if floor != s.CurrentFloor {
		s.CurrentFloor = floor
		s.Trajectory = append(s.Trajectory, Entry{Floor: floor, Timestamp: timestamp})
	}
	sample.Floor = s.CurrentFloor
	s.Points = append(s.Points, sample)

	return s, sample
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// FloorName returns the display name of a floor.
func FloorName(floor int) string {
	switch {
	case floor == MinFloor:
		return "Car Top (Machine Room)"
	case floor > MinFloor && floor <= MaxFloor:
		return "Floor " + strconv.Itoa(floor)
	default:
		return "Unknown"
	}
}
