package simulate

import (
	"fmt"
	"math/rand/v2"

	"github.com/okian/liftmap/internal/domain/model"
	"github.com/okian/liftmap/internal/domain/trajectory"
)

// Ride shaping constants.
const (
	// zPerFloor is the vertical pulse the classifier rounds to exactly one floor.
	zPerFloor = trajectory.FloorHeight / (trajectory.FloorTransitionTime / 1000.0)
	// pulseJitter stays well inside the rounding margin of one floor.
	pulseJitter = 0.8
	// idleNoise keeps dwell readings under the vertical threshold.
	idleNoise = trajectory.VerticalThreshold * 0.8
	// horizontalNoise is the standard deviation of x and y while dwelling.
	horizontalNoise = 0.3

	minDwellSeconds = 5
	maxDwellSeconds = 45
)

// Ride is a synthetic maintenance visit.
type Ride struct {
	Readings []trajectory.Reading
	// Floors lists the floor the car is on after each stop, in order.
	Floors []int
}

// GenerateRide builds a ride of stops floor changes starting at startMs. The
// same seed always yields the same ride.
func GenerateRide(seed uint64, stops, rate int, startMs int64) Ride {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // synthetic data
	step := int64(1000 / max(rate, 1))

	var ride Ride
	ts := startMs
	current := trajectory.MinFloor

	idle := func(n int) {
		for range n {
			ride.Readings = append(ride.Readings, trajectory.Reading{
				X:         rng.NormFloat64() * horizontalNoise,
				Y:         rng.NormFloat64() * horizontalNoise,
				Z:         (rng.Float64()*2 - 1) * idleNoise,
				Timestamp: ts,
			})
			ts += step
		}
	}

	idle(rate)
	for range stops {
		target := current
		for target == current {
			target = trajectory.MinFloor + rng.IntN(trajectory.FloorCount)
		}
		delta := target - current
		z := float64(delta)*zPerFloor + (rng.Float64()*2-1)*pulseJitter
		ride.Readings = append(ride.Readings, trajectory.Reading{Z: z, Timestamp: ts})
		ts += step
		ride.Floors = append(ride.Floors, target)
		current = target

		dwell := minDwellSeconds + rng.IntN(maxDwellSeconds-minDwellSeconds+1)
		idle(dwell * rate)
	}
	return ride
}

// Batches splits readings into consecutive batches with sequential ids.
func Batches(sessionID string, readings []trajectory.Reading, size int) []model.SampleBatch {
	size = max(size, 1)
	out := make([]model.SampleBatch, 0, (len(readings)+size-1)/size)
	for i := 0; i < len(readings); i += size {
		end := min(i+size, len(readings))
		out = append(out, model.SampleBatch{
			SessionID: sessionID,
			BatchID:   fmt.Sprintf("%06d", len(out)+1),
			Readings:  readings[i:end],
		})
	}
	return out
}

