package trajectory

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// pathTimeLayout formats path timestamps as local wall-clock time.
const pathTimeLayout = "15:04:05"

// PositionedSample is a sample projected into car coordinates for the
// horizontal heat map.
type PositionedSample struct {
	Sample
	NormalizedX float64 `json:"normalizedX"`
	NormalizedY float64 `json:"normalizedY"`
	// Intensity is Magnitude/2 clamped to [0, 1].
	Intensity float64 `json:"intensity"`
}

// FloorStats summarizes dwell time and visits on one floor.
type FloorStats struct {
	Floor     int     `json:"floor"`
	FloorName string  `json:"floorName"`
	Duration  float64 `json:"duration"`
	Visits    int     `json:"visits"`
	LastVisit *int64  `json:"lastVisit,omitempty"`
}

// VerticalHeatmap maps every floor in [MinFloor, MaxFloor] to its stats.
type VerticalHeatmap map[int]FloorStats

// Floors returns the stats ordered by floor number.
func (v VerticalHeatmap) Floors() []FloorStats {
	out := make([]FloorStats, 0, len(v))
	for _, fs := range v {
		out = append(out, fs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Floor < out[j].Floor })
	return out
}

// PathStep is one stop of the chronological path.
type PathStep struct {
	Order     int     `json:"order"`
	Floor     int     `json:"floor"`
	FloorName string  `json:"floorName"`
	Time      string  `json:"time"`
	Timestamp int64   `json:"timestamp"`
	Duration  float64 `json:"duration"`
}

// Summary is the session-level digest.
type Summary struct {
	TotalPoints int `json:"totalPoints"`
	// TotalFloors counts trajectory entries, not distinct floors.
	TotalFloors   int     `json:"totalFloors"`
	StartFloor    int     `json:"startFloor"`
	EndFloor      int     `json:"endFloor"`
	FloorsVisited int     `json:"floorsVisited"`
	Duration      float64 `json:"duration"`
}

// Visit is one floor residency suitable for persistence as a floor-visit record.
type Visit struct {
	Floor     int   `json:"floor"`
	EnteredAt int64 `json:"enteredAt"`
	// ExitedAt is 0 while the residency is still open.
	ExitedAt  int64   `json:"exitedAt"`
	Duration  float64 `json:"duration"`
	Samples   int     `json:"samples"`
	Intensity float64 `json:"intensity"`
}

// FloorHeatmap returns the samples ingested on floor, projected into car
// coordinates. Points are selected by the floor stored at ingestion time.
func (e *Engine) FloorHeatmap(floor int) []PositionedSample {
	var matched []Sample
	for _, p := range e.state.Points {
		if p.Floor == floor {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return []PositionedSample{}
	}

	maxAccel := 0.0
	for _, p := range matched {
		maxAccel = math.Max(maxAccel, math.Max(math.Abs(p.X), math.Abs(p.Y)))
	}

	halfW, halfD := CarWidth/2, CarDepth/2
	out := make([]PositionedSample, len(matched))
	for i, p := range matched {
		ps := PositionedSample{
			Sample:      p,
			NormalizedX: halfW,
			NormalizedY: halfD,
			Intensity:   math.Max(0, math.Min(p.Magnitude/2, 1)),
		}
		// No horizontal motion on this floor: every point sits at the car center.
		if maxAccel > 0 {
			ps.NormalizedX = (p.X/maxAccel)*halfW + halfW
			ps.NormalizedY = (p.Y/maxAccel)*halfD + halfD
		}
		out[i] = ps
	}
	return out
}

// VerticalHeatmap accumulates dwell time and visit counts per floor. The most
// recent trajectory entry is open-ended and contributes no duration.
func (e *Engine) VerticalHeatmap() VerticalHeatmap {
	heatmap := make(VerticalHeatmap, FloorCount)
	for f := MinFloor; f <= MaxFloor; f++ {
		heatmap[f] = FloorStats{Floor: f, FloorName: FloorName(f)}
	}

	traj := e.state.Trajectory
	for i, entry := range traj {
		fs := heatmap[entry.Floor]
		fs.Visits++
		ts := entry.Timestamp
		fs.LastVisit = &ts
		if i+1 < len(traj) {
			fs.Duration += seconds(traj[i+1].Timestamp - entry.Timestamp)
		}
		heatmap[entry.Floor] = fs
	}
	return heatmap
}

// WorkflowAnalysis ranks floors with recorded dwell time, longest first.
// Ties are broken by ascending floor number.
func (e *Engine) WorkflowAnalysis() []FloorStats {
	var ranked []FloorStats
	for _, fs := range e.VerticalHeatmap().Floors() {
		if fs.Duration > 0 {
			ranked = append(ranked, fs)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Duration > ranked[j].Duration
	})
	if ranked == nil {
		return []FloorStats{}
	}
	return ranked
}

// Path returns the trajectory as ordered steps.
func (e *Engine) Path() []PathStep {
	traj := e.state.Trajectory
	steps := make([]PathStep, len(traj))
	for i, entry := range traj {
		var d float64
		if i+1 < len(traj) {
			d = seconds(traj[i+1].Timestamp - entry.Timestamp)
		}
		steps[i] = PathStep{
			Order:     i + 1,
			Floor:     entry.Floor,
			FloorName: FloorName(entry.Floor),
			Time:      time.UnixMilli(entry.Timestamp).In(e.location).Format(pathTimeLayout),
			Timestamp: entry.Timestamp,
			Duration:  d,
		}
	}
	return steps
}

// Summary digests the session.
func (e *Engine) Summary() Summary {
	traj := e.state.Trajectory
	s := Summary{
		TotalPoints: len(e.state.Points),
		TotalFloors: len(traj),
		Duration:    e.state.Duration,
	}
	if len(traj) > 0 {
		s.StartFloor = traj[0].Floor
		s.EndFloor = traj[len(traj)-1].Floor
	}
	distinct := make(map[int]struct{}, len(traj))
	for _, entry := range traj {
		distinct[entry.Floor] = struct{}{}
	}
	s.FloorsVisited = len(distinct)
	return s
}

// Visits returns one record per trajectory entry. Samples are attributed to
// the residency that was open when they were ingested. The last residency is
// closed at end when end is not before its start, otherwise left open.
func (e *Engine) Visits(end int64) []Visit {
	traj := e.state.Trajectory
	visits := make([]Visit, len(traj))
	magnitudes := make([][]float64, len(traj))

	idx, prev := -1, MinFloor
	for _, p := range e.state.Points {
		if p.Floor != prev {
			idx++
			prev = p.Floor
		}
		if idx >= 0 && idx < len(traj) {
			magnitudes[idx] = append(magnitudes[idx], p.Magnitude)
		}
	}

	for i, entry := range traj {
		v := Visit{Floor: entry.Floor, EnteredAt: entry.Timestamp, Samples: len(magnitudes[i])}
		switch {
		case i+1 < len(traj):
			v.ExitedAt = traj[i+1].Timestamp
		case end >= entry.Timestamp:
			v.ExitedAt = end
		}
		if v.ExitedAt != 0 {
			v.Duration = seconds(v.ExitedAt - v.EnteredAt)
		}
		if v.Samples > 0 {
			v.Intensity = stat.Mean(magnitudes[i], nil)
		}
		visits[i] = v
	}
	return visits
}

func seconds(ms int64) float64 {
	return float64(ms) / 1000
}
