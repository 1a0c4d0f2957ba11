package trajectory_test

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/okian/liftmap/internal/domain/trajectory"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDetectFloor(t *testing.T) {
	Convey("Given the floor classifier", t, func() {
		Convey("When |z| is below the vertical threshold", func() {
			Convey("Then the current floor is kept", func() {
				for current := trajectory.MinFloor; current <= trajectory.MaxFloor; current++ {
					for _, z := range []float64{0, 0.1, -0.1, 0.49, -0.49, 0.4999999} {
						So(trajectory.DetectFloor(current, z), ShouldEqual, current)
					}
				}
			})
		})

		Convey("When z is positive and above the threshold", func() {
			Convey("Then the result never exceeds the top floor and grows with z", func() {
				for current := trajectory.MinFloor; current <= trajectory.MaxFloor; current++ {
					prev := current
					for z := 0.5; z <= 200; z += 0.25 {
						got := trajectory.DetectFloor(current, z)
						So(got, ShouldBeLessThanOrEqualTo, trajectory.MaxFloor)
						So(got, ShouldBeGreaterThanOrEqualTo, prev)
						prev = got
					}
				}
			})
		})

		Convey("When z is negative and above the threshold", func() {
			Convey("Then the result never drops below the car top", func() {
				for current := trajectory.MinFloor; current <= trajectory.MaxFloor; current++ {
					for z := -0.5; z >= -200; z -= 0.25 {
						So(trajectory.DetectFloor(current, z), ShouldBeGreaterThanOrEqualTo, trajectory.MinFloor)
					}
				}
			})
		})

		Convey("When the integrated distance is exactly half a floor", func() {
			Convey("Then it rounds away from zero", func() {
				// 3.0 m/s² * 0.5 s = 1.5 m = 0.5 floors
				So(trajectory.DetectFloor(0, 3.0), ShouldEqual, 1)
				So(trajectory.DetectFloor(5, -3.0), ShouldEqual, 4)
			})
		})

		Convey("When a single sample is large", func() {
			Convey("Then it may move several floors at once", func() {
				So(trajectory.DetectFloor(0, 12), ShouldEqual, 2)
				So(trajectory.DetectFloor(4, -18), ShouldEqual, 1)
				So(trajectory.DetectFloor(0, 100), ShouldEqual, trajectory.MaxFloor)
				So(trajectory.DetectFloor(2, -100), ShouldEqual, trajectory.MinFloor)
			})
		})

		Convey("When z is small but above the threshold", func() {
			Convey("Then the rounded change is zero", func() {
				So(trajectory.DetectFloor(3, 2.0), ShouldEqual, 3)
				So(trajectory.DetectFloor(3, -2.0), ShouldEqual, 3)
			})
		})
	})
}

func TestFloorName(t *testing.T) {
	Convey("Given floor numbers", t, func() {
		So(trajectory.FloorName(0), ShouldEqual, "Car Top (Machine Room)")
		So(trajectory.FloorName(1), ShouldEqual, "Floor 1")
		So(trajectory.FloorName(12), ShouldEqual, "Floor 12")
		So(trajectory.FloorName(13), ShouldEqual, "Unknown")
		So(trajectory.FloorName(-1), ShouldEqual, "Unknown")
	})
}

func TestEngine_AddPoint(t *testing.T) {
	Convey("Given a fresh engine", t, func() {
		e := trajectory.NewEngine()

		Convey("When a still sample is added", func() {
			s := e.AddPoint(0, 0, 0, 1000)

			Convey("Then it is recorded without a floor change", func() {
				So(s.Magnitude, ShouldEqual, 0)
				So(e.Len(), ShouldEqual, 1)
				So(e.CurrentFloor(), ShouldEqual, 0)
				So(e.Path(), ShouldBeEmpty)
			})
		})

		Convey("When an upward sample of 3 m/s² is added", func() {
			s := e.AddPoint(0, 0, 3.0, 1000)

			Convey("Then the car is on floor 1", func() {
				So(s.Floor, ShouldEqual, 1)
				So(e.CurrentFloor(), ShouldEqual, 1)
				So(e.Path(), ShouldHaveLength, 1)
				So(e.Path()[0].Floor, ShouldEqual, 1)
			})
		})

		Convey("When non-finite axes are added", func() {
			s := e.AddPoint(math.NaN(), math.Inf(1), 3, 10)

			Convey("Then they are coerced to zero", func() {
				So(s.X, ShouldEqual, 0)
				So(s.Y, ShouldEqual, 0)
				So(s.Magnitude, ShouldEqual, 3)
				So(s.Floor, ShouldEqual, 1)
			})
		})

		Convey("When 100 samples alternate between +2 and -2", func() {
			for i := 0; i < 100; i++ {
				z := 2.0
				if i%2 == 1 {
					z = -2.0
				}
				e.AddPoint(0, 0, z, int64(1000+i*100))
			}

			Convey("Then the path has fewer steps than samples", func() {
				So(len(e.Path()), ShouldBeLessThan, 100)
				So(e.Summary().TotalPoints, ShouldEqual, 100)
			})
		})

		Convey("When many random-looking samples are added", func() {
			zs := []float64{6, 6, -0.2, 12, -6, 0.3, 6, -18, 100, 100, -100, 3, -3, 3, 9}
			for i, z := range zs {
				e.AddPoint(0.1, -0.1, z, int64(i*250))
			}

			Convey("Then the trajectory never repeats a floor back to back", func() {
				path := e.Path()
				for i := 1; i < len(path); i++ {
					So(path[i].Floor, ShouldNotEqual, path[i-1].Floor)
				}
				So(e.CurrentFloor(), ShouldEqual, path[len(path)-1].Floor)
				So(e.Summary().TotalPoints, ShouldEqual, len(zs))
			})
		})
	})
}

// visitReadings moves 0 -> 1 -> 2 -> 1 -> 0.
func visitReadings() []trajectory.Reading {
	return []trajectory.Reading{
		{Z: 6, Timestamp: 1000},
		{Z: 6, Timestamp: 5000},
		{Z: -6, Timestamp: 7000},
		{Z: -6, Timestamp: 10000},
	}
}

func TestEngine_VerticalHeatmap(t *testing.T) {
	Convey("Given an empty engine", t, func() {
		e := trajectory.NewEngine()

		Convey("Then the vertical heat map still lists all 13 floors", func() {
			hm := e.VerticalHeatmap()
			So(hm, ShouldHaveLength, trajectory.FloorCount)
			for f := 0; f <= 12; f++ {
				So(hm[f].Floor, ShouldEqual, f)
				So(hm[f].Visits, ShouldEqual, 0)
				So(hm[f].LastVisit, ShouldBeNil)
			}
		})
	})

	Convey("Given a replayed visit", t, func() {
		e := trajectory.Replay(visitReadings())
		hm := e.VerticalHeatmap()

		Convey("Then dwell time accumulates per floor", func() {
			So(hm[1].Visits, ShouldEqual, 2)
			So(hm[1].Duration, ShouldEqual, 7)
			So(*hm[1].LastVisit, ShouldEqual, 7000)
			So(hm[2].Visits, ShouldEqual, 1)
			So(hm[2].Duration, ShouldEqual, 2)
		})

		Convey("And the open-ended last entry has no duration", func() {
			So(hm[0].Visits, ShouldEqual, 1)
			So(hm[0].Duration, ShouldEqual, 0)
			So(*hm[0].LastVisit, ShouldEqual, 10000)
		})

		Convey("And Floors orders by floor number", func() {
			floors := hm.Floors()
			So(floors, ShouldHaveLength, trajectory.FloorCount)
			for i, fs := range floors {
				So(fs.Floor, ShouldEqual, i)
			}
		})
	})
}

func TestEngine_WorkflowAnalysis(t *testing.T) {
	Convey("Given a replayed visit", t, func() {
		e := trajectory.Replay(visitReadings())

		Convey("Then floors are ranked by dwell time", func() {
			ranked := e.WorkflowAnalysis()
			So(ranked, ShouldHaveLength, 2)
			So(ranked[0].Floor, ShouldEqual, 1)
			So(ranked[1].Floor, ShouldEqual, 2)
		})
	})

	Convey("Given two floors with equal dwell time", t, func() {
		e := trajectory.Replay([]trajectory.Reading{
			{Z: 18, Timestamp: 1000}, // floor 3
			{Z: -6, Timestamp: 3000}, // floor 2
			{Z: -6, Timestamp: 5000}, // floor 1
		})

		Convey("Then the lower floor ranks first", func() {
			ranked := e.WorkflowAnalysis()
			So(ranked, ShouldHaveLength, 2)
			So(ranked[0].Floor, ShouldEqual, 2)
			So(ranked[1].Floor, ShouldEqual, 3)
		})
	})

	Convey("Given an empty engine", t, func() {
		So(trajectory.NewEngine().WorkflowAnalysis(), ShouldBeEmpty)
	})
}

func TestEngine_Path(t *testing.T) {
	Convey("Given a replayed visit in UTC", t, func() {
		e := trajectory.Replay(visitReadings(), trajectory.WithLocation(time.UTC))
		path := e.Path()

		Convey("Then each step carries order, name, time and dwell", func() {
			want := []trajectory.PathStep{
				{Order: 1, Floor: 1, FloorName: "Floor 1", Time: "00:00:01", Timestamp: 1000, Duration: 4},
				{Order: 2, Floor: 2, FloorName: "Floor 2", Time: "00:00:05", Timestamp: 5000, Duration: 2},
				{Order: 3, Floor: 1, FloorName: "Floor 1", Time: "00:00:07", Timestamp: 7000, Duration: 3},
				{Order: 4, Floor: 0, FloorName: "Car Top (Machine Room)", Time: "00:00:10", Timestamp: 10000, Duration: 0},
			}
			So(cmp.Diff(want, path), ShouldBeEmpty)
		})
	})
}

func TestEngine_Summary(t *testing.T) {
	Convey("Given a replayed visit", t, func() {
		e := trajectory.Replay(visitReadings())
		e.SetDuration(42)

		Convey("Then the summary counts entries and distinct floors", func() {
			want := trajectory.Summary{
				TotalPoints:   4,
				TotalFloors:   4,
				StartFloor:    1,
				EndFloor:      0,
				FloorsVisited: 3,
				Duration:      42,
			}
			So(cmp.Diff(want, e.Summary()), ShouldBeEmpty)
		})
	})
}

func TestEngine_FloorHeatmap(t *testing.T) {
	Convey("Given samples on floor 1 with horizontal motion", t, func() {
		e := trajectory.NewEngine()
		e.AddPoint(1, 0, 6, 1000)
		e.AddPoint(-2, 0.5, 0.1, 2000)
		e.AddPoint(0, 0, 0.2, 3000)

		hm := e.FloorHeatmap(1)

		Convey("Then points are normalized by the largest horizontal axis", func() {
			So(hm, ShouldHaveLength, 3)
			So(hm[0].NormalizedX, ShouldEqual, 1.125)
			So(hm[0].NormalizedY, ShouldEqual, 0.75)
			So(hm[1].NormalizedX, ShouldEqual, 0)
			So(hm[1].NormalizedY, ShouldEqual, 0.9375)
			So(hm[2].NormalizedX, ShouldEqual, 0.75)
		})

		Convey("And intensity is half the magnitude capped at 1", func() {
			So(hm[0].Intensity, ShouldEqual, 1)
			So(hm[2].Intensity, ShouldAlmostEqual, 0.1, 1e-9)
		})

		Convey("And points keep their ingestion floor after the car moves on", func() {
			e.AddPoint(0, 0, 6, 4000)
			So(e.CurrentFloor(), ShouldEqual, 2)
			So(e.FloorHeatmap(1), ShouldHaveLength, 3)
			So(e.FloorHeatmap(2), ShouldHaveLength, 1)
		})
	})

	Convey("Given samples without horizontal motion", t, func() {
		e := trajectory.NewEngine()
		e.AddPoint(0, 0, 6, 1000)
		e.AddPoint(0, 0, 0.1, 2000)

		Convey("Then every point sits at the car center", func() {
			hm := e.FloorHeatmap(1)
			So(hm, ShouldHaveLength, 2)
			for _, p := range hm {
				So(p.NormalizedX, ShouldEqual, trajectory.CarWidth/2)
				So(p.NormalizedY, ShouldEqual, trajectory.CarDepth/2)
				So(math.IsNaN(p.NormalizedX), ShouldBeFalse)
			}
		})
	})

	Convey("Given any session", t, func() {
		e := trajectory.Replay(visitReadings())

		Convey("Then an unknown floor yields no points", func() {
			So(e.FloorHeatmap(99), ShouldBeEmpty)
			So(e.FloorHeatmap(-1), ShouldBeEmpty)
		})
	})
}

func TestEngine_Visits(t *testing.T) {
	Convey("Given a session with noise before the first move", t, func() {
		e := trajectory.Replay([]trajectory.Reading{
			{Z: 0, Timestamp: 500},
			{Z: 6, Timestamp: 1000},
			{Z: 0.3, Timestamp: 2000},
			{Z: 6, Timestamp: 5000},
		})

		visits := e.Visits(8000)

		Convey("Then each residency is closed by the next one or by the session end", func() {
			So(visits, ShouldHaveLength, 2)
			So(visits[0].Floor, ShouldEqual, 1)
			So(visits[0].ExitedAt, ShouldEqual, 5000)
			So(visits[0].Duration, ShouldEqual, 4)
			So(visits[0].Samples, ShouldEqual, 2)
			So(visits[0].Intensity, ShouldAlmostEqual, 3.15, 1e-9)
			So(visits[1].ExitedAt, ShouldEqual, 8000)
			So(visits[1].Duration, ShouldEqual, 3)
			So(visits[1].Intensity, ShouldEqual, 6)
		})

		Convey("And the last residency stays open without an end", func() {
			open := e.Visits(0)
			So(open[1].ExitedAt, ShouldEqual, 0)
			So(open[1].Duration, ShouldEqual, 0)
		})
	})
}

func TestEngine_Accessors(t *testing.T) {
	Convey("Given a replayed visit", t, func() {
		e := trajectory.Replay(visitReadings())

		Convey("Then repeated reads are identical", func() {
			So(cmp.Diff(e.VerticalHeatmap(), e.VerticalHeatmap()), ShouldBeEmpty)
			So(cmp.Diff(e.FloorHeatmap(1), e.FloorHeatmap(1)), ShouldBeEmpty)
			So(cmp.Diff(e.WorkflowAnalysis(), e.WorkflowAnalysis()), ShouldBeEmpty)
			So(cmp.Diff(e.Path(), e.Path()), ShouldBeEmpty)
			So(cmp.Diff(e.Summary(), e.Summary()), ShouldBeEmpty)
		})

		Convey("Then replay matches incremental ingestion", func() {
			inc := trajectory.NewEngine()
			for _, r := range visitReadings() {
				inc.AddPoint(r.X, r.Y, r.Z, r.Timestamp)
			}
			So(cmp.Diff(inc.Snapshot(), e.Snapshot()), ShouldBeEmpty)
		})

		Convey("Then a snapshot is not affected by later ingestion", func() {
			snap := e.Snapshot()
			e.AddPoint(0, 0, 6, 20000)
			So(snap.Points, ShouldHaveLength, 4)
			So(e.Len(), ShouldEqual, 5)
		})

		Convey("When the engine is reset", func() {
			e.SetDuration(10)
			e.Reset()

			Convey("Then it behaves like a new engine", func() {
				fresh := trajectory.NewEngine()
				So(cmp.Diff(fresh.Summary(), e.Summary()), ShouldBeEmpty)
				So(e.CurrentFloor(), ShouldEqual, 0)
				So(e.Path(), ShouldBeEmpty)
			})
		})
	})
}

func TestStep(t *testing.T) {
	Convey("Given readings that climb, dwell and descend", t, func() {
		readings := []trajectory.Reading{
			{Z: 6, Timestamp: 1000},
			{X: 0.4, Y: -0.2, Z: 0.1, Timestamp: 2000},
			{Z: 12, Timestamp: 4000},
			{Z: -6, Timestamp: 9000},
			{X: 1, Z: 0, Timestamp: 9500},
		}

		Convey("When they are folded through Step one by one", func() {
			var s trajectory.State
			samples := make([]trajectory.Sample, 0, len(readings))
			for _, r := range readings {
				var sample trajectory.Sample
				s, sample = trajectory.Step(s, r.X, r.Y, r.Z, r.Timestamp)
				samples = append(samples, sample)
			}

			Convey("Then the state equals a Replay of the same readings", func() {
				So(cmp.Diff(trajectory.Replay(readings).Snapshot(), s), ShouldBeEmpty)
			})

			Convey("Then each returned sample is the stored point", func() {
				So(cmp.Diff(s.Points, samples), ShouldBeEmpty)
				So(samples[2].Floor, ShouldEqual, 3)
			})
		})

		Convey("When Step runs on a state that is kept by the caller", func() {
			before, _ := trajectory.Step(trajectory.State{}, 0, 0, 6, 1000)
			after, _ := trajectory.Step(before, 0, 0, -6, 2000)

			Convey("Then the earlier state still sees only its own points", func() {
				So(before.Points, ShouldHaveLength, 1)
				So(before.Trajectory, ShouldHaveLength, 1)
				So(before.CurrentFloor, ShouldEqual, 1)
				So(after.Points, ShouldHaveLength, 2)
				So(after.CurrentFloor, ShouldEqual, 0)
			})
		})
	})
}

func TestEngine_StageCommit(t *testing.T) {
	Convey("Given an engine with one floor change", t, func() {
		e := trajectory.NewEngine()
		e.AddPoint(0, 0, 6, 1000)
		batch := []trajectory.Reading{{Z: 6, Timestamp: 2000}, {X: 1, Timestamp: 3000}}

		Convey("When a batch is staged and discarded", func() {
			_, samples := e.Stage(batch)

			Convey("Then the engine is unchanged", func() {
				So(samples, ShouldHaveLength, 2)
				So(samples[0].Floor, ShouldEqual, 2)
				So(e.Len(), ShouldEqual, 1)
				So(e.CurrentFloor(), ShouldEqual, 1)
				So(e.Summary().TotalFloors, ShouldEqual, 1)
			})

			Convey("Then a later staging starts from the unchanged state", func() {
				next, _ := e.Stage([]trajectory.Reading{{Z: -6, Timestamp: 2500}})
				e.Commit(next)
				So(e.Len(), ShouldEqual, 2)
				So(e.CurrentFloor(), ShouldEqual, 0)
			})
		})

		Convey("When a batch is staged and committed", func() {
			next, _ := e.Stage(batch)
			e.Commit(next)

			Convey("Then the engine equals a replay of every reading", func() {
				all := append([]trajectory.Reading{{Z: 6, Timestamp: 1000}}, batch...)
				So(cmp.Diff(trajectory.Replay(all).Snapshot(), e.Snapshot()), ShouldBeEmpty)
			})
		})
	})
}
