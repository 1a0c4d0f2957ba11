package simulate

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/okian/liftmap/internal/domain/model"
	"github.com/okian/liftmap/internal/domain/trajectory"
)

// ErrMismatch is returned when a server report disagrees with the local replay.
var ErrMismatch = errors.New("report mismatch")

// Verify replays ride locally and compares the result with report. Session
// duration and wall-clock path times depend on the server and are ignored.
func Verify(ride Ride, report model.Report) error { //nolint:gocritic // hugeParam: report is decoded once per session
	local := trajectory.Replay(ride.Readings)

	floors := make([]int, len(report.Path))
	for i, step := range report.Path {
		floors[i] = step.Floor
	}
	if !slices.Equal(floors, ride.Floors) {
		return fmt.Errorf("%w: path floors %v, generated %v", ErrMismatch, floors, ride.Floors)
	}

	checks := []struct {
		name      string
		got, want any
		opts      []cmp.Option
	}{
		{"summary", report.Summary, local.Summary(), []cmp.Option{cmpopts.IgnoreFields(trajectory.Summary{}, "Duration")}},
		{"path", report.Path, local.Path(), []cmp.Option{cmpopts.IgnoreFields(trajectory.PathStep{}, "Time")}},
		{"vertical", report.Vertical, local.VerticalHeatmap(), nil},
		{"analysis", report.Analysis, local.WorkflowAnalysis(), []cmp.Option{cmpopts.EquateEmpty()}},
	}
	for _, c := range checks {
		if diff := cmp.Diff(c.want, c.got, c.opts...); diff != "" {
			return fmt.Errorf("%w: %s (-replay +server):\n%s", ErrMismatch, c.name, diff)
		}
	}
	return nil
}
