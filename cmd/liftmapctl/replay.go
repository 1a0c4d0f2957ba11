package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/liftmap/internal/domain/trajectory"
	"github.com/okian/liftmap/internal/simulate"
)

func newGenerateCmd() *cobra.Command {
	var (
		seed      uint64
		stops     int
		rate      int
		startMs   int64
		printPath bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic ride as a JSON array of readings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if startMs == 0 {
				startMs = time.Now().UnixMilli()
			}
			ride := simulate.GenerateRide(seed, stops, rate, startMs)
			if printPath {
				_, err := fmt.Fprintln(cmd.ErrOrStderr(), "floors:", ride.Floors)
				if err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), ride.Readings)
		},
	}

	cmd.Flags().Uint64Var(&seed, "seed", 1, "Generator seed")
	cmd.Flags().IntVar(&stops, "stops", simulate.DefaultStops, "Floor changes in the ride")
	cmd.Flags().IntVar(&rate, "rate", simulate.DefaultRate, "Readings per second")
	cmd.Flags().Int64Var(&startMs, "start", 0, "Timestamp of the first reading in unix ms (default: now)")
	cmd.Flags().BoolVar(&printPath, "print-floors", false, "Print the generated floor sequence to stderr")
	return cmd
}

// replayOutput is what replay prints for a readings file.
type replayOutput struct {
	Summary  trajectory.Summary                    `json:"summary"`
	Path     []trajectory.PathStep                 `json:"path"`
	Analysis []trajectory.FloorStats               `json:"analysis"`
	Vertical []trajectory.FloorStats               `json:"vertical"`
	Floors   map[int][]trajectory.PositionedSample `json:"horizontal,omitempty"`
}

func newReplayCmd() *cobra.Command {
	var (
		timezone   string
		horizontal bool
	)

	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: "Replay a JSON array of readings through the trajectory engine",
		Long:  "replay reads readings from file, or stdin when file is - or omitted, and prints the summary, path, workflow analysis and vertical heat map.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := time.LoadLocation(timezone)
			if err != nil {
				return fmt.Errorf("timezone %q: %w", timezone, err)
			}

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			var readings []trajectory.Reading
			if err := json.NewDecoder(in).Decode(&readings); err != nil {
				return fmt.Errorf("decode readings: %w", err)
			}

			e := trajectory.Replay(readings, trajectory.WithLocation(loc))
			if n := len(readings); n > 1 {
				e.SetTiming(time.UnixMilli(readings[0].Timestamp), time.UnixMilli(readings[n-1].Timestamp))
			}

			out := replayOutput{
				Summary:  e.Summary(),
				Path:     e.Path(),
				Analysis: e.WorkflowAnalysis(),
				Vertical: e.VerticalHeatmap().Floors(),
			}
			if horizontal {
				// Samples taken before the first move sit on a floor the
				// path never lists, so every floor is scanned.
				out.Floors = make(map[int][]trajectory.PositionedSample)
				for f := trajectory.MinFloor; f <= trajectory.MaxFloor; f++ {
					if samples := e.FloorHeatmap(f); len(samples) > 0 {
						out.Floors[f] = samples
					}
				}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&timezone, "tz", "Local", "Time zone for path times")
	cmd.Flags().BoolVar(&horizontal, "horizontal", false, "Include per-floor horizontal heat maps")
	return cmd
}
