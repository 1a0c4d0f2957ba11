package main

import (
	"github.com/spf13/cobra"

	"github.com/okian/liftmap/internal/simulate"
	"github.com/okian/liftmap/pkg/logger"
)

func newSimulateCmd() *cobra.Command {
	cfg := simulate.Config{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Record synthetic sessions against a running service and verify the reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := simulate.NewRunner(cfg, logger.Named("simulate")).Run(cmd.Context())
			if perr := stats.Print(cmd.OutOrStdout()); perr != nil && err == nil {
				err = perr
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "Base URL of the service")
	f.IntVar(&cfg.Sessions, "sessions", simulate.DefaultSessions, "Sessions to record")
	f.IntVar(&cfg.Stops, "stops", simulate.DefaultStops, "Floor changes per session")
	f.IntVar(&cfg.Rate, "rate", simulate.DefaultRate, "Readings per second")
	f.IntVar(&cfg.BatchSize, "batch-size", simulate.DefaultBatchSize, "Readings per batch")
	f.IntVar(&cfg.Workers, "workers", simulate.DefaultWorkers, "Sessions recorded concurrently")
	f.DurationVar(&cfg.Timeout, "timeout", simulate.DefaultTimeout, "HTTP request timeout")
	f.StringVar(&cfg.ElevatorID, "elevator", simulate.DefaultElevatorID, "Elevator id")
	f.StringVar(&cfg.Technician, "technician", simulate.DefaultTechnician, "Technician name")
	f.Uint64Var(&cfg.Seed, "seed", 1, "Generator seed")
	f.Float64Var(&cfg.Retransmit, "retransmit", 0.1, "Fraction of batches sent twice")
	return cmd
}
