package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/okian/liftmap/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var logLevel, logFormat string

	rootCmd := &cobra.Command{
		Use:           "liftmapctl",
		Short:         "Operator tool for the liftmap trajectory service",
		Long:          "liftmapctl generates synthetic elevator rides, replays readings through the trajectory engine, load-tests a running service and inspects the session database.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.InitWith(cmd.ErrOrStderr(), logFormat); err != nil {
				return err
			}
			return logger.SetLevelString(logLevel)
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logger.FormatText, "Log format (text, json)")

	rootCmd.AddCommand(
		newGenerateCmd(),
		newReplayCmd(),
		newSimulateCmd(),
		newSessionsCmd(),
		newReportCmd(),
		newVisitsCmd(),
	)
	return rootCmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
