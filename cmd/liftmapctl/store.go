package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/liftmap/internal/adapters/repository"
	"github.com/okian/liftmap/internal/domain/trajectory"
	"github.com/okian/liftmap/pkg/logger"
)

const defaultDBPath = "liftmap.db"

// openStore opens an existing database. A missing file is an error rather
// than an empty new database.
func openStore(ctx context.Context, path string) (*repository.SQLiteStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database %s: %w", path, err)
	}
	return repository.NewSQLiteStore(ctx, path, repository.WithLogger(logger.Named("store")))
}

func newSessionsCmd() *cobra.Command {
	var (
		dbPath string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), sessions)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tELEVATOR\tTECHNICIAN\tSTATUS\tSTARTED\tENDED")
			for _, s := range sessions {
				ended := "-"
				if s.EndedAt != nil {
					ended = s.EndedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					s.ID, s.ElevatorID, s.Technician, s.Status, s.StartedAt.Format(time.RFC3339), ended)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", defaultDBPath, "Path to the SQLite database")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}

func newVisitsCmd() *cobra.Command {
	var (
		dbPath string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "visits <session-id>",
		Short: "List the floor visits recorded when a session finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if _, err := store.GetSession(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return fmt.Errorf("unknown session %s", args[0])
				}
				return err
			}
			visits, err := store.Visits(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), visits)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FLOOR\tENTERED\tEXITED\tDURATION\tSAMPLES\tINTENSITY")
			for _, v := range visits {
				exited := "-"
				if v.ExitedAt != 0 {
					exited = time.UnixMilli(v.ExitedAt).UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.1fs\t%d\t%.2f\n",
					trajectory.FloorName(v.Floor), time.UnixMilli(v.EnteredAt).UTC().Format(time.RFC3339),
					exited, v.Duration, v.Samples, v.Intensity)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", defaultDBPath, "Path to the SQLite database")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}

func newReportCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "report <session-id>",
		Short: "Print the stored report of a finished session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			r, err := store.GetReport(cmd.Context(), args[0])
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("no report for session %s (is it finished?)", args[0])
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), r)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", defaultDBPath, "Path to the SQLite database")
	return cmd
}
