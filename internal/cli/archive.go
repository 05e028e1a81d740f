package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/auction-ledger/internal/checkpoint"
)

// NewArchiveCommand creates the archive command.
func NewArchiveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <run-dir>",
		Short: "Copy a completed run into the archive bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchiver(cmd.Context(), rootOpts.cfg.Archive)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Archive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %s uploaded=%d skipped=%d\n",
				res.RunName, len(res.Uploaded), len(res.Skipped))
			return nil
		},
	}
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	var dest string

	cmd := &cobra.Command{
		Use:   "restore <run-name>",
		Short: "Download an archived run and verify it against its manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchiver(cmd.Context(), rootOpts.cfg.Archive)
			if err != nil {
				return err
			}
			defer a.Close()

			if dest == "" {
				dest = rootOpts.cfg.Capture.RawDir
			}
			runDir, err := a.Restore(cmd.Context(), args[0], dest)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: restored %s\n", runDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&dest, "dest", "", "directory to restore into (default: capture.raw_dir)")

	return cmd
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <label>",
		Short: "Show the last captured and ingested run for a label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.cfg
			if !cfg.State.Enabled {
				return fmt.Errorf("state tracking is disabled (set state.enabled)")
			}
			m, err := checkpoint.NewManager(checkpoint.Config{Enabled: true, Dir: cfg.State.Dir})
			if err != nil {
				return err
			}
			cp, err := m.Load(cmd.Context(), args[0])
			if errors.Is(err, checkpoint.ErrNoCheckpoint) {
				return fmt.Errorf("no runs recorded for label %q", args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cp)
		},
	}
}
