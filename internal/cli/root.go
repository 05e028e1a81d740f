// Package cli implements the auction-ledger command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/auction-ledger/internal/config"
	"github.com/withObsrvr/auction-ledger/internal/logging"
	"github.com/withObsrvr/auction-ledger/internal/metrics"
	"github.com/withObsrvr/auction-ledger/internal/pipeline"
)

// RootOptions holds global flags and the state loaded from them.
type RootOptions struct {
	ConfigPath string

	cfg     config.Config
	metrics *metrics.Metrics
}

// reportedError marks a failure the command already printed.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "auction-ledger",
		Short:         "Capture, normalize and verify Treasury auction results",
		Long:          "Captures Treasury auction results from FiscalData into immutable run directories,\nmerges them into a relational index and a historical parquet snapshot, and\ncross-checks the snapshot against run manifests and proof packs.",
		Version:       fmt.Sprintf("%s (%s)", pipeline.Version, pipeline.GitSHA),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			logging.Setup(logging.Config{Format: cfg.Log.Format, Level: cfg.Log.Level})

			if cfg.Metrics.Enabled {
				opts.metrics = metrics.Init("auction_ledger")
				go func() {
					if err := opts.metrics.StartServer(cfg.Metrics.Address); err != nil {
						slog.Warn("metrics server stopped", "address", cfg.Metrics.Address, "error", err)
					}
				}()
				slog.Info("metrics server started", "address", cfg.Metrics.Address)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file (env overrides still apply)")

	cmd.AddCommand(NewCaptureCommand(opts))
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewInitDBCommand(opts))
	cmd.AddCommand(NewArchiveCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))

	return cmd
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
		}
		return 1
	}
	return 0
}
