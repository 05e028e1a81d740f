package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/auction-ledger/internal/audit"
	"github.com/withObsrvr/auction-ledger/internal/capture"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <run-dir>",
		Short: "Re-hash a run's page files and compare them with RUN_META.json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := capture.VerifyRun(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d pages match %s (%d rows)\n", m.Pages, capture.ManifestName, m.TotalRows)
			return nil
		},
	}
}

// NewAuditCommand creates the audit command group.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit event log",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Recompute the audit log hash chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.cfg.Audit.Path
			n, err := audit.Verify(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d events chained in %s\n", n, path)
			return nil
		},
	})

	return cmd
}
