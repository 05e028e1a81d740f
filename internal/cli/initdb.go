package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/auction-ledger/internal/library"
)

// NewInitDBCommand creates the init-db command.
func NewInitDBCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the library tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.cfg
			idx, err := library.Open(cmd.Context(), libraryConfig(cfg))
			if err != nil {
				return err
			}
			if err := idx.Close(); err != nil {
				return err
			}

			target := cfg.Library.StoreLocation
			if cfg.Library.Driver == "postgres" {
				target = "postgres"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: initialized %s\n", target)
			return nil
		},
	}
}
