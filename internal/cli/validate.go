package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/auction-ledger/internal/validate"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var proofPath string

	cmd := &cobra.Command{
		Use:   "validate <run-dir>",
		Short: "Cross-check the historical snapshot against a run manifest and proof pack",
		Long: `Cross-check the historical snapshot against the run's RUN_META.json and its
proof pack. Checks run in order and stop at the first failure, which is
printed as "FAIL: <reason>" with a non-zero exit status.

Without --proof the proof pack is read from
<proof.dir>/proof_missing_tail_proxy_<label>.json.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), rootOpts, stageValidate)
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.pipeline.Validate(cmd.Context(), args[0], proofPath)
			for _, line := range report.OK {
				fmt.Fprintln(cmd.OutOrStdout(), "OK:", line)
			}

			var ce *validate.CheckError
			if errors.As(err, &ce) {
				fmt.Fprintln(cmd.ErrOrStderr(), "FAIL:", ce.Reason)
				return &reportedError{err: err}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&proofPath, "proof", "", "proof pack path (default: derived from the run label)")

	return cmd
}
