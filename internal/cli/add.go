package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/zkapauthz/internal/voucher"
)

// AddResult is the JSON payload of the add command.
type AddResult struct {
	Number string `json:"number"`
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <voucher>",
		Short: "Record a voucher in a node's ledger",
		Long: `Record a voucher in the node's ledger without contacting the node.

Redemption starts the next time "zkapauthz serve" runs for the node. Adding a
voucher that is already recorded does nothing.`,
		Example:       `  zkapauthz add --node-dir ~/.tahoe aGVsbG8td29ybGQtdm91Y2hlci0wMDAwMDAwMDAwMDE=`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func runAdd(cmd *cobra.Command, opts *RootOptions, number string) error {
	if err := requireNodeDir(opts); err != nil {
		return err
	}
	logger := configureLogging(opts)

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	if !voucher.IsSyntactic(number) {
		_ = formatter.Error(ErrCodeInvalidVoucher, "voucher must be 44 characters of URL-safe base64", map[string]string{"voucher": number})
		return NewExitError(ExitCommandError, fmt.Sprintf("[%s] invalid voucher", ErrCodeInvalidVoucher))
	}

	ctx := cmd.Context()
	s, err := openLedger(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Add(ctx, number); err != nil {
		return WrapExitError(ExitFailure, "failed to add voucher", err)
	}
	logger.Debug("voucher recorded", "voucher", number)

	return formatter.Success(AddResult{Number: number}, fmt.Sprintf("Added voucher %s\n", number))
}
