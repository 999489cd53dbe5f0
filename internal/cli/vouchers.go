package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/zkapauthz/internal/nodeconfig"
	"github.com/roach88/zkapauthz/internal/store"
	"github.com/roach88/zkapauthz/internal/voucher"
)

// VouchersResult is the JSON payload of the vouchers command.
type VouchersResult struct {
	Vouchers []voucherEntry `json:"vouchers"`
	Passes   int            `json:"passes"`
}

type voucherEntry struct {
	Number   string `json:"number"`
	Redeemed bool   `json:"redeemed"`
}

// NewVouchersCommand creates the vouchers command.
func NewVouchersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vouchers",
		Short: "List the vouchers in a node's ledger",
		Long: `List every voucher recorded in the node's ledger along with its redemption
state and the number of unspent passes.`,
		Example: `  zkapauthz vouchers --node-dir ~/.tahoe
  zkapauthz vouchers --node-dir ~/.tahoe --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVouchers(cmd, rootOpts)
		},
	}
	return cmd
}

func runVouchers(cmd *cobra.Command, opts *RootOptions) error {
	if err := requireNodeDir(opts); err != nil {
		return err
	}
	configureLogging(opts)

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	ctx := cmd.Context()

	s, err := openLedger(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	vouchers, err := s.List(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list vouchers", err)
	}
	passes, err := s.CountPasses(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to count passes", err)
	}

	result := VouchersResult{Vouchers: make([]voucherEntry, 0, len(vouchers)), Passes: passes}
	for _, v := range vouchers {
		result.Vouchers = append(result.Vouchers, voucherEntry{Number: v.Number, Redeemed: v.Redeemed})
	}

	return formatter.Success(result, formatVouchers(vouchers, passes))
}

func formatVouchers(vouchers []voucher.Voucher, passes int) string {
	var b strings.Builder
	if len(vouchers) == 0 {
		b.WriteString("No vouchers.\n")
	}
	for _, v := range vouchers {
		state := "pending"
		if v.Redeemed {
			state = "redeemed"
		}
		fmt.Fprintf(&b, "%s  %s\n", v.Number, state)
	}
	fmt.Fprintf(&b, "Passes: %d\n", passes)
	return b.String()
}

// openLedger opens the ledger of the node named by --node-dir.
func openLedger(ctx context.Context, opts *RootOptions) (*store.Store, error) {
	cfg, err := nodeconfig.Load(opts.NodeDir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("[%s] failed to load node configuration", ErrCodeConfig), err)
	}
	s, err := store.FromNodeConfig(ctx, cfg, nil)
	if err != nil {
		return nil, openStoreError(err)
	}
	return s, nil
}
