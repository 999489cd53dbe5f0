package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// PassesResult is the JSON payload of the passes command.
type PassesResult struct {
	Passes    []string `json:"passes"`
	Remaining int      `json:"remaining"`
}

// PassesOptions holds flags for the passes command.
type PassesOptions struct {
	*RootOptions
	Count int
}

// NewPassesCommand creates the passes command.
func NewPassesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PassesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "passes",
		Short: "Take passes out of a node's ledger for spending",
		Long: `Remove up to --count passes from the node's ledger, oldest first, and print
them one per line. Extracted passes are gone from the ledger; fewer are
printed when fewer are available.`,
		Example: `  zkapauthz passes --node-dir ~/.tahoe --count 5
  zkapauthz passes --node-dir ~/.tahoe --count 1 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPasses(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Count, "count", 1, "number of passes to extract")

	return cmd
}

func runPasses(cmd *cobra.Command, opts *PassesOptions) error {
	if err := requireNodeDir(opts.RootOptions); err != nil {
		return err
	}
	if opts.Count < 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--count must be positive, got %d", opts.Count))
	}
	logger := configureLogging(opts.RootOptions)

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	ctx := cmd.Context()

	s, err := openLedger(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	passes, err := s.ExtractPasses(ctx, opts.Count)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to extract passes", err)
	}
	remaining, err := s.CountPasses(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to count passes", err)
	}
	logger.Debug("passes extracted", "requested", opts.Count, "extracted", len(passes), "remaining", remaining)

	result := PassesResult{Passes: make([]string, 0, len(passes)), Remaining: remaining}
	var text strings.Builder
	for _, p := range passes {
		result.Passes = append(result.Passes, p.Text)
		text.WriteString(p.Text)
		text.WriteByte('\n')
	}

	return formatter.Success(result, text.String())
}
