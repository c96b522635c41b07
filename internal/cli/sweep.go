package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignite/pipeline-automation/internal/domain"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions
	Date string
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the date-trigger sweep for one business day",
		Long: `Evaluate every active date-offset automation against the given business
day (default: today in the configured time zone). Sweeping a day twice is
safe; already-sent messages are skipped.

Examples:
  automationctl sweep
  automationctl sweep --date 2026-03-11 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "business day to sweep (YYYY-MM-DD)")
	return cmd
}

func runSweep(opts *SweepOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	eng, release, err := opts.newEngine(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer release()

	asOf := time.Now()
	if opts.Date != "" {
		asOf, err = time.ParseInLocation(domain.DateLayout, opts.Date, eng.Location())
		if err != nil {
			return NewExitError(ExitCommandError, "--date must be YYYY-MM-DD")
		}
	}

	report, err := eng.SweepDateTriggers(ctx, asOf)
	if err != nil {
		return WrapExitError(ExitCommandError, "sweep", err)
	}

	p := printer{format: opts.Format, w: cmd.OutOrStdout()}
	if err := p.print(report, func(w io.Writer) {
		fmt.Fprintf(w, "Sweep %s: %d rules, %d candidates\n", report.Date, report.Rules, report.Candidates)
		fmt.Fprintf(w, "  sent=%d failed=%d duplicates=%d errors=%d\n", report.Sent, report.Failed, report.Duplicates, report.Errors)
	}); err != nil {
		return err
	}
	if report.Failed > 0 || report.Errors > 0 {
		return NewExitError(ExitFailure, "sweep completed with failures")
	}
	return nil
}
