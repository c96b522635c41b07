package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ignite/pipeline-automation/internal/domain"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit  int
	Offset int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <automation-id>",
		Short: "Show execution history for an automation, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum rows (0 uses the configured default)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "rows to skip")
	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command, automationID string) error {
	if opts.Limit < 0 || opts.Offset < 0 {
		return NewExitError(ExitCommandError, "--limit and --offset must be non-negative")
	}
	ctx := cmd.Context()

	eng, release, err := opts.newEngine(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer release()

	records, err := eng.ListExecutionHistory(ctx, automationID, opts.Limit, opts.Offset)
	if err != nil {
		return WrapExitError(ExitCommandError, "list history", err)
	}

	p := printer{format: opts.Format, w: cmd.OutOrStdout()}
	return p.print(records, func(w io.Writer) {
		if len(records) == 0 {
			fmt.Fprintf(w, "No executions for %s\n", automationID)
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "EXECUTED\tRECORD\tRESULT\tRECIPIENT\tTEST\tSUBJECT")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\t%s\n",
				r.ExecutedAt.Format("2006-01-02 15:04:05"),
				deref(r.RecordID, "-"),
				result(r),
				r.RecipientEmail,
				r.IsTestMode,
				r.Subject)
		}
		tw.Flush()
	})
}

func result(r domain.ExecutionRecord) string {
	if r.Success {
		return "sent"
	}
	if r.ErrorKind != nil {
		return string(*r.ErrorKind)
	}
	return "failed"
}

func deref(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
