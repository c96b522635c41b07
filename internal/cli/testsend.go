package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ignite/pipeline-automation/internal/automation"
)

// TestSendOptions holds flags for the test-send command.
type TestSendOptions struct {
	*RootOptions
	RecordID string
	TestMode bool
}

// NewTestSendCommand creates the test-send command.
func NewTestSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestSendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test-send <automation-id>",
		Short: "Send one test message for an automation",
		Long: `Render and send an automation's message immediately, bypassing its trigger
and duplicate suppression. Without --record a random record is used.

Examples:
  automationctl test-send rule-42 --record loan-1001
  automationctl test-send rule-42 --test-mode`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTestSend(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.RecordID, "record", "", "record to render against (default: random)")
	cmd.Flags().BoolVar(&opts.TestMode, "test-mode", false, "redirect recipients to the configured test addresses")
	return cmd
}

func runTestSend(opts *TestSendOptions, cmd *cobra.Command, automationID string) error {
	ctx := cmd.Context()

	eng, release, err := opts.newEngine(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer release()

	rec, err := eng.RunAdHoc(ctx, automationID, automation.AdHocOptions{
		RecordID:        opts.RecordID,
		UseRandomRecord: opts.RecordID == "",
		TestMode:        opts.TestMode,
	})
	switch {
	case errors.Is(err, automation.ErrRuleNotFound):
		return NewExitError(ExitCommandError, "automation not found: "+automationID)
	case errors.Is(err, automation.ErrRecordNotFound):
		return NewExitError(ExitCommandError, "record not found")
	case err != nil:
		return WrapExitError(ExitCommandError, "test send", err)
	}

	p := printer{format: opts.Format, w: cmd.OutOrStdout()}
	if err := p.print(rec, func(w io.Writer) {
		if rec.Success {
			fmt.Fprintf(w, "Sent %q to %s (record %s)\n", rec.Subject, rec.RecipientEmail, deref(rec.RecordID, "-"))
			return
		}
		fmt.Fprintf(w, "Failed (%s): %s\n", result(*rec), rec.ErrorMessage)
	}); err != nil {
		return err
	}
	if !rec.Success {
		return NewExitError(ExitFailure, "test send failed")
	}
	return nil
}
