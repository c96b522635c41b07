// Package cli implements automationctl, the operator command line for the
// automation engine.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignite/pipeline-automation/internal/app"
	"github.com/ignite/pipeline-automation/internal/automation"
	"github.com/ignite/pipeline-automation/internal/config"
	"github.com/ignite/pipeline-automation/internal/domain"
)

// Engine is the part of the automation engine the commands drive.
type Engine interface {
	RunAdHoc(ctx context.Context, automationID string, opts automation.AdHocOptions) (*domain.ExecutionRecord, error)
	ListExecutionHistory(ctx context.Context, automationID string, limit, offset int) ([]domain.ExecutionRecord, error)
	SweepDateTriggers(ctx context.Context, asOf time.Time) (*automation.SweepReport, error)
	Location() *time.Location
}

// EngineFactory opens an engine for one command; release is called when the
// command finishes.
type EngineFactory func(ctx context.Context, opts *RootOptions) (eng Engine, release func(), err error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	Verbose    bool

	newEngine EngineFactory
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command backed by the configured database.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(openEngine)
}

// NewRootCommandWith creates the root command with a custom engine source.
func NewRootCommandWith(factory EngineFactory) *cobra.Command {
	opts := &RootOptions{newEngine: factory}

	cmd := &cobra.Command{
		Use:   "automationctl",
		Short: "Operate loan pipeline automations",
		Long:  "Run date sweeps, send test messages and inspect execution history for pipeline automations.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config/config.yaml", "path to config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging")

	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewTestSendCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func openEngine(ctx context.Context, opts *RootOptions) (Engine, func(), error) {
	cfg, err := config.LoadFromEnv(opts.ConfigPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	app.ConfigureLogging(cfg, "automationctl")

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "initialize engine", err)
	}
	return a.Engine, a.Close, nil
}
