// Package cli implements the cobra command tree for again.
package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hupe1980/again/internal/config"
	"github.com/hupe1980/again/internal/logging"
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute builds the command tree, runs it, and returns the exit code.
func Execute() int {
	cmd := NewRootCommand()

	if err := cmd.Execute(); err != nil {
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.Err != nil {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		}

		if exitErr != nil {
			return exitErr.Code
		}

		return 1
	}

	return 0
}

// NewRootCommand constructs the top-level cobra.Command with all
// subcommands attached.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	table := &tableOptions{}

	cmd := &cobra.Command{
		Use:   "again [entry] [unit...]",
		Short: "Reload changed source files into a running program",
		Long: `again watches the source files a program has loaded and re-executes
each one through a unit loader as soon as it changes on disk.

The entry file is loaded once at startup. Afterwards every change to a
watched library triggers a reload of that file; the entry file itself is
reloaded through a scratch copy so its startup logic can tell a reload
apart from the first run (AGAIN_RELOADED=1).

Libraries are the entry file plus the given units, resolved against the
load path and the entry file's directory.`,
		Example: `  # re-run a shell script whenever it or its helpers change
  again --command "sh {}" main.sh lib/helpers.sh

  # restart a server on every change, polling instead of inotify
  again --loader service --watch-backend poll --command "python3 {}" app.py`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, cfgFile)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			logger := logging.Setup(cfg)

			ctx := cmd.Context()
			ctx = config.NewContext(ctx, cfg)
			ctx = logging.NewContext(ctx, logger)
			cmd.SetContext(ctx)

			logger.Debug("configuration loaded",
				slog.String("logLevel", cfg.LogLevel),
				slog.String("logFormat", cfg.LogFormat),
				slog.String("configFile", cfg.ConfigFile),
			)

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && table.manifest == "" {
				return cmd.Help()
			}

			return runAgain(cmd, table, args)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: .again.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text, logfmt, json")
	pf.Bool("no-color", false, "disable colored output")
	pf.BoolP("quiet", "q", false, "suppress non-essential output")

	registerTableFlags(cmd, table)
	registerWatchFlags(cmd.Flags())

	registerFlagCompletions(cmd, "loader", config.LoaderExec, config.LoaderService)
	registerFlagCompletions(cmd, "watch-backend", config.BackendFSNotify, config.BackendPoll)
	registerFlagCompletions(cmd, "log-format", config.LogFormatText, config.LogFormatLogfmt, config.LogFormatJSON)
	registerFlagCompletions(cmd, "log-level",
		config.LogLevelDebug, config.LogLevelInfo, config.LogLevelWarn, config.LogLevelError)

	// Flag parsing errors return exit code 2.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Err: err}
	})

	cmd.AddCommand(
		newResolveCommand(),
		newLibrariesCommand(),
		newVersionCommand(),
		newCompletionCommand(),
	)

	return cmd
}
