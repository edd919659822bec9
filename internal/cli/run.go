package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/again/internal/config"
	"github.com/hupe1980/again/internal/diag"
	"github.com/hupe1980/again/internal/loader"
	"github.com/hupe1980/again/internal/logging"
	"github.com/hupe1980/again/internal/orchestrator"
	"github.com/hupe1980/again/internal/watch"
)

// ErrNoEntry is returned when neither the arguments nor the manifest name
// an entry file.
var ErrNoEntry = errors.New("no entry file given")

func runAgain(cmd *cobra.Command, table *tableOptions, args []string) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	units, err := buildTable(cfg, table, args)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	if units.EntryFile == "" {
		return &ExitError{Code: 2, Err: ErrNoEntry}
	}

	reporter := diag.New(cmd.ErrOrStderr(), cfg.NoColor)

	unitLoader, stop := newLoader(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
	defer stop()

	orch, err := orchestrator.New(orchestrator.Options{
		Table:       units,
		Loader:      unitLoader,
		Provider:    newProvider(cfg, logger),
		Self:        table.self,
		Pseudo:      pseudoUnits(cfg),
		JoinBackoff: cfg.JoinBackoff,
		Diag:        reporter,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer orch.Close()

	reporter.Printf("again: watching %d libraries in %d base paths",
		len(orch.Libraries()), len(orch.BasePaths()))

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := orch.LoadEntry(ctx); err != nil {
		reporter.Failure(err, nil)
	}

	err = orch.Join(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Debug("stopped", slog.String("reason", err.Error()))
		return nil
	}

	if err != nil {
		return fmt.Errorf("watching stopped: %w", err)
	}

	return nil
}

// newLoader returns the configured unit loader and a function that releases
// whatever it keeps running.
func newLoader(cfg *config.Config, stdout, stderr io.Writer, logger *slog.Logger) (loader.Loader, func()) {
	command := cfg.Command
	if command == "" {
		command = loader.Placeholder
	}

	if cfg.Loader == config.LoaderService {
		svc := &loader.Service{
			Command:     command,
			Stdout:      stdout,
			Stderr:      stderr,
			GracePeriod: cfg.GracePeriod,
			Logger:      logger,
		}

		return svc, svc.Stop
	}

	return &loader.Exec{Command: command, Stdout: stdout, Stderr: stderr}, func() {}
}

func newProvider(cfg *config.Config, logger *slog.Logger) watch.Provider {
	if cfg.WatchBackend == config.BackendPoll {
		return &watch.Poll{Interval: cfg.PollInterval, Logger: logger}
	}

	return &watch.FSNotify{Debounce: cfg.Debounce, Logger: logger}
}
