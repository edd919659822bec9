package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Exec loads a unit by running a command to completion, for example
// "sh {}" or "go run {}". A non-zero exit is a load failure.
type Exec struct {
	// Command is the command template; see Argv.
	Command string
	// Dir is the working directory. Empty means the current one.
	Dir string
	// Stdout and Stderr receive the command's output. Nil means the
	// orchestrator's own streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Load implements Loader.
func (e *Exec) Load(ctx context.Context, req Request) error {
	argv, err := Argv(e.Command, req.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec
	cmd.Dir = e.Dir
	cmd.Env = requestEnv(req)
	cmd.Stdout = orDefault(e.Stdout, os.Stdout)
	cmd.Stderr = orDefault(e.Stderr, os.Stderr)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrLoad, req.Original, err)
	}

	return nil
}

func orDefault(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}

	return fallback
}
