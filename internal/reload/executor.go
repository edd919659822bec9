// Package reload re-executes a changed library through a Unit Loader while
// keeping the watch loop alive no matter how the load ends.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/hupe1980/again/internal/diag"
	"github.com/hupe1980/again/internal/loader"
)

// Executor performs single reloads.
type Executor struct {
	// Entry is the absolute path of the program's entry file. Reloads of
	// this file go through a scratch copy.
	Entry string
	// Loader re-executes units.
	Loader loader.Loader
	// Flag is set while the loader runs. Nil means a flag nobody observes.
	Flag *Flag
	// Diag receives the user-facing reload diagnostics. Nil discards them.
	Diag *diag.Reporter
	// Logger is used for structured logging. Nil means slog.Default().
	Logger *slog.Logger
	// TempDir is where scratch copies are created. Empty means os.TempDir().
	TempDir string
	// Now returns the current time. Nil means time.Now.
	Now func() time.Time
}

// Result describes one reload.
type Result struct {
	// Path is the changed library.
	Path string
	// LoadPath is the path handed to the loader.
	LoadPath string
	// Staged reports whether LoadPath is a scratch copy of the entry file.
	Staged bool
	// Retained reports whether the loader took over the scratch directory.
	Retained bool
	// Err is the contained load failure, if any.
	Err error
	// Duration is the wall time of the load step.
	Duration time.Duration
}

// Reload re-executes path, which must be a member of the current library
// set. It never panics and never returns the load failure as an error:
// failures are reported to Diag and recorded in the Result. A scratch copy
// is removed before Reload returns unless a loader.Retainer took it over.
func (e *Executor) Reload(ctx context.Context, path string) Result {
	res := Result{Path: path, LoadPath: path}
	req := loader.Request{Path: path, Original: path, Entry: e.Entry, Reloaded: true}

	e.diag().Reloading(path)

	if path == e.Entry {
		dir, staged, err := stage(path, e.tempDir(), e.now(), e.logger())
		if dir != "" {
			defer func() {
				if !res.Retained {
					e.cleanup(dir)
				}
			}()
		}

		if err != nil {
			res.Err = fmt.Errorf("%w: staging %s: %w", loader.ErrLoad, path, err)
			e.diag().Failure(res.Err, nil)

			return res
		}

		req.Path = staged
		req.Scratch = dir
		res.LoadPath = staged
		res.Staged = true
	}

	start := time.Now()
	stack, err := e.load(ctx, req)
	res.Duration = time.Since(start)

	if err != nil {
		res.Err = err
		e.diag().Failure(err, stack)
		e.logger().Error("reload failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return res
	}

	res.Retained = req.Scratch != "" && e.retains()

	e.logger().Info("reloaded",
		slog.String("path", path),
		slog.Bool("staged", res.Staged),
		slog.Duration("took", res.Duration),
	)

	return res
}

// retains reports whether the loader keeps using the staged copy after
// Load returns.
func (e *Executor) retains() bool {
	r, ok := e.Loader.(loader.Retainer)

	return ok && r.Retains()
}

// load runs the loader inside the reloaded scope and converts panics into
// load errors carrying the panicking goroutine's stack.
func (e *Executor) load(ctx context.Context, req loader.Request) (stack []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v", loader.ErrLoad, req.Original, r)
			stack = debug.Stack()
		}
	}()

	e.flag().Scope(func() {
		err = e.Loader.Load(ctx, req)
	})

	return nil, err
}

func (e *Executor) cleanup(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		e.logger().Warn("removing reload scratch directory",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) flag() *Flag {
	if e.Flag != nil {
		return e.Flag
	}

	return &Flag{}
}

func (e *Executor) diag() *diag.Reporter {
	if e.Diag != nil {
		return e.Diag
	}

	return diag.Discard()
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}

	return slog.Default()
}

func (e *Executor) tempDir() string {
	if e.TempDir != "" {
		return e.TempDir
	}

	return os.TempDir()
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}

	return time.Now()
}
