// Package again is the process-wide entry point to the live-reload
// orchestrator. The first call to Start builds the library set from the
// units registered with Track and starts watching; every later call returns
// the same instance.
//
// Basic usage, re-running shell units from the working directory whenever
// they change:
//
//	func main() {
//	    again.Track("handlers.sh", "routes.sh")
//
//	    if _, err := again.Start(again.WithCommand("sh {}")); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    if err := again.Join(ctx); err != nil {
//	        log.Fatal(err)
//	    }
//	}
package again

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/again/internal/diag"
	"github.com/hupe1980/again/internal/loader"
	"github.com/hupe1980/again/internal/orchestrator"
	"github.com/hupe1980/again/internal/unit"
	"github.com/hupe1980/again/internal/watch"
)

// Orchestrator is the running reload loop.
type Orchestrator = orchestrator.Orchestrator

// Request describes one load handed to a loader.
type Request = loader.Request

// LoaderFunc re-executes a unit in-process.
type LoaderFunc = loader.Func

// Option configures the orchestrator. Options only take effect on the call
// to Start that constructs the instance.
type Option func(*options)

type options struct {
	entry       string
	loadPath    []string
	self        string
	pseudo      []string
	loader      loader.Loader
	provider    watch.Provider
	logger      *slog.Logger
	diagOut     io.Writer
	noColor     bool
	tempDir     string
	joinBackoff time.Duration
}

// WithEntry sets the entry file. It is loaded through the scratch-copy path
// on reload and its directory joins the base paths. The default is no entry
// file: only tracked units are watched.
func WithEntry(path string) Option {
	return func(o *options) { o.entry = path }
}

// WithLoadPath appends directories used to resolve relative unit ids. When
// neither a load path nor an entry is given, the working directory is used.
func WithLoadPath(dirs ...string) Option {
	return func(o *options) { o.loadPath = append(o.loadPath, dirs...) }
}

// WithSelf names the unit that embeds the orchestrator so it is watched too.
func WithSelf(id string) Option {
	return func(o *options) { o.self = id }
}

// WithPseudo lists unit ids that have no source file.
func WithPseudo(ids ...string) Option {
	return func(o *options) { o.pseudo = append(o.pseudo, ids...) }
}

// WithLoader sets the unit loader.
func WithLoader(l loader.Loader) Option {
	return func(o *options) { o.loader = l }
}

// WithCommand loads units by running a command template to completion; see
// loader.Argv for the template syntax.
func WithCommand(template string) Option {
	return func(o *options) { o.loader = &loader.Exec{Command: template} }
}

// WithPolling replaces native notifications with periodic rescans.
func WithPolling(interval time.Duration) Option {
	return func(o *options) { o.provider = &watch.Poll{Interval: interval} }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDiagnostics redirects reload diagnostics, stderr by default.
func WithDiagnostics(w io.Writer, noColor bool) Option {
	return func(o *options) {
		o.diagOut = w
		o.noColor = noColor
	}
}

// WithTempDir sets where scratch copies of the entry file are created.
func WithTempDir(dir string) Option {
	return func(o *options) { o.tempDir = dir }
}

// WithJoinBackoff sets how long Join idles between watch generations.
func WithJoinBackoff(d time.Duration) Option {
	return func(o *options) { o.joinBackoff = d }
}

// ErrNotStarted is returned by Join when Start was never called.
var ErrNotStarted = errors.New("again: Start was not called")

type started struct {
	orch *Orchestrator
	err  error
}

var (
	registry = unit.NewRegistry("")

	startOnce sync.Once
	result    atomic.Pointer[started]
)

// Track registers loaded unit ids with the process-wide table. Units
// tracked after Start are picked up by the next refresh.
func Track(ids ...string) {
	registry.Track(ids...)
}

// Start returns the process-wide orchestrator, constructing it on the first
// call. A construction failure is returned by every call.
func Start(opts ...Option) (*Orchestrator, error) {
	startOnce.Do(func() {
		orch, err := construct(opts)
		result.Store(&started{orch: orch, err: err})
	})

	r := result.Load()

	return r.orch, r.err
}

func construct(opts []Option) (*Orchestrator, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	loadPath := o.loadPath
	if len(loadPath) == 0 && o.entry == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}

		loadPath = []string{wd}
	}

	registry.SetEntry(o.entry)
	registry.AddLoadPath(loadPath...)

	var reporter *diag.Reporter
	if o.diagOut != nil {
		reporter = diag.New(o.diagOut, o.noColor)
	}

	return orchestrator.New(orchestrator.Options{
		Table:       registry,
		Loader:      o.loader,
		Provider:    o.provider,
		Self:        o.self,
		Pseudo:      o.pseudo,
		JoinBackoff: o.joinBackoff,
		TempDir:     o.tempDir,
		Diag:        reporter,
		Logger:      o.logger,
	})
}

// Join blocks until the orchestrator built by Start stops watching for good
// or ctx is done. It does not construct the orchestrator: without a prior
// Start it returns ErrNotStarted, after a failed Start it returns that
// failure.
func Join(ctx context.Context) error {
	r := result.Load()
	if r == nil {
		return ErrNotStarted
	}

	if r.err != nil {
		return r.err
	}

	return r.orch.Join(ctx)
}

// Reloaded reports whether the process-wide orchestrator is currently
// running a reload's load step. It is false before Start.
func Reloaded() bool {
	if r := result.Load(); r != nil && r.orch != nil {
		return r.orch.Reloaded()
	}

	return false
}

// Reloading reports whether this process was started by a subprocess
// loader as the result of a reload.
func Reloading() bool {
	return loader.Reloading()
}
