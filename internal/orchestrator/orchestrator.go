// Package orchestrator wires library resolution, the filesystem watch and
// the reload executor into again's closed reload loop: build the library
// set, watch its base paths, reload changed members, rebuild, repeat.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/again/internal/diag"
	"github.com/hupe1980/again/internal/library"
	"github.com/hupe1980/again/internal/loader"
	"github.com/hupe1980/again/internal/reload"
	"github.com/hupe1980/again/internal/unit"
	"github.com/hupe1980/again/internal/watch"
)

// DefaultJoinBackoff is how long Join idles when no watch is running.
const DefaultJoinBackoff = 500 * time.Millisecond

var (
	// ErrNoTable is returned by New when Options.Table is nil.
	ErrNoTable = errors.New("no loaded-units table configured")
	// ErrNoLoader is returned by New when Options.Loader is nil.
	ErrNoLoader = errors.New("no unit loader configured")
)

// Options configures an Orchestrator.
type Options struct {
	// Table enumerates the loaded units. Required.
	Table unit.Table
	// Loader re-executes changed units. Required.
	Loader loader.Loader
	// Provider installs filesystem watches. Nil means fsnotify.
	Provider watch.Provider
	// Self is the orchestrator's own unit id, if it has one.
	Self string
	// Pseudo lists unit ids without source files.
	Pseudo []string
	// JoinBackoff is the idle interval of Join between watch generations.
	JoinBackoff time.Duration
	// TempDir holds scratch copies of the entry file during reloads.
	TempDir string
	// Diag receives user-facing diagnostics. Nil means stderr.
	Diag *diag.Reporter
	// Logger is used for structured logging. Nil means slog.Default().
	Logger *slog.Logger
}

// generation is one immutable refresh result. The orchestrator swaps
// whole generations so change handling never sees a half-updated state.
type generation struct {
	libraries library.Set
	basePaths []string
	handle    *watch.Handle
}

// Orchestrator runs the reload loop.
type Orchestrator struct {
	table      unit.Table
	loader     loader.Loader
	builder    *library.Builder
	controller *watch.Controller
	executor   *reload.Executor
	flag       reload.Flag
	backoff    time.Duration
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	current   atomic.Pointer[generation]
	refreshMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once

	errMu sync.Mutex
	fatal error
}

// New builds the initial library set and starts the first watch. A watch
// that cannot be installed is returned as an error wrapping watch.ErrSetup.
func New(opts Options) (*Orchestrator, error) {
	if opts.Table == nil {
		return nil, ErrNoTable
	}

	if opts.Loader == nil {
		return nil, ErrNoLoader
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reporter := opts.Diag
	if reporter == nil {
		reporter = diag.Stderr(false)
	}

	provider := opts.Provider
	if provider == nil {
		provider = &watch.FSNotify{Logger: logger}
	}

	backoff := opts.JoinBackoff
	if backoff <= 0 {
		backoff = DefaultJoinBackoff
	}

	pseudo := opts.Pseudo
	if pseudo == nil {
		pseudo = library.DefaultPseudo
	}

	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		table:  opts.Table,
		loader: opts.Loader,
		builder: &library.Builder{
			Table:  opts.Table,
			Self:   opts.Self,
			Pseudo: pseudo,
			Logger: logger,
			Diag:   reporter,
		},
		controller: &watch.Controller{Provider: provider, Logger: logger},
		backoff:    backoff,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		closed:     make(chan struct{}),
	}

	o.executor = &reload.Executor{
		Entry:   library.EntryPath(opts.Table.Entry()),
		Loader:  opts.Loader,
		Flag:    &o.flag,
		Diag:    reporter,
		Logger:  logger,
		TempDir: opts.TempDir,
	}

	if err := o.refresh(); err != nil {
		cancel()
		return nil, err
	}

	return o, nil
}

// Reloaded reports whether a reload's load step is currently running.
func (o *Orchestrator) Reloaded() bool { return o.flag.Get() }

// Libraries returns the current library set in lexical order.
func (o *Orchestrator) Libraries() []string {
	if gen := o.current.Load(); gen != nil {
		return gen.libraries.Sorted()
	}

	return nil
}

// BasePaths returns the base paths of the current generation.
func (o *Orchestrator) BasePaths() []string {
	if gen := o.current.Load(); gen != nil {
		return append([]string(nil), gen.basePaths...)
	}

	return nil
}

// Generation returns the id of the running watch generation, or 0 when no
// watch is installed.
func (o *Orchestrator) Generation() uint64 {
	if gen := o.current.Load(); gen != nil && gen.handle != nil {
		return gen.handle.ID()
	}

	return 0
}

// LoadEntry performs the initial, non-reload load of the entry file. The
// error is returned to the caller; the watch keeps running either way.
func (o *Orchestrator) LoadEntry(ctx context.Context) error {
	entry := library.EntryPath(o.table.Entry())
	if entry == "" {
		return nil
	}

	return o.loader.Load(ctx, loader.Request{Path: entry, Original: entry, Entry: entry})
}

// Join blocks until watching stops for good: after Close, after a refresh
// failed to install a new watch, or when ctx is done. It survives any
// number of watch generations being swapped underneath it.
func (o *Orchestrator) Join(ctx context.Context) error {
	for {
		select {
		case <-o.closed:
			return o.Err()
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if gen := o.current.Load(); gen != nil && gen.handle != nil && gen.handle.Alive() {
			select {
			case <-gen.handle.Done():
			case <-o.closed:
			case <-ctx.Done():
			}

			continue
		}

		select {
		case <-time.After(o.backoff):
		case <-o.closed:
		case <-ctx.Done():
		}
	}
}

// Err returns the failure that stopped the orchestrator, if any.
func (o *Orchestrator) Err() error {
	o.errMu.Lock()
	defer o.errMu.Unlock()

	return o.fatal
}

// Close stops the current watch and prevents further refreshes. Loads in
// progress are cancelled through their context.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.closed)
		o.cancel()

		o.refreshMu.Lock()
		defer o.refreshMu.Unlock()

		if gen := o.current.Load(); gen != nil {
			o.controller.Stop(gen.handle)
		}
	})
}

// refresh rebuilds the library set, stops the old watch and starts a new
// one over the new base paths.
func (o *Orchestrator) refresh() error {
	o.refreshMu.Lock()
	defer o.refreshMu.Unlock()

	select {
	case <-o.closed:
		return nil
	default:
	}

	libraries, basePaths := o.builder.Build()

	if old := o.current.Load(); old != nil {
		o.controller.Stop(old.handle)
	}

	handle, err := o.controller.Start(basePaths, o.onChange)
	o.current.Store(&generation{libraries: libraries, basePaths: basePaths, handle: handle})

	if err != nil {
		return fmt.Errorf("refreshing watch: %w", err)
	}

	o.logger.Debug("refreshed",
		slog.Uint64("generation", handle.ID()),
		slog.Int("libraries", libraries.Len()),
		slog.Int("basePaths", len(basePaths)),
	)

	return nil
}

// onChange runs on a watch generation's delivery goroutine. The generation
// read here may already be stale by one refresh; reloading a member twice
// is harmless.
func (o *Orchestrator) onChange(changed []string) {
	gen := o.current.Load()
	if gen == nil {
		return
	}

	for _, path := range changed {
		if !gen.libraries.Has(path) {
			continue
		}

		o.executor.Reload(o.ctx, path)

		// The delivering watch cannot be replaced from its own callback.
		go o.refreshAsync()
	}
}

func (o *Orchestrator) refreshAsync() {
	if err := o.refresh(); err != nil {
		o.errMu.Lock()
		o.fatal = err
		o.errMu.Unlock()

		o.logger.Error("watch refresh failed", slog.String("error", err.Error()))
		o.Close()
	}
}
