package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Controller starts and stops watch generations on top of a Provider.
type Controller struct {
	Provider Provider
	Logger   *slog.Logger

	generation atomic.Uint64
}

// Handle is one running watch generation.
type Handle struct {
	id       uint64
	dirs     []string
	session  Session
	done     chan struct{}
	stopOnce sync.Once
	err      error
}

// Start installs a watch over basePaths and begins delivering batches to
// onChange on a new goroutine. It returns once the watch is listening.
// Failures to install the watch wrap ErrSetup.
func (c *Controller) Start(basePaths []string, onChange ChangeFunc) (*Handle, error) {
	session, err := c.Provider.Watch(basePaths, onChange)
	if err != nil {
		if !errors.Is(err, ErrSetup) {
			err = fmt.Errorf("%w: %w", ErrSetup, err)
		}

		return nil, err
	}

	h := &Handle{
		id:      c.generation.Add(1),
		dirs:    basePaths,
		session: session,
		done:    make(chan struct{}),
	}

	logger := c.logger()

	go func() {
		defer close(h.done)

		if runErr := session.Run(); runErr != nil {
			h.err = runErr
			logger.Error("watch stopped with error",
				slog.Uint64("generation", h.id),
				slog.String("error", runErr.Error()),
			)

			return
		}

		logger.Debug("watch stopped", slog.Uint64("generation", h.id))
	}()

	logger.Debug("watch started",
		slog.Uint64("generation", h.id),
		slog.Int("dirs", len(basePaths)),
	)

	return h, nil
}

// Stop asks the generation behind h to stop. It does not wait for the
// delivery goroutine to exit; a batch already being delivered completes.
// Stop must not be called from within that generation's onChange.
func (c *Controller) Stop(h *Handle) {
	if h != nil {
		h.Stop()
	}
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}

	return slog.Default()
}

// ID returns the generation number, starting at 1.
func (h *Handle) ID() uint64 { return h.id }

// Dirs returns the watched base directories.
func (h *Handle) Dirs() []string { return h.dirs }

// Stop asks the generation to stop without waiting.
func (h *Handle) Stop() {
	h.stopOnce.Do(h.session.Stop)
}

// Done is closed once the generation's delivery goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Alive reports whether the delivery goroutine is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Err returns the error the generation stopped with, if any. It is only
// meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}
