package watch

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used to batch fsnotify events.
const DefaultDebounce = 100 * time.Millisecond

// FSNotify is a Provider backed by OS-native notifications.
type FSNotify struct {
	// Debounce is the quiet period before a batch is delivered.
	Debounce time.Duration
	// Logger is used for structured logging. Nil means slog.Default().
	Logger *slog.Logger
}

// Watch implements Provider.
func (p *FSNotify) Watch(dirs []string, onChange ChangeFunc) (Session, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: creating watcher: %w", ErrSetup, err)
	}

	for _, dir := range dirs {
		if err := addRecursive(watcher, dir); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("%w: watching %q: %w", ErrSetup, dir, err)
		}
	}

	debounce := p.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &fsnotifySession{
		watcher:   watcher,
		onChange:  onChange,
		debouncer: NewDebouncer(debounce),
		logger:    logger,
		stop:      make(chan struct{}),
	}, nil
}

type fsnotifySession struct {
	watcher   *fsnotify.Watcher
	onChange  ChangeFunc
	debouncer *Debouncer
	logger    *slog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

func (s *fsnotifySession) Run() error {
	defer s.watcher.Close()
	defer s.debouncer.Stop()

	for {
		select {
		case <-s.stop:
			return nil

		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}

			if !isRelevant(event) {
				continue
			}

			// If a new directory was created, watch it too.
			if event.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					_ = addRecursive(s.watcher, event.Name)
					continue
				}
			}

			s.debouncer.Trigger(event.Name)

		case <-s.debouncer.Ready():
			if batch := s.debouncer.Flush(); len(batch) > 0 {
				s.onChange(batch)
			}

		case watchErr, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}

			s.logger.Error("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func (s *fsnotifySession) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// addRecursive walks root and adds all directories to the watcher.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return walkDirs(root, watcher.Add)
}

// isRelevant keeps creations and writes of ordinary files. Removals and
// renames away are not actioned.
func isRelevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}

	return !ignoredName(event.Name)
}
