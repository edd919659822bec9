package watch

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// DefaultPollInterval is the scan interval of the polling provider.
const DefaultPollInterval = time.Second

// Poll is a Provider that rescans the watched trees on an interval. It
// serves filesystems without native notifications (network mounts, some
// container volumes).
type Poll struct {
	Interval time.Duration
	Logger   *slog.Logger
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

// Watch implements Provider.
func (p *Poll) Watch(dirs []string, onChange ChangeFunc) (Session, error) {
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: watching %q: %w", ErrSetup, dir, err)
		}

		if !info.IsDir() {
			return nil, fmt.Errorf("%w: watching %q: not a directory", ErrSetup, dir)
		}
	}

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &pollSession{
		dirs:     dirs,
		interval: interval,
		onChange: onChange,
		logger:   logger,
		stop:     make(chan struct{}),
	}
	s.stamps = s.scan()

	return s, nil
}

type pollSession struct {
	dirs     []string
	interval time.Duration
	onChange ChangeFunc
	logger   *slog.Logger
	stamps   map[string]fileStamp
	stop     chan struct{}
	stopOnce sync.Once
}

func (s *pollSession) Run() error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return nil

		case <-ticker.C:
			next := s.scan()
			changed := diffStamps(s.stamps, next)
			s.stamps = next

			if len(changed) > 0 {
				s.onChange(changed)
			}
		}
	}
}

func (s *pollSession) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// scan records the modification stamp of every relevant file below the
// watched directories. Unreadable entries are skipped.
func (s *pollSession) scan() map[string]fileStamp {
	stamps := make(map[string]fileStamp)

	for _, dir := range s.dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}

			if d.IsDir() {
				if path != dir && skipDir(d.Name()) {
					return filepath.SkipDir
				}

				return nil
			}

			if ignoredName(path) {
				return nil
			}

			info, infoErr := d.Info()
			if infoErr != nil {
				return nil
			}

			stamps[path] = fileStamp{modTime: info.ModTime(), size: info.Size()}

			return nil
		})
		if err != nil {
			s.logger.Debug("poll scan failed", slog.String("dir", dir), slog.String("error", err.Error()))
		}
	}

	return stamps
}

// diffStamps returns paths that are new or changed in next, in lexical
// order. Paths missing from next are removals and are not reported.
func diffStamps(prev, next map[string]fileStamp) []string {
	var changed []string

	for path, stamp := range next {
		old, ok := prev[path]
		if !ok || !old.modTime.Equal(stamp.modTime) || old.size != stamp.size {
			changed = append(changed, path)
		}
	}

	sort.Strings(changed)

	return changed
}
