package watch

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/hupe1980/again/internal/library"
)

// ErrSetup is wrapped by every failure to establish a watch.
var ErrSetup = errors.New("watch setup failed")

// ChangeFunc receives one batch of created or modified absolute paths.
type ChangeFunc func(changed []string)

// Provider establishes filesystem watches.
type Provider interface {
	// Watch installs a recursive watch over dirs. The returned session is
	// listening when Watch returns; batches are delivered to onChange from
	// within Session.Run.
	Watch(dirs []string, onChange ChangeFunc) (Session, error)
}

// Session is one installed watch.
type Session interface {
	// Run delivers batches until Stop is called or the watch breaks.
	Run() error
	// Stop asks Run to return. It does not wait and may be called more
	// than once.
	Stop()
}

// walkDirs calls visit for root and every directory below it, skipping
// hidden directories and reload scratch directories.
func walkDirs(root string, visit func(dir string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}

		return visit(path)
	})
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || library.HasMarker(name)
}

// ignoredName filters editor temporary files, hidden files and reload
// scratch files by base name.
func ignoredName(path string) bool {
	name := filepath.Base(path)

	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp") || strings.HasPrefix(name, "#") ||
		library.HasMarker(path)
}
