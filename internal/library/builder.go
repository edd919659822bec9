package library

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hupe1980/again/internal/diag"
	"github.com/hupe1980/again/internal/unit"
)

// Builder computes the library set and base paths from a loaded-units table.
// Build has no memory between calls: its result depends only on the table
// and the filesystem.
type Builder struct {
	// Table is the loaded-units table to enumerate.
	Table unit.Table

	// Self is the orchestrator's own unit id. It is added to the candidates
	// because the host may not list it while it is still initialising.
	// Empty means none and is the default, since a compiled host has no
	// source file of its own. Set it with --self or again.WithSelf.
	Self string

	// Pseudo lists ids with no source file; see IsPseudo.
	Pseudo []string

	// Logger receives debug and warn records. Nil means slog.Default().
	Logger *slog.Logger

	// Diag receives the user-facing resolution warnings. Nil discards them.
	Diag *diag.Reporter
}

// Build returns the resolved library set together with the base paths it
// was resolved against.
func (b *Builder) Build() (Set, []string) {
	logger := b.logger()
	basePaths := b.BasePaths()
	libraries := make(Set)

	for _, id := range b.candidates() {
		if HasMarker(id) {
			continue
		}

		if lib, ok := Resolve(id, basePaths); ok {
			libraries.Add(lib)
			continue
		}

		if IsPseudo(id, b.Pseudo) {
			continue
		}

		logger.Warn("failed to resolve library", slog.String("unit", id))

		if b.Diag != nil {
			b.Diag.Unresolved(id)
		}
	}

	logger.Debug("library set built",
		slog.Int("libraries", libraries.Len()),
		slog.Int("basePaths", len(basePaths)),
	)

	return libraries, basePaths
}

// BasePaths returns the table's load path followed by the entry file's
// directory, made absolute, restricted to existing paths without the
// reload marker, and deduplicated in first-seen order.
func (b *Builder) BasePaths() []string {
	raw := b.Table.LoadPath()
	if entry := EntryPath(b.Table.Entry()); entry != "" {
		raw = append(raw, filepath.Dir(entry))
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))

	for _, p := range raw {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}

		if _, dup := seen[abs]; dup {
			continue
		}

		if HasMarker(abs) {
			continue
		}

		if _, err := os.Stat(abs); err != nil {
			continue
		}

		seen[abs] = struct{}{}
		out = append(out, abs)
	}

	return out
}

// candidates lists every unit id to resolve: the loaded units, the entry
// file and the orchestrator itself.
func (b *Builder) candidates() []string {
	ids := b.Table.Units()

	if entry := EntryPath(b.Table.Entry()); entry != "" {
		ids = append(ids, entry)
	}

	if b.Self != "" {
		ids = append(ids, b.Self)
	}

	return ids
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}

	return slog.Default()
}

// EntryPath returns the absolute form of an entry file name, or "" for an
// empty name.
func EntryPath(entry string) string {
	if entry == "" {
		return ""
	}

	abs, err := filepath.Abs(entry)
	if err != nil {
		return filepath.Clean(entry)
	}

	return abs
}
