// Package unit models the loaded-units table: the ordered list of unit
// identifiers the host program has loaded, the search path used to resolve
// relative identifiers, and the program's entry file.
package unit

import (
	"slices"
	"sync"
)

// Table is a read-only view of the loaded units.
type Table interface {
	// LoadPath returns the directories searched for relative unit ids, in
	// resolution order.
	LoadPath() []string
	// Units returns the loaded unit identifiers in load order.
	Units() []string
	// Entry returns the program's entry file as given on startup.
	Entry() string
}

// Static is a fixed Table, typically built from configuration.
type Static struct {
	Path      []string
	IDs       []string
	EntryFile string
}

// LoadPath implements Table.
func (s Static) LoadPath() []string { return slices.Clone(s.Path) }

// Units implements Table.
func (s Static) Units() []string { return slices.Clone(s.IDs) }

// Entry implements Table.
func (s Static) Entry() string { return s.EntryFile }

// Registry is a Table that units register themselves with while the
// program runs. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entry    string
	loadPath []string
	units    []string
}

// NewRegistry creates a Registry for the given entry file and search path.
func NewRegistry(entry string, loadPath ...string) *Registry {
	return &Registry{
		entry:    entry,
		loadPath: slices.Clone(loadPath),
	}
}

// Track records ids as loaded. Ids already tracked keep their position.
func (r *Registry) Track(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if id == "" || slices.Contains(r.units, id) {
			continue
		}

		r.units = append(r.units, id)
	}
}

// AddLoadPath appends dirs to the search path.
func (r *Registry) AddLoadPath(dirs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loadPath = append(r.loadPath, dirs...)
}

// SetEntry replaces the entry file.
func (r *Registry) SetEntry(entry string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entry = entry
}

// LoadPath implements Table.
func (r *Registry) LoadPath() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.loadPath)
}

// Units implements Table.
func (r *Registry) Units() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.units)
}

// Entry implements Table.
func (r *Registry) Entry() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.entry
}
