package unit

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest lists the units of a project on disk so the orchestrator can be
// pointed at programs that do not register their own units.
//
//	entry: main.sh
//	load-path:
//	  - lib
//	units:
//	  - helpers.sh
type Manifest struct {
	Entry    string   `yaml:"entry"`
	LoadPath []string `yaml:"load-path"`
	Units    []string `yaml:"units"`
}

// LoadManifest reads a manifest file. Relative load-path entries and a
// relative entry are interpreted against the manifest's directory; unit ids
// are kept verbatim since they are resolved against the load path later.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %q: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %q: %w", path, err)
	}

	dir := filepath.Dir(path)

	for i, p := range m.LoadPath {
		if !filepath.IsAbs(p) {
			m.LoadPath[i] = filepath.Join(dir, p)
		}
	}

	if m.Entry != "" && !filepath.IsAbs(m.Entry) {
		m.Entry = filepath.Join(dir, m.Entry)
	}

	return &m, nil
}

// Merge returns a Static table combining the manifest with extra settings.
// A non-empty entry overrides the manifest's own; extra load path entries
// and units are appended after the manifest's.
func (m *Manifest) Merge(entry string, loadPath, units []string) Static {
	s := Static{EntryFile: m.Entry}
	if entry != "" {
		s.EntryFile = entry
	}

	s.Path = append(append(s.Path, m.LoadPath...), loadPath...)
	s.IDs = append(append(s.IDs, m.Units...), units...)

	return s
}
