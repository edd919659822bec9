package library

import (
	"slices"
	"strings"
)

// ReloadMarker is embedded in the names of temporary artifacts created while
// reloading the entry file.
const ReloadMarker = "--reload-temp--"

// HasMarker reports whether path contains the reload marker.
func HasMarker(path string) bool {
	return strings.Contains(path, ReloadMarker)
}

// DefaultPseudo lists unit identifiers that never have an on-disk source.
var DefaultPseudo = []string{"-", "<stdin>"}

// IsPseudo reports whether id names a built-in unit with no source file:
// either listed in pseudo or written as <name>.
func IsPseudo(id string, pseudo []string) bool {
	if len(id) > 2 && strings.HasPrefix(id, "<") && strings.HasSuffix(id, ">") {
		return true
	}

	return slices.Contains(pseudo, id)
}
