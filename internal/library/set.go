package library

import "sort"

// Set is an unordered collection of resolved library paths.
type Set map[string]struct{}

// NewSet returns a Set holding paths.
func NewSet(paths ...string) Set {
	s := make(Set, len(paths))
	for _, p := range paths {
		s.Add(p)
	}

	return s
}

// Add inserts path.
func (s Set) Add(path string) { s[path] = struct{}{} }

// Has reports whether path is a member. A nil Set has no members.
func (s Set) Has(path string) bool {
	_, ok := s[path]
	return ok
}

// Len returns the number of members.
func (s Set) Len() int { return len(s) }

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}

	sort.Strings(out)

	return out
}

// Equal reports whether both sets hold the same members.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}

	for p := range s {
		if !other.Has(p) {
			return false
		}
	}

	return true
}
