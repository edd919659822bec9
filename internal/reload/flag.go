package reload

import "sync/atomic"

// Flag records whether a reload's load step is on the call stack.
type Flag struct {
	v atomic.Bool
}

// Get returns the current value.
func (f *Flag) Get() bool { return f.v.Load() }

// Scope sets the flag for the duration of fn and restores the previous
// value on every exit path, panics included. Nested scopes compose.
func (f *Flag) Scope(fn func()) {
	old := f.v.Swap(true)
	defer f.v.Store(old)

	fn()
}
