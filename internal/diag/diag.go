// Package diag writes user-facing reload diagnostics (reload announcements,
// load failures, resolution warnings) to a stream kept apart from the
// watched program's own output, usually stderr.
package diag

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Reporter serializes diagnostics onto a single writer.
type Reporter struct {
	mu sync.Mutex
	w  io.Writer

	notice  lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
}

// New creates a Reporter writing to w. When noColor is true all styling is
// dropped regardless of the terminal's capabilities.
func New(w io.Writer, noColor bool) *Reporter {
	if w == nil {
		w = io.Discard
	}

	renderer := lipgloss.NewRenderer(w)
	if noColor {
		renderer.SetColorProfile(termenv.Ascii)
	}

	return &Reporter{
		w:       w,
		notice:  renderer.NewStyle().Foreground(lipgloss.Color("6")),
		warning: renderer.NewStyle().Foreground(lipgloss.Color("3")),
		failure: renderer.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		muted:   renderer.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// Stderr returns a Reporter on os.Stderr.
func Stderr(noColor bool) *Reporter {
	return New(os.Stderr, noColor)
}

// Discard returns a Reporter that drops everything.
func Discard() *Reporter {
	return New(io.Discard, true)
}

// Reloading announces that path is about to be reloaded.
func (r *Reporter) Reloading(path string) {
	r.println(r.notice.Render("Reloading " + path))
}

// Unresolved reports a loaded unit that maps to no file on disk.
func (r *Reporter) Unresolved(id string) {
	r.println(r.warning.Render(fmt.Sprintf("Failed to resolve library %s to full path", id)))
}

// Failure reports a failed load: the error message, a blank line, then the
// stack trace when one is available.
func (r *Reporter) Failure(err error, stack []byte) {
	var b strings.Builder

	b.WriteString(r.failure.Render(err.Error()))
	b.WriteString("\n\n")

	if len(stack) > 0 {
		b.WriteString(r.muted.Render(strings.TrimRight(string(stack), "\n")))
	} else {
		b.WriteString(r.muted.Render(chain(err)))
	}

	r.println(b.String())
}

// Printf writes an unstyled diagnostic line.
func (r *Reporter) Printf(format string, args ...any) {
	r.println(fmt.Sprintf(format, args...))
}

func (r *Reporter) println(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintln(r.w, s)
}

// chain renders each wrapped error on its own line, outermost first.
func chain(err error) string {
	lines := []string{}

	for e := err; e != nil; e = errors.Unwrap(e) {
		lines = append(lines, "\tfrom "+e.Error())
	}

	return strings.Join(lines, "\n")
}
