package watch

import (
	"sync"
	"time"
)

// Debouncer collects paths into a batch that becomes ready once no new path
// has arrived for the configured interval. It does not call back on its own
// goroutine: the owner selects on Ready and calls Flush, which keeps batch
// delivery on the owner's goroutine and in order.
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	ready    chan struct{}
	pending  []string
	seen     map[string]struct{}
}

// NewDebouncer creates a debouncer that waits for interval of quiet before
// signalling Ready.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{
		interval: interval,
		ready:    make(chan struct{}, 1),
		seen:     make(map[string]struct{}),
	}
}

// Trigger adds path to the pending batch and restarts the quiet period.
func (d *Debouncer) Trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, dup := d.seen[path]; !dup {
		d.seen[path] = struct{}{}
		d.pending = append(d.pending, path)
	}

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, func() {
		select {
		case d.ready <- struct{}{}:
		default:
		}
	})
}

// Ready signals that a batch may be flushed.
func (d *Debouncer) Ready() <-chan struct{} { return d.ready }

// Flush returns the pending batch in first-seen order and clears it.
func (d *Debouncer) Flush() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	batch := d.pending
	d.pending = nil
	clear(d.seen)

	return batch
}

// Stop cancels any pending quiet period.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
