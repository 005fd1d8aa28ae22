package changes

import (
	"sort"
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before a burst of events is flushed.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer coalesces bursts of events. Every Add restarts the window;
// once the window passes without new events, the pending events are
// flushed with one entry per path (the latest op).
type Debouncer struct {
	window time.Duration
	flush  func([]Event)

	mu      sync.Mutex
	pending map[string]Event
	timer   *time.Timer
	stopped bool
}

// NewDebouncer returns a Debouncer that calls flush after window of quiet.
func NewDebouncer(window time.Duration, flush func([]Event)) *Debouncer {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Debouncer{
		window:  window,
		flush:   flush,
		pending: make(map[string]Event),
	}
}

// Add records an event and restarts the window.
func (d *Debouncer) Add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.pending[ev.Path] = ev
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.Flush)
}

// Flush emits pending events immediately. It is a no-op when nothing is
// pending.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	events := make([]Event, 0, len(d.pending))
	for _, ev := range d.pending {
		events = append(events, ev)
	}
	d.pending = make(map[string]Event)
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	sort.Slice(events, func(i, j int) bool {
		return events[i].Path < events[j].Path
	})
	d.flush(events)
}

// Stop cancels the pending flush and drops pending events.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = make(map[string]Event)
}
