// Package tick provides the "end of tick" hook used to batch work that
// arrives close together, such as reads aggregated per resource.
package tick

import (
	"sync"
	"time"
)

// Scheduler runs callbacks at the end of the current tick.
type Scheduler interface {
	Schedule(fn func())
}

// Window ends a tick d after its first callback was scheduled. Each
// callback then runs on its own goroutine, so one that blocks on upstream
// I/O never holds back the others of its tick.
type Window struct {
	d time.Duration

	mu      sync.Mutex
	pending []func()
}

// NewWindow creates a window scheduler. A zero d still defers callbacks to
// a separate goroutine, so they never run inside Schedule.
func NewWindow(d time.Duration) *Window {
	return &Window{d: d}
}

func (w *Window) Schedule(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, fn)
	if len(w.pending) == 1 {
		time.AfterFunc(w.d, w.flush)
	}
}

func (w *Window) flush() {
	w.mu.Lock()
	fns := w.pending
	w.pending = nil
	w.mu.Unlock()

	for _, fn := range fns {
		go fn()
	}
}

// Manual ends a tick only when Tick is called and runs its callbacks in
// scheduling order on the caller's goroutine. Tests use it to control
// exactly which requests share a batch.
type Manual struct {
	mu      sync.Mutex
	pending []func()
}

// NewManual creates a manual scheduler.
func NewManual() *Manual { return &Manual{} }

func (m *Manual) Schedule(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, fn)
}

// Tick runs every callback scheduled so far, including callbacks they
// schedule, and returns how many ran.
func (m *Manual) Tick() int {
	n := 0
	for {
		m.mu.Lock()
		fns := m.pending
		m.pending = nil
		m.mu.Unlock()
		if len(fns) == 0 {
			return n
		}
		for _, fn := range fns {
			fn()
		}
		n += len(fns)
	}
}

// Pending reports how many callbacks wait for the next Tick.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
