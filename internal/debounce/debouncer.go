// Package debounce coalesces a rapidly changing value into a stable value that
// is emitted only after a quiet window.
package debounce

import (
	"sync"
	"time"
)

// DefaultWindow is the quiescence window used for source edits
const DefaultWindow = 200 * time.Millisecond

// Timer is a pending callback that can be cancelled
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. The real clock uses time.AfterFunc; tests inject
// a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option configures a Debouncer
type Option func(*options)

type options struct {
	clock Clock
}

// WithClock replaces the clock used to schedule emissions
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// Debouncer emits the most recent pushed value once no newer value has arrived
// for the configured window. Intermediate values are dropped, never queued.
type Debouncer[T any] struct {
	mu      sync.Mutex
	window  time.Duration
	clock   Clock
	emit    func(T)
	timer   Timer
	pending T
	armed   bool
	seq     uint64
}

// New creates a debouncer that calls emit with the settled value
func New[T any](window time.Duration, emit func(T), opts ...Option) *Debouncer[T] {
	o := options{clock: realClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	return &Debouncer[T]{
		window: window,
		clock:  o.clock,
		emit:   emit,
	}
}

// Window returns the quiescence window
func (d *Debouncer[T]) Window() time.Duration {
	return d.window
}

// Push records a new value and restarts the window
func (d *Debouncer[T]) Push(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	d.seq++
	seq := d.seq
	d.pending = v
	d.armed = true
	d.timer = d.clock.AfterFunc(d.window, func() {
		d.fire(seq)
	})
}

// fire emits the pending value unless a newer Push superseded this timer.
// A stopped timer can still run if it lost the race with Stop.
func (d *Debouncer[T]) fire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq || !d.armed {
		d.mu.Unlock()
		return
	}
	v := d.pending
	d.armed = false
	d.timer = nil
	d.mu.Unlock()

	d.emit(v)
}

// Flush emits the pending value immediately, if any
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if !d.armed {
		d.mu.Unlock()
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	v := d.pending
	d.armed = false
	d.mu.Unlock()

	d.emit(v)
	return true
}

// Stop cancels any pending emission
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	d.armed = false
}

// Pending reports whether an emission is scheduled
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}
