package srcset

import (
	"sync"
	"time"
)

type timer interface {
	Stop() bool
}

type clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) timer { return time.AfterFunc(d, f) }

// DebounceOption configures a Debouncer.
type DebounceOption func(*Debouncer)

// Leading makes the debouncer fire on the first trigger of a burst instead of
// after the burst settles.
func Leading() DebounceOption {
	return func(d *Debouncer) { d.leading = true }
}

func withClock(c clock) DebounceOption {
	return func(d *Debouncer) { d.clock = c }
}

// Debouncer coalesces bursts of Trigger calls into a single call of fn. A
// burst ends once wait has passed without a trigger.
type Debouncer struct {
	fn      func()
	wait    time.Duration
	leading bool
	clock   clock

	mu    sync.Mutex
	timer timer
	last  time.Time
	gen   uint64
}

func Debounce(fn func(), wait time.Duration, opts ...DebounceOption) *Debouncer {
	d := &Debouncer{fn: fn, wait: wait, clock: realClock{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Trigger records activity. In trailing mode fn runs wait after the last
// trigger; in leading mode it runs now if no burst is in progress.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	d.last = d.clock.Now()
	callNow := d.leading && d.timer == nil
	if d.timer == nil {
		gen := d.gen
		d.timer = d.clock.AfterFunc(d.wait, func() { d.expire(gen) })
	}
	d.mu.Unlock()
	if callNow {
		d.fn()
	}
}

func (d *Debouncer) expire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	elapsed := d.clock.Now().Sub(d.last)
	if elapsed < d.wait && elapsed >= 0 {
		d.timer = d.clock.AfterFunc(d.wait-elapsed, func() { d.expire(gen) })
		d.mu.Unlock()
		return
	}
	d.timer = nil
	fire := !d.leading
	d.mu.Unlock()
	if fire {
		d.fn()
	}
}

// Cancel drops the pending invocation, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Pending reports whether a burst is still open.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
