package util

import (
	"sort"
	"sync"
	"time"
)

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Timer fires once on C unless stopped first.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// TimeSource is the clock the live loops read. Production code uses
// SystemClock; tests drive a FakeClock.
type TimeSource interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	NewTimer(d time.Duration) Timer
}

// SystemClock is the real wall clock.
type SystemClock struct{}

var _ TimeSource = SystemClock{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) NewTicker(d time.Duration) Ticker { return systemTicker{time.NewTicker(d)} }

func (SystemClock) NewTimer(d time.Duration) Timer { return systemTimer{time.NewTimer(d)} }

type systemTicker struct{ t *time.Ticker }

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

type systemTimer struct{ t *time.Timer }

func (s systemTimer) C() <-chan time.Time { return s.t.C }
func (s systemTimer) Stop() bool          { return s.t.Stop() }

// ---------------------------------------------------------------------------
// FakeClock
// ---------------------------------------------------------------------------

// FakeClock is a manually advanced TimeSource. Ticks are delivered on
// buffered channels of size one; a tick is dropped when the previous one
// has not been consumed, as with time.Ticker.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
}

var _ TimeSource = (*FakeClock)(nil)

type fakeWaiter struct {
	clock   *FakeClock
	next    time.Time
	period  time.Duration // zero for timers
	ch      chan time.Time
	stopped bool
}

type fakeTicker struct{ *fakeWaiter }

func (t fakeTicker) Stop() { t.fakeWaiter.Stop() }

// NewFakeClock returns a FakeClock reading now.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

// Now returns the fake current time.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// NewTicker registers a periodic waiter.
func (f *FakeClock) NewTicker(d time.Duration) Ticker {
	return fakeTicker{f.add(d, d)}
}

// NewTimer registers a one-shot waiter.
func (f *FakeClock) NewTimer(d time.Duration) Timer {
	return f.add(d, 0)
}

// Waiters returns the number of live tickers and timers.
func (f *FakeClock) Waiters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}

func (f *FakeClock) add(d, period time.Duration) *fakeWaiter {
	if period < 0 || (period == 0 && d < 0) {
		d = 0
	}
	if d == 0 && period > 0 {
		panic("util: non-positive interval for NewTicker")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWaiter{clock: f, next: f.now.Add(d), period: period, ch: make(chan time.Time, 1)}
	f.waiters = append(f.waiters, w)
	return w
}

// Advance moves the clock forward by d, firing every waiter whose deadline
// falls within the interval in deadline order.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	end := f.now.Add(d)
	for {
		var due []*fakeWaiter
		for _, w := range f.waiters {
			if !w.stopped && !w.next.After(end) {
				due = append(due, w)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.Slice(due, func(i, j int) bool { return due[i].next.Before(due[j].next) })
		w := due[0]
		f.now = w.next
		select {
		case w.ch <- w.next:
		default:
		}
		if w.period > 0 {
			w.next = w.next.Add(w.period)
		} else {
			w.stopped = true
		}
	}
	f.now = end
	f.mu.Unlock()
}

func (w *fakeWaiter) C() <-chan time.Time { return w.ch }

func (w *fakeWaiter) Stop() bool {
	w.clock.mu.Lock()
	defer w.clock.mu.Unlock()
	active := !w.stopped
	w.stopped = true
	return active
}
