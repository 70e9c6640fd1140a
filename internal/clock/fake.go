package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock for tests.
//
// Callbacks registered with AfterFunc run synchronously inside Advance, in
// deadline order, on the goroutine calling Advance. Channels returned by
// After are buffered and fire during Advance as well.
//
// With auto-advance enabled, After advances the clock itself, so code that
// blocks on a timed wait progresses without a second goroutine.
//
// Thread-safety: all methods are safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeTimer
	seq     int
	auto    bool
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	seq      int
	fn       func()
	ch       chan time.Time
	stopped  bool
	fired    bool
}

// NewFake creates a fake clock positioned at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After returns a channel that fires once the clock has been advanced by d.
// A non-positive d fires immediately.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	f.mu.Lock()
	if d <= 0 {
		ch <- f.now
		f.mu.Unlock()
		return ch
	}
	f.add(&fakeTimer{clock: f, deadline: f.now.Add(d), ch: ch})
	auto := f.auto
	f.mu.Unlock()

	if auto {
		f.Advance(d)
	}
	return ch
}

// SetAutoAdvance toggles auto-advance mode.
func (f *Fake) SetAutoAdvance(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auto = on
}

// AfterFunc schedules fn to run when the clock reaches now+d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{clock: f, deadline: f.now.Add(d), fn: fn}
	f.add(t)
	return t
}

func (f *Fake) add(t *fakeTimer) {
	f.seq++
	t.seq = f.seq
	f.waiters = append(f.waiters, t)
}

// Advance moves the clock forward by d, firing every timer whose deadline is
// reached. Callbacks may schedule further timers; those fire too if their
// deadline falls within the advanced window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		next := f.nextDue(target)
		if next == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		if next.deadline.After(f.now) {
			f.now = next.deadline
		}
		next.fired = true
		f.remove(next)
		f.mu.Unlock()

		if next.fn != nil {
			next.fn()
		}
		if next.ch != nil {
			next.ch <- next.deadline
		}
	}
}

func (f *Fake) nextDue(target time.Time) *fakeTimer {
	due := make([]*fakeTimer, 0, len(f.waiters))
	for _, t := range f.waiters {
		if !t.stopped && !t.deadline.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].seq < due[j].seq
		}
		return due[i].deadline.Before(due[j].deadline)
	})
	return due[0]
}

func (f *Fake) remove(t *fakeTimer) {
	for i, w := range f.waiters {
		if w == t {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			return
		}
	}
}

// Pending returns the number of scheduled callbacks and channel waits that
// have not fired or been stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.waiters {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Stop cancels the timer.
func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.clock.remove(t)
	return true
}
