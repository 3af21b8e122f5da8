package clockutil

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually-advanced [Clock] for deterministic tests of timer-driven
// code (inactivity timeouts, hard call-duration limits, calendar sync
// intervals).
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

// NewFake creates a [Fake] clock starting at now.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

// Now returns the fake clock's current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// NewTimer returns a [Timer] that fires when [Fake.Advance] moves the clock
// past its deadline.
func (f *Fake) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{
		clock:    f,
		deadline: f.now.Add(d),
		ch:       make(chan time.Time, 1),
		active:   true,
	}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the fake clock forward by d, firing any timer whose deadline
// has been reached or passed, in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	type due struct {
		t        *fakeTimer
		deadline time.Time
	}
	var pending []due
	for _, t := range f.timers {
		t.mu.Lock()
		if t.active && !t.deadline.After(now) {
			pending = append(pending, due{t: t, deadline: t.deadline})
		}
		t.mu.Unlock()
	}
	f.mu.Unlock()

	sort.SliceStable(pending, func(i, j int) bool { return pending[i].deadline.Before(pending[j].deadline) })
	for _, p := range pending {
		p.t.fire(now)
	}
}

type fakeTimer struct {
	clock    *Fake
	mu       sync.Mutex
	deadline time.Time
	ch       chan time.Time
	active   bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) fire(at time.Time) {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.mu.Unlock()
	select {
	case t.ch <- at:
	default:
	}
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := t.active
	t.active = false
	return wasActive
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.mu.Lock()
	wasActive := t.active
	t.active = true
	t.deadline = t.clock.Now().Add(d)
	t.mu.Unlock()
	return wasActive
}
