// Package clockutil provides a seam for time-dependent code so that call
// session timers (inactivity, hard duration) and scheduler sync intervals can
// be exercised deterministically in tests.
package clockutil

import "time"

// Clock abstracts time access and timer creation.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTimer returns a [Timer] that fires after d.
	NewTimer(d time.Duration) Timer
}

// Timer abstracts a time.Timer for test substitution.
type Timer interface {
	// C returns the channel on which the firing time is sent.
	C() <-chan time.Time

	// Stop cancels the timer. Returns true if it stopped the timer before
	// it fired.
	Stop() bool

	// Reset changes the timer's duration. Must only be called on a stopped
	// or drained timer, matching the stdlib time.Timer contract.
	Reset(d time.Duration) bool
}

// real is the production [Clock] backed by the standard library.
type real struct{}

// System is the production Clock. Use it everywhere outside of tests.
var System Clock = real{}

func (real) Now() time.Time { return time.Now() }

func (real) NewTimer(d time.Duration) Timer {
	t := time.NewTimer(d)
	return &realTimer{t: t}
}

type realTimer struct {
	t *time.Timer
}

func (r *realTimer) C() <-chan time.Time       { return r.t.C }
func (r *realTimer) Stop() bool                { return r.t.Stop() }
func (r *realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }
