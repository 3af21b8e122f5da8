package clockutil_test

import (
	"testing"
	"time"

	"github.com/MrWong99/glyphoxa/internal/clockutil"
)

func TestFakeAdvanceFiresTimer(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clockutil.NewFake(start)

	timer := clk.NewTimer(5 * time.Second)

	clk.Advance(3 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("timer fired early")
	default:
	}

	clk.Advance(2 * time.Second)
	select {
	case got := <-timer.C():
		want := start.Add(5 * time.Second)
		if !got.Equal(want) {
			t.Errorf("fired at %v, want %v", got, want)
		}
	default:
		t.Fatal("timer did not fire")
	}
}

func TestFakeStopPreventsFiring(t *testing.T) {
	clk := clockutil.NewFake(time.Now())
	timer := clk.NewTimer(time.Second)
	if !timer.Stop() {
		t.Fatal("Stop() = false on active timer")
	}
	clk.Advance(2 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}
}

func TestFakeResetExtendsDeadline(t *testing.T) {
	start := time.Now()
	clk := clockutil.NewFake(start)
	timer := clk.NewTimer(time.Second)

	clk.Advance(500 * time.Millisecond)
	timer.Reset(time.Second)
	clk.Advance(600 * time.Millisecond)
	select {
	case <-timer.C():
		t.Fatal("timer fired before reset deadline")
	default:
	}
	clk.Advance(500 * time.Millisecond)
	select {
	case <-timer.C():
	default:
		t.Fatal("timer did not fire after reset deadline")
	}
}
