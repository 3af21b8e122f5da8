package orchestrator

import "testing"

func TestTransitionMovesToNewState(t *testing.T) {
	cs := &callSession{state: StateInit}
	cs.transition(StateGreeting)
	if got := cs.currentState(); got != StateGreeting {
		t.Fatalf("currentState() = %v, want %v", got, StateGreeting)
	}
}

func TestTransitionToCurrentStateIsNoOp(t *testing.T) {
	cs := &callSession{state: StateConversation}
	cs.transition(StateConversation)
	if got := cs.currentState(); got != StateConversation {
		t.Fatalf("currentState() = %v, want %v", got, StateConversation)
	}
}

func TestTransitionOutOfTerminatedIsForbidden(t *testing.T) {
	cs := &callSession{state: StateTerminated}
	cs.transition(StateConversation)
	if got := cs.currentState(); got != StateTerminated {
		t.Fatalf("currentState() = %v, want %v (TERMINATED must be sticky)", got, StateTerminated)
	}
}

func TestStateStringKnownValues(t *testing.T) {
	cases := map[State]string{
		StateInit:         "INIT",
		StateGreeting:     "GREETING",
		StateConversation: "CONVERSATION",
		StateToolWait:     "TOOL_WAIT",
		StateConfirmation: "CONFIRMATION",
		StateTerminated:   "TERMINATED",
		State(99):         "UNKNOWN",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}

func TestSignalDoneIsIdempotent(t *testing.T) {
	cs := &callSession{doneCh: make(chan struct{})}
	cs.signalDone()
	cs.signalDone() // must not panic on double-close

	select {
	case <-cs.doneCh:
	default:
		t.Fatal("doneCh was not closed")
	}
}

func TestRingBufferDropsOldestWhenFull(t *testing.T) {
	b := newRingBuffer(2)
	b.push(pendingTurn{role: "user", text: "one"})
	b.push(pendingTurn{role: "user", text: "two"})
	b.push(pendingTurn{role: "user", text: "three"})

	got := b.drain()
	if len(got) != 2 {
		t.Fatalf("len(drain()) = %d, want 2", len(got))
	}
	if got[0].text != "two" || got[1].text != "three" {
		t.Fatalf("got = %+v, want [two three]", got)
	}
}

func TestRingBufferDrainEmptiesBuffer(t *testing.T) {
	b := newRingBuffer(4)
	b.push(pendingTurn{role: "user", text: "only"})

	first := b.drain()
	if len(first) != 1 {
		t.Fatalf("len(first drain) = %d, want 1", len(first))
	}

	second := b.drain()
	if len(second) != 0 {
		t.Fatalf("len(second drain) = %d, want 0 (buffer should be empty after first drain)", len(second))
	}
}
