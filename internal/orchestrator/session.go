package orchestrator

import (
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/glyphoxa/internal/clockutil"
	"github.com/MrWong99/glyphoxa/internal/ingress"
	"github.com/MrWong99/glyphoxa/internal/tenant"
	"github.com/MrWong99/glyphoxa/pkg/provider/tts"
	"github.com/MrWong99/glyphoxa/pkg/types"
)

// State is one of the call session's lifecycle states, per spec.md §4.12.1.
type State int

const (
	StateInit State = iota
	StateGreeting
	StateConversation
	StateToolWait
	StateConfirmation
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateGreeting:
		return "GREETING"
	case StateConversation:
		return "CONVERSATION"
	case StateToolWait:
		return "TOOL_WAIT"
	case StateConfirmation:
		return "CONFIRMATION"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// pendingTurn is one conversation turn waiting to be flushed to the
// per-tenant store because it was not reachable when the turn completed.
type pendingTurn struct {
	role      string
	text      string
	createdAt time.Time
}

// ringBuffer is a small fixed-capacity FIFO of [pendingTurn] values. When
// full, the oldest entry is dropped to make room, per spec.md §4.12.2's
// "small ring buffer of unflushed turns".
type ringBuffer struct {
	entries []pendingTurn
	cap     int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{cap: capacity}
}

func (b *ringBuffer) push(t pendingTurn) {
	if len(b.entries) >= b.cap {
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, t)
}

func (b *ringBuffer) drain() []pendingTurn {
	out := b.entries
	b.entries = nil
	return out
}

const pendingTurnRingCapacity = 32

// maxTurnContentBytes is the persistence truncation limit for conversation
// turn content, per spec.md §4.12.7.
const maxTurnContentBytes = 4096

// callSession holds everything specific to one admitted call: history,
// timers, live provider handles, and state. All mutable fields are guarded
// by mu; the four cooperating tasks (media-in, STT-out, LLM-turn/TTS-out,
// timers) started by run (events.go) only ever touch this struct through its
// methods.
type callSession struct {
	orch *Orchestrator
	conn *websocket.Conn

	tenant     tenant.Tenant
	streamSID  string
	callSID    string
	fromNumber string

	clock clockutil.Clock

	mu            sync.Mutex
	state         State
	history       []types.Message
	turnCounter   int
	ttsSession    tts.Session
	llmCancel     func()
	speechCancel  func()
	aiSpeaking    bool
	cancelPending bool
	packetCount   uint64

	pending *ringBuffer

	// wg tracks background goroutines spawned for TTS audio forwarding so
	// run can wait for them to drain before returning, mirroring
	// internal/engine/cascade's Engine.wg/Wait pattern.
	wg sync.WaitGroup

	inactivityTimer clockutil.Timer
	hardTimer       clockutil.Timer
	timerResetCh    chan struct{}

	interactionCh chan interactionEvent
	doneCh        chan struct{}
	closeOnce     sync.Once

	startedAt time.Time

	detectedIntent string
	lastErrorText  string
	outcome        string
}

// interactionEvent is one unit of work fed into the serialization loop: a
// freshly transcribed, confidence-accepted user utterance. Any tool-result
// continuations a turn needs are handled inside runTurn's own loop rather
// than re-entering this channel, since the serialization contract only
// requires at most one live LLM stream at a time, not a shared queue for
// every intermediate step.
type interactionEvent struct {
	userText string
}

func newCallSession(o *Orchestrator, t tenant.Tenant, start ingress.StreamStart, conn *websocket.Conn) *callSession {
	return &callSession{
		orch:          o,
		conn:          conn,
		tenant:        t,
		streamSID:     start.StreamSID,
		callSID:       start.CallSID,
		fromNumber:    start.CustomParameters.CallerPhone,
		clock:         o.cfg.Clock,
		state:         StateInit,
		pending:       newRingBuffer(pendingTurnRingCapacity),
		interactionCh: make(chan interactionEvent, 4),
		doneCh:        make(chan struct{}),
		timerResetCh:  make(chan struct{}, 1),
	}
}

// transition moves the session to `to`. Forbidden once TERMINATED; moving to
// the current state is a silent no-op, per spec.md §4.12.1.
func (cs *callSession) transition(to State) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.state == StateTerminated || cs.state == to {
		return
	}
	cs.state = to
}

func (cs *callSession) currentState() State {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.state
}

// signalDone closes doneCh exactly once, unblocking every task in the
// call's goroutine group.
func (cs *callSession) signalDone() {
	cs.closeOnce.Do(func() { close(cs.doneCh) })
}
