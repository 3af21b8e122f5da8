package app

import (
	"context"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/glyphoxa/internal/ingress"
)

// trackedCallHandler wraps the orchestrator with a call_sid-keyed registry
// of in-flight calls, generalizing the teacher's single-active-session
// internal/app/session_manager.go to N concurrent calls. The orchestrator
// itself never keeps this map — internal/app is where call lifetimes are
// tracked, so Shutdown can cancel every outstanding call before tearing down
// the stores and coordinator they depend on.
type trackedCallHandler struct {
	inner ingress.CallHandler

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func newTrackedCallHandler(inner ingress.CallHandler) *trackedCallHandler {
	return &trackedCallHandler{inner: inner, active: make(map[string]context.CancelFunc)}
}

// HandleCall registers start.CallSID for the duration of the call and
// deregisters it when the inner handler returns, whether that is because
// the caller hung up or because Shutdown cancelled it.
func (h *trackedCallHandler) HandleCall(ctx context.Context, conn *websocket.Conn, start ingress.StreamStart) {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.mu.Lock()
	h.active[start.CallSID] = cancel
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.active, start.CallSID)
		h.mu.Unlock()
	}()

	h.inner.HandleCall(callCtx, conn, start)
}

// ActiveCalls reports the number of calls currently in progress.
func (h *trackedCallHandler) ActiveCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

// CancelAll cancels every in-flight call's context, so each call_sid's
// HandleCall goroutine unwinds (releasing its coordinator admission and
// flushing its conversation log) before Shutdown closes the stores.
func (h *trackedCallHandler) CancelAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, cancel := range h.active {
		cancel()
	}
}

var _ ingress.CallHandler = (*trackedCallHandler)(nil)
