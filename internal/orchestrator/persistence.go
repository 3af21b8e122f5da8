package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/glyphoxa/internal/store"
)

// truncateTurn caps text at maxTurnContentBytes, per spec.md §4.12.7.
func truncateTurn(text string) string {
	if len(text) <= maxTurnContentBytes {
		return text
	}
	return text[:maxTurnContentBytes]
}

// persistTurn records one conversation turn. It is fire-and-forget: callers
// never block the audio loop on the store write. A write that fails because
// the tenant's store is not yet reachable is held in the call's ring buffer
// and retried the next time persistTurn runs.
func (cs *callSession) persistTurn(role, text string) {
	text = truncateTurn(text)
	createdAt := cs.clock.Now().UTC()

	go func() {
		cs.flushAndWrite(role, text, createdAt)
	}()
}

func (cs *callSession) flushAndWrite(role, text string, createdAt time.Time) {
	ctx := context.Background()
	tstore, err := cs.tenantStore(ctx)
	if err != nil {
		cs.mu.Lock()
		cs.pending.push(pendingTurn{role: role, text: text, createdAt: createdAt})
		cs.mu.Unlock()
		return
	}

	cs.mu.Lock()
	backlog := cs.pending.drain()
	cs.mu.Unlock()

	for _, p := range backlog {
		if err := tstore.InsertConversationTurn(ctx, cs.callSID, p.role, p.text, p.createdAt); err != nil {
			slog.Warn("orchestrator: flush pending turn failed", "call_sid", cs.callSID, "err", err)
		}
	}

	if err := tstore.InsertConversationTurn(ctx, cs.callSID, role, text, createdAt); err != nil {
		slog.Warn("orchestrator: persist turn failed", "call_sid", cs.callSID, "err", err)
		cs.mu.Lock()
		cs.pending.push(pendingTurn{role: role, text: text, createdAt: createdAt})
		cs.mu.Unlock()
	}
}

func (cs *callSession) tenantStore(ctx context.Context) (TenantStore, error) {
	return cs.orch.cfg.Stores.Store(ctx, cs.tenant.ID)
}

// insertInitialCallLog writes the Call Session row at GREETING entry,
// fire-and-forget per the same reachability policy as persistTurn.
func (cs *callSession) insertInitialCallLog() {
	go func() {
		tstore, err := cs.tenantStore(context.Background())
		if err != nil {
			slog.Debug("orchestrator: initial call log deferred, store unreachable", "call_sid", cs.callSID, "err", err)
			return
		}
		row := store.CallLog{
			CallSID:    cs.callSID,
			FromNumber: cs.fromNumber,
			Direction:  store.CallDirectionInbound,
			Status:     store.CallStatusInProgress,
			StartedAt:  cs.startedAt,
		}
		if err := tstore.InsertCallLog(context.Background(), row); err != nil {
			slog.Warn("orchestrator: insert call log failed", "call_sid", cs.callSID, "err", err)
		}
	}()
}

// finalizeCallLog updates the Call Session row with its terminal status,
// called once when the call transitions to TERMINATED.
func (cs *callSession) finalizeCallLog() {
	cs.mu.Lock()
	turnCounter := cs.turnCounter
	detectedIntent := cs.detectedIntent
	errorText := cs.lastErrorText
	outcome := cs.outcome
	cs.mu.Unlock()

	endedAt := cs.clock.Now().UTC()
	durationSeconds := int(endedAt.Sub(cs.startedAt).Seconds())

	go func() {
		tstore, err := cs.tenantStore(context.Background())
		if err != nil {
			slog.Debug("orchestrator: final call log update deferred, store unreachable", "call_sid", cs.callSID, "err", err)
			return
		}
		status := store.CallStatusCompleted
		if errorText != "" {
			status = store.CallStatusFailed
		}
		if err := tstore.UpdateCallLog(context.Background(), cs.callSID, status, outcome, detectedIntent, errorText, durationSeconds, turnCounter, endedAt); err != nil {
			slog.Warn("orchestrator: finalize call log failed", "call_sid", cs.callSID, "err", err)
		}
	}()
}
