package orchestrator

import (
	"context"
	"log/slog"
	"strconv"
)

// fallbackLevel identifies the graduated-fallback tier invoked by
// triggerFallback, per spec.md §4.12.8.
type fallbackLevel int

const (
	// fallbackSoftReask speaks an apologetic re-ask and lets the call continue.
	fallbackSoftReask fallbackLevel = 1
	// fallbackSMSHandoff sends an SMS to the caller (if enabled) and notifies
	// the business owner, then ends the call.
	fallbackSMSHandoff fallbackLevel = 2
	// fallbackInternalClose is used for internal crashes and closes the call
	// immediately.
	fallbackInternalClose fallbackLevel = 3
)

func (l fallbackLevel) String() string {
	switch l {
	case fallbackSoftReask:
		return "soft_reask"
	case fallbackSMSHandoff:
		return "sms_handoff"
	case fallbackInternalClose:
		return "internal_close"
	default:
		return "unknown"
	}
}

const (
	softReaskPhrase     = "Sorry, I'm having a little trouble right now. Could you say that again?"
	smsHandoffPhrase    = "I'm sorry, I'm unable to help with that right now. We'll follow up with you by text message shortly."
	internalClosePhrase = "I'm very sorry, something went wrong on our end. Please call back in a few minutes."
)

// triggerFallback invokes the graduated failure-recovery behavior for
// level, recording the metric and Call Session error field spec.md §4.12.8
// requires of every fallback activation.
func (cs *callSession) triggerFallback(ctx context.Context, level fallbackLevel, cause error) {
	cs.mu.Lock()
	cs.lastErrorText = cause.Error()
	cs.mu.Unlock()

	if m := cs.orch.cfg.Metrics; m != nil {
		m.RecordFallbackTriggered(ctx, cs.tenant.ID, strconv.Itoa(int(level)))
	}
	slog.Warn("orchestrator: fallback triggered", "call_sid", cs.callSID, "level", level.String(), "err", cause)

	switch level {
	case fallbackSoftReask:
		cs.speakOneShot(ctx, softReaskPhrase)
	case fallbackSMSHandoff:
		cs.handleSMSHandoff(ctx)
		cs.signalDone()
	case fallbackInternalClose:
		cs.speakOneShot(ctx, internalClosePhrase)
		cs.signalDone()
	}
}

// handleSMSHandoff sends the caller-facing handoff message. When an
// SMSNotifier is configured, it also texts the caller and notifies the
// business owner; otherwise it degrades to a same-call spoken apology. No
// per-tenant SMS setting is consulted.
func (cs *callSession) handleSMSHandoff(ctx context.Context) {
	notifier := cs.orch.cfg.SMS
	if notifier == nil {
		cs.speakOneShot(ctx, internalClosePhrase)
		return
	}

	cs.speakOneShot(ctx, smsHandoffPhrase)

	msg := "We missed you on a call and will follow up shortly."
	if err := notifier.NotifyCaller(ctx, cs.tenant.ID, cs.callerPhone(), msg); err != nil {
		slog.Warn("orchestrator: SMS handoff to caller failed", "call_sid", cs.callSID, "err", err)
	}
	ownerMsg := "A caller could not be helped by the assistant and was handed off: call " + cs.callSID
	if err := notifier.NotifyOwner(ctx, cs.tenant.ID, ownerMsg); err != nil {
		slog.Warn("orchestrator: owner notification failed", "call_sid", cs.callSID, "err", err)
	}
}

func (cs *callSession) callerPhone() string {
	return cs.fromNumber
}
