// Package orchestrator implements the Call Session Orchestrator (C12): the
// per-call state machine that drives one telephony media-stream connection
// from GREETING through CONVERSATION (with TOOL_WAIT excursions) to
// TERMINATED, wiring together STT, the LLM, TTS, and the Tool Executor for
// the life of a single call.
//
// Each call owns one goroutine group (media-in, STT-out, LLM-turn/TTS-out,
// timers) with no state shared across calls; cross-call coordination happens
// only through the Coordinator and the shared Tenant Registry, exactly as
// spec.md §5 describes. Orchestrator itself holds only the dependencies
// shared by every call (providers, tool host, coordinator, metrics, clock)
// and implements [ingress.CallHandler] by spawning a fresh *callSession per
// connection — it never keeps a map of active calls itself; that is
// internal/app's concern (mirroring the teacher's single-session
// internal/app/session_manager.go, generalized to N concurrent call_sid-keyed
// sessions).
package orchestrator

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/glyphoxa/internal/clockutil"
	"github.com/MrWong99/glyphoxa/internal/coordinator"
	"github.com/MrWong99/glyphoxa/internal/ingress"
	"github.com/MrWong99/glyphoxa/internal/observe"
	"github.com/MrWong99/glyphoxa/internal/store"
	"github.com/MrWong99/glyphoxa/internal/tenant"
	"github.com/MrWong99/glyphoxa/internal/toolexec"
	"github.com/MrWong99/glyphoxa/pkg/provider/llm"
	"github.com/MrWong99/glyphoxa/pkg/provider/stt"
	"github.com/MrWong99/glyphoxa/pkg/provider/tts"
	"github.com/MrWong99/glyphoxa/pkg/types"
)

// Default tunables, per spec.md §6 environment configuration defaults.
const (
	DefaultASRConfidenceThreshold = 0.6
	DefaultInactivityTimeout      = 30 * time.Second
	DefaultMaxCallDuration        = 600 * time.Second
	DefaultMaxHistory             = 20
	DefaultKeepRecent             = 10
	DefaultCloseGrace             = 3 * time.Second

	// bargeInMinWords is the minimum word count of a partial transcript that
	// counts as a barge-in, per spec.md §4.12.3.
	bargeInMinWords = 4
	// bargeInMinConfidence is the minimum confidence of a partial transcript
	// that counts as a barge-in, independent of word count.
	bargeInMinConfidence = 0.8

	// refreshEveryNFrames throttles how often a live call opportunistically
	// refreshes its Coordinator admission TTL from the media-in loop.
	refreshEveryNFrames = 50
)

// TenantResolver is the narrow slice of the Tenant Registry the orchestrator
// depends on.
type TenantResolver interface {
	FindByID(id string) (tenant.Tenant, error)
}

// StoreResolver opens the per-tenant store used to persist call logs,
// conversation turns, and voicemail fallbacks.
type StoreResolver interface {
	Store(ctx context.Context, tenantID string) (TenantStore, error)
}

// TenantStore is the slice of *store.TenantStore the orchestrator writes to.
// Declared as an interface so tests can substitute a fake without standing
// up sqlite.
type TenantStore interface {
	InsertCallLog(ctx context.Context, c store.CallLog) error
	UpdateCallLog(ctx context.Context, callSID string, status store.CallStatus, outcome, detectedIntent, errorText string, durationSeconds, turnCount int, endedAt time.Time) error
	InsertConversationTurn(ctx context.Context, callSID, role, text string, createdAt time.Time) error
}

// ToolExecutor is the slice of *toolexec.Host the orchestrator depends on.
type ToolExecutor interface {
	AvailableTools() []toolexec.ToolDefinition
	ExecuteTool(ctx context.Context, tenantID, name, argsJSON string) (*toolexec.ToolResult, error)
}

// SMSNotifier sends the level-2 graduated-fallback handoff SMS to the caller
// and notifies the tenant's configured business owner. internal/app does not
// configure one; a nil SMSNotifier degrades level 2 to a same-call apology
// (see fallback.go).
type SMSNotifier interface {
	NotifyCaller(ctx context.Context, tenantID, toPhone, message string) error
	NotifyOwner(ctx context.Context, tenantID, message string) error
}

// Config holds every dependency and tunable an Orchestrator needs to drive
// calls. Providers are expected to already be wrapped in
// internal/resilience fallback groups where multi-backend failover is
// desired — Orchestrator only ever sees the llm.Provider/stt.Provider/
// tts.Provider interfaces and does not know or care whether a given instance
// degrades across backends internally.
type Config struct {
	Tenants     TenantResolver
	Stores      StoreResolver
	Tools       ToolExecutor
	Coordinator coordinator.Coordinator
	Metrics     *observe.Metrics

	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider

	SMS   SMSNotifier
	Clock clockutil.Clock
	Voice types.VoiceProfile

	ASRConfidenceThreshold float64
	InactivityTimeout      time.Duration
	MaxCallDuration        time.Duration
	MaxHistory             int
	KeepRecent             int
	CloseGrace             time.Duration

	SystemPrompt string
}

// Orchestrator drives admitted calls end-to-end. It implements
// [ingress.CallHandler]; one Orchestrator instance is shared by every call
// handled by a process.
type Orchestrator struct {
	cfg Config

	// tunables holds ASRConfidenceThreshold/InactivityTimeout behind an
	// atomic pointer so internal/app's config hot-reload watcher can update
	// them for every in-flight and future call without a process restart.
	// Every other Config field requires a restart to change.
	tunables atomic.Pointer[tunables]
}

// tunables is the subset of Config that can be changed while calls are in
// flight.
type tunables struct {
	asrConfidenceThreshold float64
	inactivityTimeout      time.Duration
}

// Compile-time assertion that *Orchestrator satisfies ingress.CallHandler.
var _ ingress.CallHandler = (*Orchestrator)(nil)

// New builds an Orchestrator from cfg, filling in spec-default tunables for
// any zero-valued field.
func New(cfg Config) *Orchestrator {
	if cfg.Clock == nil {
		cfg.Clock = clockutil.System
	}
	if cfg.ASRConfidenceThreshold == 0 {
		cfg.ASRConfidenceThreshold = DefaultASRConfidenceThreshold
	}
	if cfg.InactivityTimeout == 0 {
		cfg.InactivityTimeout = DefaultInactivityTimeout
	}
	if cfg.MaxCallDuration == 0 {
		cfg.MaxCallDuration = DefaultMaxCallDuration
	}
	if cfg.MaxHistory == 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	if cfg.KeepRecent == 0 {
		cfg.KeepRecent = DefaultKeepRecent
	}
	if cfg.CloseGrace == 0 {
		cfg.CloseGrace = DefaultCloseGrace
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	orch := &Orchestrator{cfg: cfg}
	orch.tunables.Store(&tunables{
		asrConfidenceThreshold: cfg.ASRConfidenceThreshold,
		inactivityTimeout:      cfg.InactivityTimeout,
	})
	return orch
}

// SetTunables updates the live ASR confidence threshold and inactivity
// timeout, consulted by every in-flight and future call. A zero value for
// either argument falls back to its spec-default rather than disabling the
// check.
func (o *Orchestrator) SetTunables(asrConfidenceThreshold float64, inactivityTimeout time.Duration) {
	if asrConfidenceThreshold == 0 {
		asrConfidenceThreshold = DefaultASRConfidenceThreshold
	}
	if inactivityTimeout == 0 {
		inactivityTimeout = DefaultInactivityTimeout
	}
	o.tunables.Store(&tunables{
		asrConfidenceThreshold: asrConfidenceThreshold,
		inactivityTimeout:      inactivityTimeout,
	})
}

// currentTunables returns the live ASR confidence threshold and inactivity
// timeout, as last set by New or SetTunables.
func (o *Orchestrator) currentTunables() *tunables {
	return o.tunables.Load()
}

const defaultSystemPrompt = "You are a friendly phone receptionist. Keep replies brief and natural for speech. " +
	"Use the available tools to check availability and book appointments; ask for the caller's name, phone, and " +
	"email before booking. If you cannot help, offer to take a voicemail."

// HandleCall drives one admitted call for its full duration. It blocks until
// the call reaches TERMINATED — socket close, hard-duration timeout, or an
// unrecoverable internal failure — releasing the call's Coordinator
// admission before returning.
func (o *Orchestrator) HandleCall(ctx context.Context, conn *websocket.Conn, start ingress.StreamStart) {
	tenantID := start.CustomParameters.TenantID
	t, err := o.cfg.Tenants.FindByID(tenantID)
	if err != nil {
		slog.Warn("orchestrator: call references unresolvable tenant", "tenant_id", tenantID, "call_sid", start.CallSID, "err", err)
		conn.Close(websocket.StatusPolicyViolation, "unknown tenant")
		return
	}

	cs := newCallSession(o, t, start, conn)
	defer func() {
		if o.cfg.Coordinator != nil {
			if err := o.cfg.Coordinator.ReleaseCall(context.Background(), start.CallSID, tenantID); err != nil {
				slog.Warn("orchestrator: release admission failed", "call_sid", start.CallSID, "err", err)
			}
		}
	}()

	cs.run(ctx)
}
