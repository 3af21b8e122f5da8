// Package ingress implements the Webhook Ingress (C11): the HTTP/WS surface
// that receives inbound telephony webhooks and media-stream connections and
// hands admitted calls off to the orchestrator.
//
// Deliberately built on stdlib net/http (Go 1.22+ method+path ServeMux
// patterns) with no router library, per spec.md's explicit scope note that
// HTTP framework choice is out of scope: no component here needs more than
// http.ServeMux provides.
package ingress

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/glyphoxa/internal/apperr"
	"github.com/MrWong99/glyphoxa/internal/calendar"
	"github.com/MrWong99/glyphoxa/internal/clockutil"
	"github.com/MrWong99/glyphoxa/internal/coordinator"
	"github.com/MrWong99/glyphoxa/internal/observe"
	"github.com/MrWong99/glyphoxa/internal/store"
	"github.com/MrWong99/glyphoxa/internal/tenant"
)

// TenantResolver looks up tenants by id or by the number a call arrived on.
type TenantResolver interface {
	FindByID(id string) (tenant.Tenant, error)
	FindByPhone(phone string) (tenant.Tenant, error)
}

// StoreResolver returns the per-tenant store, used to record call logs and
// voicemails.
type StoreResolver interface {
	Store(ctx context.Context, tenantID string) (*store.TenantStore, error)
}

// CalendarResolver returns the connected calendar provider for a tenant,
// used by the OAuth onboarding routes.
type CalendarResolver interface {
	Calendar(ctx context.Context, tenantID string) (calendar.Provider, error)
}

// VaultResolver persists the calendar selection made after OAuth completes.
type VaultResolver interface {
	SetCalendarSelection(ctx context.Context, tenantID, provider, calendarID string) error
}

// Server is the Webhook Ingress HTTP/WS handler set.
type Server struct {
	tenants     TenantResolver
	stores      StoreResolver
	calendars   CalendarResolver
	vault       VaultResolver
	coordinator coordinator.Coordinator
	metrics     *observe.Metrics
	callHandler CallHandler
	clock       clockutil.Clock

	publicHost  string
	adminAPIKey string

	webhookTTL time.Duration
}

// Config configures a [Server].
type Config struct {
	Tenants     TenantResolver
	Stores      StoreResolver
	Calendars   CalendarResolver
	Vault       VaultResolver
	Coordinator coordinator.Coordinator
	Metrics     *observe.Metrics
	CallHandler CallHandler
	Clock       clockutil.Clock

	// PublicHost is the externally-reachable host:port used to build the
	// media-stream WS URL (no scheme).
	PublicHost string

	// AdminAPIKey gates admin endpoints and the webhook signature bypass
	// used in local development.
	AdminAPIKey string

	// WebhookIdempotencyTTL bounds how long a processed webhook's
	// idempotency key is remembered. Defaults to 24 hours.
	WebhookIdempotencyTTL time.Duration
}

// New creates a [Server] from cfg.
func New(cfg Config) *Server {
	clock := cfg.Clock
	if clock == nil {
		clock = clockutil.System
	}
	ttl := cfg.WebhookIdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Server{
		tenants:     cfg.Tenants,
		stores:      cfg.Stores,
		calendars:   cfg.Calendars,
		vault:       cfg.Vault,
		coordinator: cfg.Coordinator,
		metrics:     cfg.Metrics,
		callHandler: cfg.CallHandler,
		clock:       clock,
		publicHost:  cfg.PublicHost,
		adminAPIKey: cfg.AdminAPIKey,
		webhookTTL:  ttl,
	}
}

// Routes returns the handler to mount at the application's root, wrapped by
// the caller with [observe.Middleware].
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /voice", s.handleVoice)
	mux.HandleFunc("POST /status-callback", s.handleStatusCallback)
	mux.HandleFunc("POST /voicemail-callback", s.handleVoicemailCallback)
	mux.HandleFunc("GET /auth/{provider}/login", s.handleAuthLogin)
	mux.HandleFunc("GET /auth/{provider}/callback", s.handleAuthCallback)
	mux.HandleFunc("POST /auth/{provider}/select-calendar", s.handleSelectCalendar)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /media-stream", s.handleMediaStream)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// signatureHeader carries the base64 HMAC-SHA1 signature the telephony
// provider computed over the request, per spec.md §6.
const signatureHeader = "X-Webhook-Signature"

// devBypassHeader lets a pre-flight operator tool skip signature
// verification in local development, per spec.md §4.11 step 1.
const devBypassHeader = "X-Admin-Preflight-Key"

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		s.writeRejection(w, r, "", apperr.Wrap(apperr.KindInvalidArgument, err, "parse webhook form"))
		return
	}

	callSID := r.Form.Get("CallSid")
	from := r.Form.Get("From")
	to := r.Form.Get("To")
	callStatus := r.Form.Get("CallStatus")

	if !s.verifySignature(r) {
		s.writeRejection(w, r, "", apperr.New(apperr.KindSignatureInvalid, "invalid webhook signature"))
		return
	}

	key := idempotencyKey("/voice", callSID, "", callStatus, r.URL.Query().Get("tenantId"), "voice")
	fresh, err := s.coordinator.MarkWebhookProcessed(ctx, key, s.webhookTTL)
	if err != nil {
		slog.Warn("ingress: mark webhook processed failed, proceeding as fresh", "err", err)
		fresh = true
	}
	if !fresh {
		s.writeXML(w, http.StatusOK, mustEmptyAck())
		return
	}

	t, err := s.resolveTenant(r, to)
	if err != nil {
		s.writeRejection(w, r, "", err)
		return
	}
	if !t.IsActive() {
		s.metrics.VoiceWebhookError.Add(ctx, 1, attribute.String("tenant_id", t.ID))
		body, _ := politeRejectionResponse("This number is not currently accepting calls. Goodbye.")
		s.writeXML(w, http.StatusOK, body)
		return
	}

	result, err := s.coordinator.AdmitCall(ctx, callSID, t.ID)
	if err != nil {
		slog.Error("ingress: admit call failed", "tenant_id", t.ID, "call_sid", callSID, "err", err)
		s.writeRejection(w, r, t.ID, apperr.Wrap(apperr.KindInternal, err, "admit call"))
		return
	}
	if !result.Admitted {
		s.metrics.VoiceWebhookError.Add(ctx, 1, attribute.String("tenant_id", t.ID))
		msg := "We're currently at capacity. Please try your call again shortly."
		if result.Queued {
			msg = "All our lines are busy. You've been placed in a queue and will be connected shortly; please stay on the line or call back later."
		}
		body, _ := politeRejectionResponse(msg)
		s.writeXML(w, http.StatusOK, body)
		return
	}

	tstore, err := s.stores.Store(ctx, t.ID)
	if err != nil {
		slog.Warn("ingress: tenant store unavailable, proceeding without call log", "tenant_id", t.ID, "err", err)
	} else if err := tstore.InsertCallLog(ctx, callLogFor(callSID, from, s.clock.Now().UTC())); err != nil {
		slog.Warn("ingress: insert call log failed", "tenant_id", t.ID, "call_sid", callSID, "err", err)
	}

	body, err := connectStreamResponse(s.publicHost, callSID, t.ID)
	if err != nil {
		s.writeRejection(w, r, t.ID, apperr.Wrap(apperr.KindInternal, err, "build voice response"))
		return
	}
	s.metrics.VoiceWebhookOK.Add(ctx, 1, attribute.String("tenant_id", t.ID))
	s.writeXML(w, http.StatusOK, body)
}

func callLogFor(callSID, from string, startedAt time.Time) store.CallLog {
	return store.CallLog{
		CallSID:    callSID,
		FromNumber: from,
		Direction:  store.CallDirectionInbound,
		Status:     store.CallStatusInProgress,
		StartedAt:  startedAt,
	}
}

// resolveTenant implements spec.md §4.11 step 3: prefer the explicit
// tenantId query parameter, else map from the called number.
func (s *Server) resolveTenant(r *http.Request, to string) (tenant.Tenant, error) {
	if id := r.URL.Query().Get("tenantId"); id != "" {
		t, err := s.tenants.FindByID(id)
		if err != nil {
			return tenant.Tenant{}, apperr.Wrap(apperr.KindUnknownTenant, err, "resolve tenant by id %q", id)
		}
		return t, nil
	}
	t, err := s.tenants.FindByPhone(to)
	if err != nil {
		return tenant.Tenant{}, apperr.Wrap(apperr.KindUnknownTenant, err, "resolve tenant by phone %q", to)
	}
	return t, nil
}

func (s *Server) verifySignature(r *http.Request) bool {
	if s.adminAPIKey != "" && r.Header.Get(devBypassHeader) == s.adminAPIKey {
		return true
	}
	tenantAuthToken := s.telephonyAuthToken(r)
	if tenantAuthToken == "" {
		return false
	}
	return verifyRequest(tenantAuthToken, r, r.PostForm, r.Header.Get(signatureHeader))
}

// telephonyAuthToken resolves the signing secret for the request's tenant,
// trying the explicit query parameter first and then the called number,
// mirroring resolveTenant without surfacing its errors (an invalid or
// unknown tenant simply fails signature verification).
func (s *Server) telephonyAuthToken(r *http.Request) string {
	if id := r.URL.Query().Get("tenantId"); id != "" {
		if t, err := s.tenants.FindByID(id); err == nil {
			return t.Config.Telephony.ProviderAuthToken
		}
		return ""
	}
	if t, err := s.tenants.FindByPhone(r.Form.Get("To")); err == nil {
		return t.Config.Telephony.ProviderAuthToken
	}
	return ""
}

// writeRejection maps a classified error to the webhook's polite-failure
// voice response and records the corresponding metric. Per spec.md §7,
// signature failures alone return a 403 JSON body instead of XML.
func (s *Server) writeRejection(w http.ResponseWriter, r *http.Request, tenantID string, err error) {
	if tenantID != "" {
		s.metrics.VoiceWebhookError.Add(r.Context(), 1, attribute.String("tenant_id", tenantID))
	}
	if apperr.Is(err, apperr.KindSignatureInvalid) {
		slog.Warn("ingress: rejected webhook with invalid signature", "err", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"Invalid signature"}`))
		return
	}
	slog.Warn("ingress: rejected webhook", "err", err, "kind", apperr.KindOf(err))
	body, marshalErr := politeRejectionResponse("We're sorry, we could not process your call. Goodbye.")
	if marshalErr != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	s.writeXML(w, http.StatusOK, body)
}

func (s *Server) writeXML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(status)
	w.Write(body)
}

func mustEmptyAck() []byte {
	body, err := emptyAckResponse()
	if err != nil {
		// xml.Marshal of a literal struct cannot fail.
		panic(err)
	}
	return body
}

// handleStatusCallback acknowledges call-status webhooks (ringing,
// completed, failed, etc). These carry no conversational content; ingress
// only needs to apply idempotency and respond.
func (s *Server) handleStatusCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeXML(w, http.StatusOK, mustEmptyAck())
		return
	}
	callSID := r.Form.Get("CallSid")
	callStatus := r.Form.Get("CallStatus")
	tenantID := r.URL.Query().Get("tenantId")

	key := idempotencyKey("/status-callback", callSID, "", callStatus, tenantID, "status")
	if _, err := s.coordinator.MarkWebhookProcessed(r.Context(), key, s.webhookTTL); err != nil {
		slog.Warn("ingress: mark webhook processed failed", "err", err)
	}
	s.writeXML(w, http.StatusOK, mustEmptyAck())
}

// handleVoicemailCallback persists the recorded voicemail once the
// telephony provider's <Record> verb completes, per spec.md §8 scenario 5.
func (s *Server) handleVoicemailCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		s.writeXML(w, http.StatusOK, mustEmptyAck())
		return
	}

	tenantID := r.URL.Query().Get("tenantId")
	callSID := r.Form.Get("CallSid")
	recordingURL := r.Form.Get("RecordingUrl")
	transcript := r.Form.Get("TranscriptionText")
	eventKind := "voicemail"
	if r.URL.Query().Get("type") == "transcription" {
		eventKind = "voicemail_transcription"
	}

	key := idempotencyKey("/voicemail-callback", callSID, recordingURL, "", tenantID, eventKind)
	fresh, err := s.coordinator.MarkWebhookProcessed(ctx, key, s.webhookTTL)
	if err != nil {
		slog.Warn("ingress: mark webhook processed failed, proceeding as fresh", "err", err)
		fresh = true
	}
	if !fresh || tenantID == "" {
		s.writeXML(w, http.StatusOK, mustEmptyAck())
		return
	}

	tstore, err := s.stores.Store(ctx, tenantID)
	if err != nil {
		slog.Warn("ingress: tenant store unavailable for voicemail", "tenant_id", tenantID, "err", err)
		s.writeXML(w, http.StatusOK, mustEmptyAck())
		return
	}
	if err := tstore.InsertVoicemail(ctx, store.Voicemail{
		ID:         recordingURL,
		CallSID:    callSID,
		Callback:   r.Form.Get("From"),
		Transcript: transcript,
		CreatedAt:  s.clock.Now().UTC(),
	}); err != nil {
		slog.Warn("ingress: insert voicemail failed", "tenant_id", tenantID, "call_sid", callSID, "err", err)
	}
	s.writeXML(w, http.StatusOK, mustEmptyAck())
}

// handleAuthLogin redirects a tenant administrator to the calendar
// provider's OAuth consent screen.
func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	tenantID := r.URL.Query().Get("tenantId")
	if tenantID == "" {
		http.Error(w, "tenantId is required", http.StatusBadRequest)
		return
	}

	cal, err := s.calendars.Calendar(r.Context(), tenantID)
	if err != nil {
		http.Error(w, "unknown tenant or calendar provider", http.StatusBadRequest)
		return
	}
	authURL, err := cal.AuthURL(tenantID)
	if err != nil {
		slog.Error("ingress: build auth url failed", "tenant_id", tenantID, "provider", provider, "err", err)
		http.Error(w, "could not start calendar authorization", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleAuthCallback completes the OAuth code exchange for the tenant named
// in the state parameter.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID := q.Get("state")
	code := q.Get("code")
	if tenantID == "" || code == "" {
		http.Error(w, "missing state or code", http.StatusBadRequest)
		return
	}

	cal, err := s.calendars.Calendar(r.Context(), tenantID)
	if err != nil {
		http.Error(w, "unknown tenant or calendar provider", http.StatusBadRequest)
		return
	}
	if err := cal.CompleteOAuth(r.Context(), tenantID, code); err != nil {
		slog.Error("ingress: complete oauth failed", "tenant_id", tenantID, "err", err)
		status := http.StatusBadGateway
		if apperr.Is(err, apperr.KindAuthExpired) || apperr.Is(err, apperr.KindPermissionDenied) {
			status = http.StatusUnauthorized
		}
		http.Error(w, "could not complete calendar authorization", status)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Calendar connected. You may close this window."))
}

// handleSelectCalendar persists which of the provider's calendars the
// tenant wants used once OAuth has completed.
func (s *Server) handleSelectCalendar(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	tenantID := r.Form.Get("tenantId")
	calendarID := r.Form.Get("calendarId")
	if tenantID == "" || calendarID == "" {
		http.Error(w, "tenantId and calendarId are required", http.StatusBadRequest)
		return
	}
	if err := s.vault.SetCalendarSelection(r.Context(), tenantID, provider, calendarID); err != nil {
		slog.Error("ingress: set calendar selection failed", "tenant_id", tenantID, "provider", provider, "err", err)
		status := http.StatusBadGateway
		if errors.Is(err, context.Canceled) {
			status = http.StatusRequestTimeout
		}
		http.Error(w, "could not save calendar selection", status)
		return
	}
	w.WriteHeader(http.StatusOK)
}
