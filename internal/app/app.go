// Package app wires every voicereceptiond subsystem into a running
// application.
//
// App owns the full lifecycle: New creates and connects every subsystem in
// dependency order, Run blocks serving traffic until its context is
// cancelled, and Shutdown tears everything down in reverse-init order.
// There are no package-level mutable singletons anywhere in this tree —
// every component receives its dependencies through this one struct,
// mirroring the teacher's internal/app.App.
//
// For testing, inject test doubles via functional options (WithClock,
// WithCoordinator, ...). When an option is not provided, New builds the
// real implementation from cfg.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/glyphoxa/internal/calendar"
	"github.com/MrWong99/glyphoxa/internal/calendar/google"
	"github.com/MrWong99/glyphoxa/internal/calendar/outlook"
	"github.com/MrWong99/glyphoxa/internal/clockutil"
	"github.com/MrWong99/glyphoxa/internal/config"
	"github.com/MrWong99/glyphoxa/internal/coordinator"
	"github.com/MrWong99/glyphoxa/internal/health"
	"github.com/MrWong99/glyphoxa/internal/ingress"
	"github.com/MrWong99/glyphoxa/internal/observe"
	"github.com/MrWong99/glyphoxa/internal/orchestrator"
	"github.com/MrWong99/glyphoxa/internal/resilience"
	"github.com/MrWong99/glyphoxa/internal/scheduler"
	"github.com/MrWong99/glyphoxa/internal/store"
	"github.com/MrWong99/glyphoxa/internal/tenant"
	"github.com/MrWong99/glyphoxa/internal/toolexec"
	"github.com/MrWong99/glyphoxa/internal/vault"
	"github.com/MrWong99/glyphoxa/pkg/provider/llm"
	"github.com/MrWong99/glyphoxa/pkg/provider/stt"
	"github.com/MrWong99/glyphoxa/pkg/provider/tts"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

// Providers holds one interface value per pipeline stage. Populated by
// cmd/voicereceptiond via the config registry and passed to New; nil means
// the stage was not configured, which New treats as a fatal error (unlike
// the teacher, which tolerates a partially-configured NPC roster, every
// call here needs all three).
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// App owns every subsystem's lifetime and serves inbound calls until
// Shutdown is called.
type App struct {
	cfg        *config.Config
	configPath string
	providers  *Providers
	clock      clockutil.Clock

	configWatcher *config.Watcher

	factory     *store.Factory
	tenants     *tenant.Registry
	vault       *vault.Vault
	coordinator coordinator.Coordinator
	drainer     *coordinator.QueueDrainer

	googleCal  *google.Provider
	outlookCal *outlook.Provider
	calendars  *calendarResolver
	stores     *storeResolver
	scheduler  *scheduler.Scheduler
	syncLoop   *scheduler.SyncLoop
	tools      *toolexec.Host

	metrics      *observe.Metrics
	otelShutdown func(context.Context) error

	orch    *orchestrator.Orchestrator
	calls   *trackedCallHandler
	ingress *ingress.Server
	health  *health.Handler
	httpSrv *http.Server

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New, used to inject test doubles.
type Option func(*App)

// WithClock overrides the time source used by every subsystem that accepts
// one. Defaults to [clockutil.System].
func WithClock(c clockutil.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithCoordinator injects a [coordinator.Coordinator] instead of building
// one from cfg.Coordinator.RedisURL.
func WithCoordinator(c coordinator.Coordinator) Option {
	return func(a *App) { a.coordinator = c }
}

// WithTenantRegistry injects a [tenant.Registry] instead of opening the
// shared registry database from cfg.Store.DataDir.
func WithTenantRegistry(r *tenant.Registry) Option {
	return func(a *App) { a.tenants = r }
}

// WithStoreFactory injects a [store.Factory] instead of creating one from
// cfg.Store.DataDir.
func WithStoreFactory(f *store.Factory) Option {
	return func(a *App) { a.factory = f }
}

// WithConfigWatcher enables hot-reload of the call tunables
// (ASRConfidenceThreshold, SilenceTimeout) and the calendar_sync_dry_run
// feature flag by polling the YAML file at path for changes. A log-level
// change is logged but not applied to the running logger. Only meaningful
// when the process was started
// with -config; environment-configured deployments have no file to watch.
func WithConfigWatcher(path string) Option {
	return func(a *App) { a.configPath = path }
}

// New wires every subsystem together. New performs all initialisation
// synchronously: store factory, tenant registry, vault, coordinator,
// calendar adapters, scheduler, tool host, orchestrator, and ingress server.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil || providers.STT == nil || providers.TTS == nil {
		return nil, fmt.Errorf("app: LLM, STT, and TTS providers are all required")
	}

	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.clock == nil {
		a.clock = clockutil.System
	}

	if err := a.initStore(); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initTenants(ctx); err != nil {
		return nil, fmt.Errorf("app: init tenants: %w", err)
	}
	if err := a.initVault(); err != nil {
		return nil, fmt.Errorf("app: init vault: %w", err)
	}
	if err := a.initCoordinator(); err != nil {
		return nil, fmt.Errorf("app: init coordinator: %w", err)
	}
	a.initCalendars()
	a.initScheduler()
	a.initTools()
	if err := a.initObservability(ctx); err != nil {
		return nil, fmt.Errorf("app: init observability: %w", err)
	}
	a.initOrchestrator()
	if err := a.initConfigWatcher(); err != nil {
		return nil, fmt.Errorf("app: init config watcher: %w", err)
	}
	a.initIngress()
	a.initHealth()
	a.initHTTPServer()

	return a, nil
}

func (a *App) initStore() error {
	if a.factory != nil {
		return nil // injected
	}
	f, err := store.NewFactory(a.cfg.Store.DataDir)
	if err != nil {
		return err
	}
	a.factory = f
	a.closers = append(a.closers, f.Close)
	return nil
}

func (a *App) initTenants(ctx context.Context) error {
	if a.tenants != nil {
		return nil // injected
	}
	db, err := a.factory.Registry()
	if err != nil {
		return err
	}
	reg, err := tenant.New(db, a.factory, tenant.WithClock(a.clock))
	if err != nil {
		return err
	}
	a.tenants = reg
	return nil
}

func (a *App) initVault() error {
	if a.vault != nil {
		return nil // injected
	}
	v, err := vault.New(a.factory, a.tenants, a.cfg.Security.EncryptionKeyHex)
	if err != nil {
		return err
	}
	a.vault = v
	return nil
}

// initCoordinator branches on cfg.Coordinator.RedisURL: empty means the
// in-process Degraded coordinator (single-instance deployments only, per
// spec.md §4.6), non-empty builds a Redis-backed RedisCoordinator and its
// queue drainer.
func (a *App) initCoordinator() error {
	if a.coordinator != nil {
		return nil // injected
	}
	if a.cfg.Coordinator.RedisURL == "" {
		a.coordinator = coordinator.NewDegraded()
		return nil
	}

	opts, err := redis.ParseURL(a.cfg.Coordinator.RedisURL)
	if err != nil {
		return fmt.Errorf("parse coordinator.redis_url: %w", err)
	}
	rdb := redis.NewClient(opts)
	a.closers = append(a.closers, rdb.Close)

	rc, err := coordinator.NewRedisCoordinator(coordinator.RedisCoordinatorConfig{
		Redis:                 rdb,
		MaxGlobalActiveCalls:  a.cfg.Coordinator.MaxGlobalActiveCalls,
		MaxTenantActiveCalls:  a.cfg.Coordinator.MaxTenantActiveCalls,
		QueueEnabled:          a.cfg.Coordinator.QueueEnabled,
		QueueMaxSize:          a.cfg.Coordinator.QueueMaxSize,
		SessionTTL:            a.cfg.Coordinator.SessionTTL,
		WebhookIdempotencyTTL: a.cfg.Coordinator.WebhookIdempotencyTTL,
	})
	if err != nil {
		return err
	}
	a.coordinator = rc

	if a.cfg.Coordinator.QueueEnabled {
		a.drainer = coordinator.NewQueueDrainer(coordinator.QueueDrainerConfig{
			Coordinator: rc,
			Tenants:     tenantListerIDs{a.tenants},
			OnAdmitted: func(ctx context.Context, callSID, tenantID string) {
				slog.Info("coordinator: queued call admitted", "call_sid", callSID, "tenant_id", tenantID)
			},
		})
	}
	return nil
}

// featureCalendarSyncDryRun is the features/FEATURE_ env key that puts the
// calendar sync loop into dry-run mode (list events, record the sync_run row,
// skip the appointment-cache write). The only Config.Features flag currently
// consulted by business logic; others are accepted and hot-reload-diffed but
// otherwise informational until a consumer needs them.
const featureCalendarSyncDryRun = "calendar_sync_dry_run"

// initCalendars constructs the single Google and Outlook provider instances
// (each multi-tenant; tenantID is passed per call, never baked into the
// constructor) and the resolver that dispatches between them per tenant.
func (a *App) initCalendars() {
	if a.cfg.Calendar.GoogleClientID != "" {
		redirectURL := a.cfg.Server.PublicURL + "/auth/google/callback"
		a.googleCal = google.New(a.cfg.Calendar.GoogleClientID, a.cfg.Calendar.GoogleClientSecret, redirectURL, a.vault)
	}
	if a.cfg.Calendar.OutlookClientID != "" {
		redirectURL := a.cfg.Server.PublicURL + "/auth/outlook/callback"
		a.outlookCal = outlook.New(a.cfg.Calendar.OutlookClientID, a.cfg.Calendar.OutlookClientSecret, redirectURL, a.cfg.Calendar.OutlookTenantID, a.vault)
	}
	a.calendars = &calendarResolver{tenants: a.tenants, google: a.googleCal, outlook: a.outlookCal}
}

func (a *App) initScheduler() {
	a.stores = &storeResolver{factory: a.factory}
	a.scheduler = scheduler.New(a.calendars, a.stores, a.tenants, scheduler.WithClock(a.clock))

	syncInterval := time.Duration(a.cfg.Calendar.SyncIntervalMinutes) * time.Minute
	a.syncLoop = scheduler.NewSyncLoop(scheduler.SyncLoopConfig{
		Calendars: a.calendars,
		Stores:    a.stores,
		Tenants:   a.tenants,
		Interval:  syncInterval,
		Clock:     a.clock,
		DryRun:    a.cfg.Features[featureCalendarSyncDryRun],
	})
}

func (a *App) initTools() {
	host := toolexec.New()
	host.RegisterBuiltin(toolexec.NewCheckAvailabilityTool(a.scheduler, a.scheduler))
	host.RegisterBuiltin(toolexec.NewBookAppointmentTool(a.scheduler, a.scheduler))
	host.RegisterBuiltin(toolexec.NewTakeVoicemailTool())
	a.tools = host
}

// initObservability sets up the OTel SDK providers and the metrics facade
// built on top of them. Even single-instance deployments get the full
// meter/tracer wiring so /metrics is always scrapeable.
func (a *App) initObservability(ctx context.Context) error {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voicereceptiond",
	})
	if err != nil {
		return err
	}
	a.otelShutdown = shutdown
	a.closers = append(a.closers, func() error {
		return a.otelShutdown(context.Background())
	})

	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

// initOrchestrator wraps the single configured LLM/STT/TTS provider in a
// resilience fallback group (even with zero additional backends registered,
// this still exercises internal/resilience's circuit-breaker machinery) and
// builds the Call Session Orchestrator.
func (a *App) initOrchestrator() {
	llmProvider := resilience.NewLLMFallback(a.providers.LLM, a.cfg.Providers.LLM.Name, resilience.FallbackConfig{})
	sttProvider := resilience.NewSTTFallback(a.providers.STT, a.cfg.Providers.STT.Name, resilience.FallbackConfig{})
	ttsProvider := resilience.NewTTSFallback(a.providers.TTS, a.cfg.Providers.TTS.Name, resilience.FallbackConfig{})

	orch := orchestrator.New(orchestrator.Config{
		Tenants:                a.tenants,
		Stores:                 orchestratorStores{a.stores},
		Tools:                  a.tools,
		Coordinator:            a.coordinator,
		Metrics:                a.metrics,
		LLM:                    llmProvider,
		STT:                    sttProvider,
		TTS:                    ttsProvider,
		Clock:                  a.clock,
		ASRConfidenceThreshold: a.cfg.Call.ASRConfidenceThreshold,
		InactivityTimeout:      a.cfg.Call.SilenceTimeout,
		MaxCallDuration:        a.cfg.Call.MaxCallDuration,
	})
	a.orch = orch
	a.calls = newTrackedCallHandler(orch)
}

// initConfigWatcher starts polling a.configPath for changes, if set, and
// applies hot-reloadable changes (call tunables, the calendar_sync_dry_run
// flag) as they land — see spec.md §6 and the maintainer note on
// internal/config/watcher.go. A log-level change is only logged; the running
// logger keeps the level it was built with.
// Provider selection, store paths, and secrets are restart-only and are
// deliberately not re-read here.
func (a *App) initConfigWatcher() error {
	if a.configPath == "" {
		return nil
	}

	w, err := config.NewWatcher(a.configPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if diff.LogLevelChanged {
			slog.Info("config watcher: log level changed", "new_level", diff.NewLogLevel)
		}
		for _, fc := range diff.FeatureChanges {
			slog.Info("config watcher: feature flag changed", "name", fc.Name, "enabled", fc.Enabled, "added", fc.Added, "removed", fc.Removed)
			if fc.Name == featureCalendarSyncDryRun {
				a.syncLoop.SetDryRun(!fc.Removed && fc.Enabled)
			}
		}
		if diff.CallTuningChanged {
			a.orch.SetTunables(diff.NewASRConfidenceThreshold, diff.NewSilenceTimeout)
			slog.Info("config watcher: call tunables reloaded",
				"asr_confidence_threshold", diff.NewASRConfidenceThreshold,
				"inactivity_timeout", diff.NewSilenceTimeout)
		}
	})
	if err != nil {
		return err
	}
	a.configWatcher = w
	a.closers = append(a.closers, func() error {
		w.Stop()
		return nil
	})
	return nil
}

func (a *App) initIngress() {
	a.ingress = ingress.New(ingress.Config{
		Tenants:               a.tenants,
		Stores:                a.stores,
		Calendars:             a.calendars,
		Vault:                 a.vault,
		Coordinator:           a.coordinator,
		Metrics:               a.metrics,
		CallHandler:           a.calls,
		Clock:                 a.clock,
		PublicHost:            a.cfg.Server.PublicURL,
		AdminAPIKey:           a.cfg.Security.AdminAPIKey,
		WebhookIdempotencyTTL: a.cfg.Coordinator.WebhookIdempotencyTTL,
	})
}

func (a *App) initHealth() {
	a.health = health.New(
		health.Checker{
			Name: "store",
			Check: func(ctx context.Context) error {
				_, err := a.factory.Registry()
				return err
			},
		},
	)
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()
	mux.Handle("/", a.ingress.Routes())
	a.health.Register(mux)

	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	a.httpSrv = &http.Server{
		Addr:    addr,
		Handler: observe.Middleware(a.metrics)(mux),
	}
}

// Run starts the calendar sync loop, the queue drainer (if configured), and
// the HTTP/WebSocket server, then blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.syncLoop.Start(ctx)
	if a.drainer != nil {
		a.drainer.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("voicereceptiond listening", "addr", a.httpSrv.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown tears down every subsystem in reverse-init order, respecting
// ctx's deadline. Outstanding calls are cancelled first so they can release
// their coordinator admission before their stores are closed.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "active_calls", a.calls.ActiveCalls())

		a.calls.CancelAll()
		a.syncLoop.Stop()
		if a.drainer != nil {
			a.drainer.Stop()
		}

		if err := a.httpSrv.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ActiveCalls reports the number of calls currently in progress.
func (a *App) ActiveCalls() int { return a.calls.ActiveCalls() }

// Metrics returns the application's metrics facade, for tests that want to
// assert on recorded measurements.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// tenantListerIDs adapts [*tenant.Registry] to [coordinator.TenantLister],
// which only needs the ID half of ListActive's result.
type tenantListerIDs struct {
	tenants *tenant.Registry
}

func (t tenantListerIDs) ListActiveIDs() []string {
	active := t.tenants.ListActive()
	ids := make([]string, len(active))
	for i, tt := range active {
		ids[i] = tt.ID
	}
	return ids
}

var _ coordinator.TenantLister = tenantListerIDs{}
var _ calendar.Provider = (*google.Provider)(nil)
var _ calendar.Provider = (*outlook.Provider)(nil)
