package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/glyphoxa/internal/clockutil"
	"github.com/MrWong99/glyphoxa/internal/store"
	"github.com/MrWong99/glyphoxa/internal/tenant"
)

// defaultSyncInterval is used when [SyncLoopConfig.Interval] is zero.
const defaultSyncInterval = 15 * time.Minute

// syncLookback is how far back a sync run lists events, per spec.md §4.5.
const syncLookback = 30 * 24 * time.Hour

// TenantLister supplies the set of tenants the sync loop iterates.
type TenantLister interface {
	ListActive() []tenant.Tenant
}

// SyncLoop periodically reconciles every active tenant's external calendar
// into its local appointment cache (the Calendar Sync Loop, C13).
//
// Safe for concurrent use; all methods may be called from any goroutine.
type SyncLoop struct {
	calendars CalendarResolver
	stores    StoreResolver
	tenants   TenantLister
	interval  time.Duration
	clock     clockutil.Clock

	// dryRun gates the appointment-cache write in syncTenant. Toggled live by
	// internal/app's config watcher from the FEATURE_CALENDAR_SYNC_DRY_RUN /
	// features.calendar_sync_dry_run flag, so an operator can validate a newly
	// connected calendar's credentials and event listing without mutating the
	// local cache.
	dryRun atomic.Bool

	done     chan struct{}
	stopOnce sync.Once
}

// SyncLoopConfig configures a [SyncLoop].
type SyncLoopConfig struct {
	Calendars CalendarResolver
	Stores    StoreResolver
	Tenants   TenantLister

	// Interval is how often to run a reconciliation pass. Defaults to
	// [defaultSyncInterval] if zero.
	Interval time.Duration

	// Clock overrides the time source. Defaults to [clockutil.System].
	Clock clockutil.Clock

	// DryRun starts the loop with cache writes disabled; see [SyncLoop.SetDryRun].
	DryRun bool
}

// NewSyncLoop creates a [SyncLoop] from cfg.
func NewSyncLoop(cfg SyncLoopConfig) *SyncLoop {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockutil.System
	}
	l := &SyncLoop{
		calendars: cfg.Calendars,
		stores:    cfg.Stores,
		tenants:   cfg.Tenants,
		interval:  interval,
		clock:     clock,
		done:      make(chan struct{}),
	}
	l.dryRun.Store(cfg.DryRun)
	return l
}

// SetDryRun toggles dry-run mode: while enabled, RunOnce still lists events
// and records a sync_run row but never writes to the appointment cache.
func (l *SyncLoop) SetDryRun(dryRun bool) {
	l.dryRun.Store(dryRun)
}

// Start begins periodic reconciliation in a background goroutine. The
// goroutine runs until [SyncLoop.Stop] is called or ctx is cancelled.
func (l *SyncLoop) Start(ctx context.Context) {
	go l.loop(ctx)
}

// Stop halts the sync loop. Safe to call multiple times.
func (l *SyncLoop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
}

func (l *SyncLoop) loop(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-ticker.C:
			l.RunOnce(ctx)
		}
	}
}

// RunOnce synchronously reconciles every active tenant's calendar. Failures
// for one tenant do not prevent the others from being attempted.
func (l *SyncLoop) RunOnce(ctx context.Context) {
	for _, t := range l.tenants.ListActive() {
		if err := l.syncTenant(ctx, t); err != nil {
			slog.Warn("scheduler: sync run failed", "tenant_id", t.ID, "err", err)
		}
	}
}

// syncTenant lists events in [now-30d, now] from the tenant's connected
// calendar and upserts the local cache, recording a sync_run row throughout.
func (l *SyncLoop) syncTenant(ctx context.Context, t tenant.Tenant) error {
	tstore, err := l.stores.Store(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("scheduler: open store for tenant %q: %w", t.ID, err)
	}

	started := l.clock.Now().UTC()
	runID, err := tstore.StartSyncRun(ctx, started)
	if err != nil {
		return fmt.Errorf("scheduler: start sync run for tenant %q: %w", t.ID, err)
	}

	provider, err := l.calendars.Calendar(ctx, t.ID)
	if err != nil {
		l.finish(ctx, tstore, runID, store.SyncRunFailed, err.Error())
		return fmt.Errorf("scheduler: resolve calendar for tenant %q: %w", t.ID, err)
	}

	to := started
	from := to.Add(-syncLookback)
	events, err := provider.ListEvents(ctx, t.ID, from, to)
	if err != nil {
		l.finish(ctx, tstore, runID, store.SyncRunFailed, err.Error())
		return fmt.Errorf("scheduler: list events for tenant %q: %w", t.ID, err)
	}

	dryRun := l.dryRun.Load()
	if !dryRun {
		for _, e := range events {
			row := store.AppointmentCacheRow{
				CalendarEventID: e.ID,
				Provider:        string(t.Config.Calendar.Provider),
				StartsAt:        e.Start,
				EndsAt:          e.End,
				DurationMinutes: int(e.End.Sub(e.Start).Minutes()),
				Status:          statusFromEvent(e.Status),
				Summary:         e.Summary,
				SyncedAt:        l.clock.Now().UTC(),
			}
			if err := tstore.UpsertAppointmentCache(ctx, row); err != nil {
				l.finish(ctx, tstore, runID, store.SyncRunFailed, err.Error())
				return fmt.Errorf("scheduler: upsert appointment cache for tenant %q: %w", t.ID, err)
			}
		}
	}

	detail := fmt.Sprintf("synced %d events", len(events))
	if dryRun {
		detail = fmt.Sprintf("dry run: would sync %d events", len(events))
	}
	l.finish(ctx, tstore, runID, store.SyncRunOK, detail)
	return nil
}

func (l *SyncLoop) finish(ctx context.Context, tstore *store.TenantStore, runID int64, status store.SyncRunStatus, detail string) {
	if err := tstore.FinishSyncRun(ctx, runID, status, detail, l.clock.Now().UTC()); err != nil {
		slog.Warn("scheduler: failed to record sync run outcome", "run_id", runID, "err", err)
	}
}

// statusFromEvent maps a provider event status string onto the closed
// [store.AppointmentStatus] set, defaulting to confirmed for anything the
// provider does not report as cancelled.
func statusFromEvent(providerStatus string) store.AppointmentStatus {
	if providerStatus == "cancelled" {
		return store.AppointmentCancelled
	}
	return store.AppointmentConfirmed
}
