// Package scheduler implements the Scheduler Core: the composition of the
// Calendar Adapter and the per-tenant store that backs check_availability
// and book_appointment, plus the Calendar Sync Loop that keeps the local
// appointment cache reconciled against the tenant's external calendar.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/glyphoxa/internal/apperr"
	"github.com/MrWong99/glyphoxa/internal/calendar"
	"github.com/MrWong99/glyphoxa/internal/clockutil"
	"github.com/MrWong99/glyphoxa/internal/store"
	"github.com/MrWong99/glyphoxa/internal/tenant"
	"github.com/MrWong99/glyphoxa/internal/toolexec"
)

// CalendarResolver returns the connected [calendar.Provider] for a tenant.
type CalendarResolver interface {
	Calendar(ctx context.Context, tenantID string) (calendar.Provider, error)
}

// StoreResolver returns the per-tenant store for a tenant.
type StoreResolver interface {
	Store(ctx context.Context, tenantID string) (*store.TenantStore, error)
}

// TenantResolver looks up tenant metadata (timezone, config) by ID.
type TenantResolver interface {
	FindByID(id string) (tenant.Tenant, error)
}

// Scheduler composes a [CalendarResolver], [StoreResolver], and
// [TenantResolver] into the check_availability/book_appointment operations
// of spec.md §4.5. It satisfies [toolexec.Scheduler] and
// [toolexec.TenantTimezones] structurally, so the same instance is passed
// to both builtin tool constructors.
type Scheduler struct {
	calendars CalendarResolver
	stores    StoreResolver
	tenants   TenantResolver
	clock     clockutil.Clock
}

var (
	_ toolexec.Scheduler       = (*Scheduler)(nil)
	_ toolexec.TenantTimezones = (*Scheduler)(nil)
)

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithClock overrides the clock used to timestamp appointment cache rows.
// Defaults to [clockutil.System].
func WithClock(c clockutil.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// New creates a [Scheduler].
func New(calendars CalendarResolver, stores StoreResolver, tenants TenantResolver, opts ...Option) *Scheduler {
	s := &Scheduler{calendars: calendars, stores: stores, tenants: tenants, clock: clockutil.System}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CheckAvailability returns the sub-intervals of [start, end) that are
// occupied on the tenant's connected calendar. An empty result means fully
// free.
func (s *Scheduler) CheckAvailability(ctx context.Context, tenantID string, start, end time.Time) ([]toolexec.BusyInterval, error) {
	provider, err := s.calendars.Calendar(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	intervals, err := provider.BusyTimes(ctx, tenantID, start, end)
	if err != nil {
		return nil, err
	}

	out := make([]toolexec.BusyInterval, len(intervals))
	for i, iv := range intervals {
		out[i] = toolexec.BusyInterval{Start: iv.Start, End: iv.End}
	}
	return out, nil
}

// BookAppointment creates the event on the tenant's connected calendar and,
// on success, upserts the local appointment cache row with status=confirmed.
// On provider failure the error is propagated as [apperr.KindUpstreamError]
// and the cache is left untouched.
func (s *Scheduler) BookAppointment(ctx context.Context, tenantID string, req toolexec.BookingRequest) (string, error) {
	provider, err := s.calendars.Calendar(ctx, tenantID)
	if err != nil {
		return "", err
	}

	eventID, err := provider.CreateEvent(ctx, tenantID, calendar.CreateEventRequest{
		Summary:     fmt.Sprintf("Appointment: %s", req.CustomerName),
		Description: req.Description,
		Start:       req.Start,
		End:         req.End,
		Attendees:   []string{req.CustomerEmail},
	})
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpstreamError, err, "scheduler: create event for tenant %q", tenantID)
	}

	tstore, storeErr := s.stores.Store(ctx, tenantID)
	if storeErr != nil {
		slog.Warn("scheduler: appointment booked but cache unavailable", "tenant_id", tenantID, "event_id", eventID, "err", storeErr)
		return eventID, nil
	}

	now := s.clock.Now().UTC()
	row := store.AppointmentCacheRow{
		CalendarEventID: eventID,
		StartsAt:        req.Start,
		EndsAt:          req.End,
		DurationMinutes: int(req.End.Sub(req.Start).Minutes()),
		Status:          store.AppointmentConfirmed,
		Summary:         fmt.Sprintf("Appointment: %s", req.CustomerName),
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CustomerEmail:   req.CustomerEmail,
		SyncedAt:        now,
	}
	if err := tstore.UpsertAppointmentCache(ctx, row); err != nil {
		slog.Warn("scheduler: appointment booked but cache upsert failed", "tenant_id", tenantID, "event_id", eventID, "err", err)
	}

	return eventID, nil
}

// Timezone resolves the IANA timezone the named tenant renders times in,
// satisfying [toolexec.TenantTimezones]. Falls back to UTC if the tenant's
// stored timezone no longer resolves.
func (s *Scheduler) Timezone(ctx context.Context, tenantID string) (*time.Location, error) {
	t, err := s.tenants.FindByID(tenantID)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC, nil
	}
	return loc, nil
}
