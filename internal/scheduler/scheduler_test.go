package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/glyphoxa/internal/calendar"
	calendarmock "github.com/MrWong99/glyphoxa/internal/calendar/mock"
	"github.com/MrWong99/glyphoxa/internal/scheduler"
	"github.com/MrWong99/glyphoxa/internal/store"
	"github.com/MrWong99/glyphoxa/internal/tenant"
	"github.com/MrWong99/glyphoxa/internal/toolexec"
)

// fakeCalendars resolves a single fixed provider for every tenant.
type fakeCalendars struct {
	provider calendar.Provider
	err      error
}

func (f fakeCalendars) Calendar(ctx context.Context, tenantID string) (calendar.Provider, error) {
	return f.provider, f.err
}

// fakeStores resolves a single fixed tenant store for every tenant.
type fakeStores struct {
	ts  *store.TenantStore
	err error
}

func (f fakeStores) Store(ctx context.Context, tenantID string) (*store.TenantStore, error) {
	return f.ts, f.err
}

// fakeTenants resolves a single fixed tenant regardless of ID.
type fakeTenants struct {
	t   tenant.Tenant
	err error
}

func (f fakeTenants) FindByID(id string) (tenant.Tenant, error) {
	return f.t, f.err
}

func (f fakeTenants) ListActive() []tenant.Tenant {
	return []tenant.Tenant{f.t}
}

func newTestStore(t *testing.T) *store.TenantStore {
	t.Helper()
	f, err := store.NewFactory(t.TempDir())
	if err != nil {
		t.Fatalf("NewFactory() error = %v", err)
	}
	t.Cleanup(func() { f.Close() })
	db, err := f.Open("acme")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return store.NewTenantStore(db)
}

func TestCheckAvailabilityReturnsProviderBusyTimes(t *testing.T) {
	busy := []calendar.Interval{{Start: time.Unix(0, 0), End: time.Unix(3600, 0)}}
	mockProvider := &calendarmock.Provider{BusyTimesResult: busy}
	sched := scheduler.New(fakeCalendars{provider: mockProvider}, fakeStores{}, fakeTenants{})

	got, err := sched.CheckAvailability(context.Background(), "acme", time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CheckAvailability() error = %v", err)
	}
	if len(got) != 1 || got[0] != (toolexec.BusyInterval{Start: busy[0].Start, End: busy[0].End}) {
		t.Fatalf("got %+v, want one interval matching %+v", got, busy[0])
	}
}

func TestBookAppointmentUpsertsCacheOnSuccess(t *testing.T) {
	mockProvider := &calendarmock.Provider{CreateEventResult: "evt-1"}
	ts := newTestStore(t)
	sched := scheduler.New(fakeCalendars{provider: mockProvider}, fakeStores{ts: ts}, fakeTenants{})

	start := time.Date(2026, 1, 19, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	eventID, err := sched.BookAppointment(context.Background(), "acme", toolexec.BookingRequest{
		CustomerName:  "Dick Cheney",
		CustomerPhone: "2024561414",
		CustomerEmail: "d@example.com",
		Start:         start,
		End:           end,
	})
	if err != nil {
		t.Fatalf("BookAppointment() error = %v", err)
	}
	if eventID != "evt-1" {
		t.Fatalf("eventID = %q, want %q", eventID, "evt-1")
	}

	rows, err := ts.ListAppointmentCacheWindow(context.Background(), start.Add(-time.Hour), end.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListAppointmentCacheWindow() error = %v", err)
	}
	if len(rows) != 1 || rows[0].Status != store.AppointmentConfirmed {
		t.Fatalf("got rows %+v, want one confirmed row", rows)
	}
	if len(mockProvider.CreateEventCalls) != 1 {
		t.Fatalf("CreateEvent called %d times, want 1", len(mockProvider.CreateEventCalls))
	}
}

func TestBookAppointmentPropagatesProviderFailureWithoutMutatingCache(t *testing.T) {
	mockProvider := &calendarmock.Provider{CreateEventErr: errors.New("calendar down")}
	ts := newTestStore(t)
	sched := scheduler.New(fakeCalendars{provider: mockProvider}, fakeStores{ts: ts}, fakeTenants{})

	_, err := sched.BookAppointment(context.Background(), "acme", toolexec.BookingRequest{
		CustomerName: "Jane Doe",
		Start:        time.Now(),
		End:          time.Now().Add(time.Hour),
	})
	if err == nil {
		t.Fatal("expected error from provider failure")
	}

	rows, err := ts.ListAppointmentCacheWindow(context.Background(), time.Now().Add(-time.Hour), time.Now().Add(48*time.Hour))
	if err != nil {
		t.Fatalf("ListAppointmentCacheWindow() error = %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no cache rows after provider failure, got %d", len(rows))
	}
}

func TestTimezoneFallsBackToUTCOnUnresolvableTenantTimezone(t *testing.T) {
	sched := scheduler.New(fakeCalendars{}, fakeStores{}, fakeTenants{t: tenant.Tenant{ID: "acme", Timezone: "Not/AZone"}})

	loc, err := sched.Timezone(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Timezone() error = %v", err)
	}
	if loc != time.UTC {
		t.Errorf("loc = %v, want UTC", loc)
	}
}

func TestTimezoneResolvesTenantIANAZone(t *testing.T) {
	sched := scheduler.New(fakeCalendars{}, fakeStores{}, fakeTenants{t: tenant.Tenant{ID: "acme", Timezone: "America/New_York"}})

	loc, err := sched.Timezone(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Timezone() error = %v", err)
	}
	if loc.String() != "America/New_York" {
		t.Errorf("loc = %v, want America/New_York", loc)
	}
}
