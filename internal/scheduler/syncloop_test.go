package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/glyphoxa/internal/calendar"
	calendarmock "github.com/MrWong99/glyphoxa/internal/calendar/mock"
	"github.com/MrWong99/glyphoxa/internal/scheduler"
	"github.com/MrWong99/glyphoxa/internal/tenant"
)

func TestSyncLoopRunOnceUpsertsListedEventsAndRecordsSuccess(t *testing.T) {
	events := []calendar.Event{
		{ID: "evt-1", Summary: "Cleaning", Start: time.Now().Add(-time.Hour), End: time.Now()},
		{ID: "evt-2", Summary: "Checkup", Start: time.Now().Add(-2 * time.Hour), End: time.Now().Add(-time.Hour), Status: "cancelled"},
	}
	mockProvider := &calendarmock.Provider{ListEventsResult: events}
	ts := newTestStore(t)
	tn := tenant.Tenant{ID: "acme"}

	loop := scheduler.NewSyncLoop(scheduler.SyncLoopConfig{
		Calendars: fakeCalendars{provider: mockProvider},
		Stores:    fakeStores{ts: ts},
		Tenants:   fakeTenants{t: tn},
	})

	loop.RunOnce(context.Background())

	rows, err := ts.ListAppointmentCacheWindow(context.Background(), time.Now().Add(-24*time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ListAppointmentCacheWindow() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d cache rows, want 2", len(rows))
	}
	if mockProvider.ListEventsCalls != 1 {
		t.Fatalf("ListEvents called %d times, want 1", mockProvider.ListEventsCalls)
	}
}

func TestSyncLoopRunOnceRecordsFailedRunOnListError(t *testing.T) {
	mockProvider := &calendarmock.Provider{ListEventsErr: errors.New("calendar unreachable")}
	ts := newTestStore(t)
	tn := tenant.Tenant{ID: "acme"}

	loop := scheduler.NewSyncLoop(scheduler.SyncLoopConfig{
		Calendars: fakeCalendars{provider: mockProvider},
		Stores:    fakeStores{ts: ts},
		Tenants:   fakeTenants{t: tn},
	})

	// Should not panic and should leave no cache rows behind.
	loop.RunOnce(context.Background())

	rows, err := ts.ListAppointmentCacheWindow(context.Background(), time.Now().Add(-24*time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ListAppointmentCacheWindow() error = %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no cache rows after list failure, got %d", len(rows))
	}
	if mockProvider.ListEventsCalls != 1 {
		t.Fatalf("ListEvents called %d times, want 1", mockProvider.ListEventsCalls)
	}
}

func TestSyncLoopStartStop(t *testing.T) {
	mockProvider := &calendarmock.Provider{}
	ts := newTestStore(t)

	loop := scheduler.NewSyncLoop(scheduler.SyncLoopConfig{
		Calendars: fakeCalendars{provider: mockProvider},
		Stores:    fakeStores{ts: ts},
		Tenants:   fakeTenants{t: tenant.Tenant{ID: "acme"}},
		Interval:  time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	loop.Start(ctx)
	time.Sleep(5 * time.Millisecond)
	loop.Stop()
	cancel()

	// Stop must be idempotent.
	loop.Stop()
}
