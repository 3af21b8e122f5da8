package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/glyphoxa/internal/store"
)

func newTestTenantStore(t *testing.T) *store.TenantStore {
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

func TestInsertAndUpdateCallLog(t *testing.T) {
	ts := newTestTenantStore(t)
	ctx := context.Background()
	now := time.Now()

	err := ts.InsertCallLog(ctx, store.CallLog{
		CallSID:    "CA123",
		FromNumber: "+15551234567",
		Direction:  store.CallDirectionInbound,
		Status:     store.CallStatusInitiated,
		StartedAt:  now,
	})
	if err != nil {
		t.Fatalf("InsertCallLog() error = %v", err)
	}

	err = ts.UpdateCallLog(ctx, "CA123", store.CallStatusCompleted, "booked", "book_appointment", "", 42, 6, now.Add(42*time.Second))
	if err != nil {
		t.Fatalf("UpdateCallLog() error = %v", err)
	}
}

func TestConversationTurnsRoundTrip(t *testing.T) {
	ts := newTestTenantStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := ts.InsertConversationTurn(ctx, "CA123", "user", "I'd like to book a cleaning", now); err != nil {
		t.Fatalf("InsertConversationTurn() error = %v", err)
	}
	if err := ts.InsertConversationTurn(ctx, "CA123", "assistant", "Sure, what day works?", now.Add(time.Second)); err != nil {
		t.Fatalf("InsertConversationTurn() error = %v", err)
	}

	turns, err := ts.ListConversationTurns(ctx, "CA123")
	if err != nil {
		t.Fatalf("ListConversationTurns() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Role != "user" || turns[1].Role != "assistant" {
		t.Errorf("turn order/roles = %+v", turns)
	}
}

func TestConversationTurnTruncatedAt4KiB(t *testing.T) {
	ts := newTestTenantStore(t)
	ctx := context.Background()

	huge := make([]byte, 10000)
	for i := range huge {
		huge[i] = 'x'
	}
	if err := ts.InsertConversationTurn(ctx, "CA999", "user", string(huge), time.Now()); err != nil {
		t.Fatalf("InsertConversationTurn() error = %v", err)
	}

	turns, err := ts.ListConversationTurns(ctx, "CA999")
	if err != nil {
		t.Fatalf("ListConversationTurns() error = %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("got %d turns, want 1", len(turns))
	}
	if len(turns[0].Text) != 4096 {
		t.Errorf("stored text length = %d, want 4096", len(turns[0].Text))
	}
}

func TestUpsertAppointmentCacheIsIdempotent(t *testing.T) {
	ts := newTestTenantStore(t)
	ctx := context.Background()
	start := time.Now()
	end := start.Add(time.Hour)

	row := store.AppointmentCacheRow{
		CalendarEventID: "evt-1",
		Provider:        "google",
		StartsAt:        start,
		EndsAt:          end,
		DurationMinutes: 60,
		Status:          store.AppointmentConfirmed,
		CustomerName:    "Dick Cheney",
		SyncedAt:        start,
	}
	if err := ts.UpsertAppointmentCache(ctx, row); err != nil {
		t.Fatalf("UpsertAppointmentCache() error = %v", err)
	}
	row.Status = store.AppointmentCompleted
	row.SyncedAt = end
	if err := ts.UpsertAppointmentCache(ctx, row); err != nil {
		t.Fatalf("UpsertAppointmentCache() second call error = %v", err)
	}

	got, err := ts.ListAppointmentCacheWindow(ctx, start.Add(-time.Hour), end.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListAppointmentCacheWindow() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1 (upsert should not duplicate)", len(got))
	}
	if got[0].Status != store.AppointmentCompleted {
		t.Errorf("status = %q, want completed", got[0].Status)
	}
}

func TestListAppointmentCacheWindowExcludesOutsideRange(t *testing.T) {
	ts := newTestTenantStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC)

	inWindow := store.AppointmentCacheRow{
		CalendarEventID: "in", Provider: "google",
		StartsAt: base.Add(10 * time.Hour), EndsAt: base.Add(11 * time.Hour),
		DurationMinutes: 60, Status: store.AppointmentConfirmed, SyncedAt: base,
	}
	outOfWindow := store.AppointmentCacheRow{
		CalendarEventID: "out", Provider: "google",
		StartsAt: base.Add(-100 * time.Hour), EndsAt: base.Add(-99 * time.Hour),
		DurationMinutes: 60, Status: store.AppointmentConfirmed, SyncedAt: base,
	}
	if err := ts.UpsertAppointmentCache(ctx, inWindow); err != nil {
		t.Fatalf("UpsertAppointmentCache() error = %v", err)
	}
	if err := ts.UpsertAppointmentCache(ctx, outOfWindow); err != nil {
		t.Fatalf("UpsertAppointmentCache() error = %v", err)
	}

	got, err := ts.ListAppointmentCacheWindow(ctx, base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListAppointmentCacheWindow() error = %v", err)
	}
	if len(got) != 1 || got[0].CalendarEventID != "in" {
		t.Errorf("got %+v, want only the in-window row", got)
	}
}

func TestInsertVoicemail(t *testing.T) {
	ts := newTestTenantStore(t)
	ctx := context.Background()
	err := ts.InsertVoicemail(ctx, store.Voicemail{
		ID: "vm-1", CallSID: "CA123", CallerName: "Jane Doe",
		Callback: "+15551234567", Transcript: "please call me back", CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("InsertVoicemail() error = %v", err)
	}
}

func TestRecordMetric(t *testing.T) {
	ts := newTestTenantStore(t)
	ctx := context.Background()
	if err := ts.RecordMetric(ctx, "call_duration", 45.5, time.Now()); err != nil {
		t.Fatalf("RecordMetric() error = %v", err)
	}
}

func TestSyncRunLifecycle(t *testing.T) {
	ts := newTestTenantStore(t)
	ctx := context.Background()

	id, err := ts.StartSyncRun(ctx, time.Now())
	if err != nil {
		t.Fatalf("StartSyncRun() error = %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero sync run id")
	}
	if err := ts.FinishSyncRun(ctx, id, store.SyncRunOK, "12 events", time.Now()); err != nil {
		t.Fatalf("FinishSyncRun() error = %v", err)
	}
}
