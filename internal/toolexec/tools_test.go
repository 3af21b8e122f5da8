package toolexec_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/glyphoxa/internal/toolexec"
)

type fakeScheduler struct {
	busy          []toolexec.BusyInterval
	checkErr      error
	bookEventID   string
	bookErr       error
	bookRequests  []toolexec.BookingRequest
	checkCallArgs []time.Time
}

func (f *fakeScheduler) CheckAvailability(ctx context.Context, tenantID string, start, end time.Time) ([]toolexec.BusyInterval, error) {
	f.checkCallArgs = append(f.checkCallArgs, start, end)
	return f.busy, f.checkErr
}

func (f *fakeScheduler) BookAppointment(ctx context.Context, tenantID string, req toolexec.BookingRequest) (string, error) {
	f.bookRequests = append(f.bookRequests, req)
	if f.bookErr != nil {
		return "", f.bookErr
	}
	return f.bookEventID, nil
}

type fakeTimezones struct {
	loc *time.Location
	err error
}

func (f fakeTimezones) Timezone(ctx context.Context, tenantID string) (*time.Location, error) {
	return f.loc, f.err
}

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%q): %v", name, err)
	}
	return loc
}

func TestCheckAvailabilityToolFreeRange(t *testing.T) {
	sched := &fakeScheduler{}
	tool := toolexec.NewCheckAvailabilityTool(sched, fakeTimezones{loc: time.UTC})

	result, err := tool.Handler(context.Background(), "acme", []byte(`{"start_time":"2026-01-19T10:00:00-05:00","end_time":"2026-01-19T11:00:00-05:00"}`))
	if err != nil {
		t.Fatalf("Handler() error = %v", err)
	}
	if result != "That entire time range is free." {
		t.Errorf("got %q", result)
	}
}

func TestCheckAvailabilityToolBusyRange(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	busyStart := time.Date(2026, 1, 19, 14, 0, 0, 0, time.UTC)
	sched := &fakeScheduler{busy: []toolexec.BusyInterval{{Start: busyStart, End: busyStart.Add(time.Hour)}}}
	tool := toolexec.NewCheckAvailabilityTool(sched, fakeTimezones{loc: loc})

	result, err := tool.Handler(context.Background(), "acme", []byte(`{"start_time":"2026-01-19T10:00:00-05:00","end_time":"2026-01-19T13:00:00-05:00"}`))
	if err != nil {
		t.Fatalf("Handler() error = %v", err)
	}
	if !strings.Contains(result, "I have existing appointments at:") {
		t.Errorf("got %q", result)
	}
}

func TestBookAppointmentToolSuccess(t *testing.T) {
	sched := &fakeScheduler{bookEventID: "evt-123"}
	tool := toolexec.NewBookAppointmentTool(sched, fakeTimezones{loc: mustLoc(t, "America/New_York")})

	args := `{"customer_name":"Dick Cheney","customer_phone":"(202) 456-1414","customer_email":"d at example dot com","start_time":"2026-01-19T10:00:00-05:00","end_time":"2026-01-19T11:00:00-05:00"}`
	result, err := tool.Handler(context.Background(), "acme", []byte(args))
	if err != nil {
		t.Fatalf("Handler() error = %v", err)
	}
	if !strings.HasPrefix(result, "Appointment booked successfully. Reference ID:") {
		t.Fatalf("got %q", result)
	}
	if len(sched.bookRequests) != 1 {
		t.Fatalf("got %d booking requests, want 1", len(sched.bookRequests))
	}
	got := sched.bookRequests[0]
	if got.CustomerPhone != "2024561414" {
		t.Errorf("CustomerPhone = %q, want %q", got.CustomerPhone, "2024561414")
	}
	if got.CustomerEmail != "d@example.com" {
		t.Errorf("CustomerEmail = %q, want %q", got.CustomerEmail, "d@example.com")
	}
}

func TestBookAppointmentToolMissingFields(t *testing.T) {
	sched := &fakeScheduler{}
	tool := toolexec.NewBookAppointmentTool(sched, fakeTimezones{loc: time.UTC})

	args := `{"customer_name":"","customer_phone":"555","customer_email":"not-an-email","start_time":"2026-01-19T10:00:00Z","end_time":"2026-01-19T11:00:00Z"}`
	result, err := tool.Handler(context.Background(), "acme", []byte(args))
	if err != nil {
		t.Fatalf("Handler() error = %v", err)
	}
	want := "missing_or_invalid_booking_fields (name=false, phone=false, email=false)"
	if result != want {
		t.Errorf("got %q, want %q", result, want)
	}
	if len(sched.bookRequests) != 0 {
		t.Errorf("scheduler should not have been called when validation fails")
	}
}

func TestBookAppointmentToolRejectsZSuffixOutsideUTC(t *testing.T) {
	sched := &fakeScheduler{bookEventID: "evt-999"}
	tool := toolexec.NewBookAppointmentTool(sched, fakeTimezones{loc: mustLoc(t, "America/New_York")})

	args := `{"customer_name":"Jane Doe","customer_phone":"2024561414","customer_email":"jane@example.com","start_time":"2026-01-19T10:00:00Z","end_time":"2026-01-19T11:00:00Z"}`
	result, err := tool.Handler(context.Background(), "acme", []byte(args))
	if err != nil {
		t.Fatalf("Handler() error = %v", err)
	}
	if !strings.HasPrefix(result, "Error:") {
		t.Fatalf("expected Z-suffix rejection, got %q", result)
	}
	if len(sched.bookRequests) != 0 {
		t.Errorf("scheduler should not have been called")
	}
}

func TestBookAppointmentToolPropagatesProviderError(t *testing.T) {
	sched := &fakeScheduler{bookErr: errors.New("upstream unavailable")}
	tool := toolexec.NewBookAppointmentTool(sched, fakeTimezones{loc: time.UTC})

	args := `{"customer_name":"Jane Doe","customer_phone":"2024561414","customer_email":"jane@example.com","start_time":"2026-01-19T10:00:00Z","end_time":"2026-01-19T11:00:00Z"}`
	result, err := tool.Handler(context.Background(), "acme", []byte(args))
	if err != nil {
		t.Fatalf("Handler() error = %v", err)
	}
	if !strings.Contains(result, "upstream unavailable") {
		t.Errorf("got %q", result)
	}
}

func TestTakeVoicemailToolReturnsSentinel(t *testing.T) {
	tool := toolexec.NewTakeVoicemailTool()

	result, err := tool.Handler(context.Background(), "acme", []byte(`{"reason":"wants human"}`))
	if err != nil {
		t.Fatalf("Handler() error = %v", err)
	}
	if result != toolexec.VoicemailSentinel {
		t.Errorf("got %q, want %q", result, toolexec.VoicemailSentinel)
	}
}
