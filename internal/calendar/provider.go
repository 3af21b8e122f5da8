// Package calendar defines the uniform interface over external calendar
// providers (Google Calendar, Microsoft Outlook/Graph) that the Scheduler
// Core and OAuth onboarding flow depend on.
//
// Implementations own provider-specific OAuth token refresh opaquely;
// callers never see raw tokens. Status-code-to-error-kind mapping is
// centralized in errors.go so every provider reports failures uniformly.
package calendar

import (
	"context"
	"time"
)

// Interval is a closed-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Event is a single calendar event as returned by ListEvents.
type Event struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
	Status      string
}

// CreateEventRequest describes a new event to write to the provider.
type CreateEventRequest struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
}

// Provider is the abstraction over any external calendar backend.
//
// Every method is scoped to a tenant by tenantID; implementations resolve
// tenant-specific OAuth credentials (and the tenant's selected calendar_id)
// internally, typically from a credential vault.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// AuthURL returns the provider's OAuth consent screen URL that the
	// ingress redirects a tenant administrator to when connecting a
	// calendar.
	AuthURL(tenantID string) (string, error)

	// CompleteOAuth exchanges an OAuth authorization code for tokens and
	// persists them for tenantID.
	CompleteOAuth(ctx context.Context, tenantID, code string) error

	// BusyTimes returns the sub-intervals within [from, to) during which
	// the tenant's calendar is occupied.
	BusyTimes(ctx context.Context, tenantID string, from, to time.Time) ([]Interval, error)

	// CreateEvent writes a new event to the tenant's selected calendar and
	// returns the provider's event ID.
	CreateEvent(ctx context.Context, tenantID string, req CreateEventRequest) (string, error)

	// ListEvents returns every event on the tenant's calendar overlapping
	// [from, to).
	ListEvents(ctx context.Context, tenantID string, from, to time.Time) ([]Event, error)
}
