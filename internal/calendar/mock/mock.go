// Package mock provides a test double for calendar.Provider.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/glyphoxa/internal/calendar"
)

// Provider is a configurable calendar.Provider test double.
type Provider struct {
	mu sync.Mutex

	AuthURLResult string
	AuthURLErr    error

	CompleteOAuthErr error

	BusyTimesResult []calendar.Interval
	BusyTimesErr    error

	CreateEventResult string
	CreateEventErr    error

	ListEventsResult []calendar.Event
	ListEventsErr    error

	CreateEventCalls []calendar.CreateEventRequest
	BusyTimesCalls   int
	ListEventsCalls  int
}

var _ calendar.Provider = (*Provider)(nil)

func (p *Provider) AuthURL(tenantID string) (string, error) {
	return p.AuthURLResult, p.AuthURLErr
}

func (p *Provider) CompleteOAuth(ctx context.Context, tenantID, code string) error {
	return p.CompleteOAuthErr
}

func (p *Provider) BusyTimes(ctx context.Context, tenantID string, from, to time.Time) ([]calendar.Interval, error) {
	p.mu.Lock()
	p.BusyTimesCalls++
	p.mu.Unlock()
	if p.BusyTimesErr != nil {
		return nil, p.BusyTimesErr
	}
	return p.BusyTimesResult, nil
}

func (p *Provider) CreateEvent(ctx context.Context, tenantID string, req calendar.CreateEventRequest) (string, error) {
	p.mu.Lock()
	p.CreateEventCalls = append(p.CreateEventCalls, req)
	p.mu.Unlock()
	if p.CreateEventErr != nil {
		return "", p.CreateEventErr
	}
	return p.CreateEventResult, nil
}

func (p *Provider) ListEvents(ctx context.Context, tenantID string, from, to time.Time) ([]calendar.Event, error) {
	p.mu.Lock()
	p.ListEventsCalls++
	p.mu.Unlock()
	if p.ListEventsErr != nil {
		return nil, p.ListEventsErr
	}
	return p.ListEventsResult, nil
}
