package calendar

import (
	"context"
	"time"

	"github.com/MrWong99/glyphoxa/internal/resilience"
)

// BreakingProvider wraps a [Provider] with a [resilience.CircuitBreaker] so
// that a provider outage trips quickly and subsequent calls fail fast
// instead of piling up on a dead upstream, matching the teacher's fallback
// wrappers in internal/resilience.
type BreakingProvider struct {
	inner   Provider
	breaker *resilience.CircuitBreaker
}

var _ Provider = (*BreakingProvider)(nil)

// NewBreakingProvider wraps inner with a circuit breaker configured per cfg.
func NewBreakingProvider(inner Provider, cfg resilience.CircuitBreakerConfig) *BreakingProvider {
	return &BreakingProvider{
		inner:   inner,
		breaker: resilience.NewCircuitBreaker(cfg),
	}
}

func (b *BreakingProvider) AuthURL(tenantID string) (string, error) {
	return b.inner.AuthURL(tenantID)
}

func (b *BreakingProvider) CompleteOAuth(ctx context.Context, tenantID, code string) error {
	return b.breaker.Execute(func() error {
		return b.inner.CompleteOAuth(ctx, tenantID, code)
	})
}

func (b *BreakingProvider) BusyTimes(ctx context.Context, tenantID string, from, to time.Time) ([]Interval, error) {
	var result []Interval
	err := b.breaker.Execute(func() error {
		var innerErr error
		result, innerErr = b.inner.BusyTimes(ctx, tenantID, from, to)
		return innerErr
	})
	return result, err
}

func (b *BreakingProvider) CreateEvent(ctx context.Context, tenantID string, req CreateEventRequest) (string, error) {
	var result string
	err := b.breaker.Execute(func() error {
		var innerErr error
		result, innerErr = b.inner.CreateEvent(ctx, tenantID, req)
		return innerErr
	})
	return result, err
}

func (b *BreakingProvider) ListEvents(ctx context.Context, tenantID string, from, to time.Time) ([]Event, error) {
	var result []Event
	err := b.breaker.Execute(func() error {
		var innerErr error
		result, innerErr = b.inner.ListEvents(ctx, tenantID, from, to)
		return innerErr
	})
	return result, err
}
