package app

import (
	"context"
	"testing"

	"github.com/MrWong99/glyphoxa/internal/apperr"
	"github.com/MrWong99/glyphoxa/internal/calendar/google"
	"github.com/MrWong99/glyphoxa/internal/store"
	"github.com/MrWong99/glyphoxa/internal/tenant"
	"github.com/MrWong99/glyphoxa/internal/vault"
)

func newTestRegistry(t *testing.T) *tenant.Registry {
	t.Helper()
	factory, err := store.NewFactory(t.TempDir())
	if err != nil {
		t.Fatalf("store.NewFactory() error = %v", err)
	}
	t.Cleanup(func() { factory.Close() })

	db, err := factory.Registry()
	if err != nil {
		t.Fatalf("factory.Registry() error = %v", err)
	}
	reg, err := tenant.New(db, factory)
	if err != nil {
		t.Fatalf("tenant.New() error = %v", err)
	}
	return reg
}

func registerTenant(t *testing.T, reg *tenant.Registry, id string, provider tenant.CalendarProvider) {
	t.Helper()
	cfg := tenant.DefaultConfig()
	cfg.Calendar.Provider = provider
	_, err := reg.Register(context.Background(), tenant.Tenant{
		ID:          id,
		DisplayName: "Acme " + id,
		PhoneNumber: "+1555000" + id,
		Config:      cfg,
	})
	if err != nil {
		t.Fatalf("reg.Register(%q) error = %v", id, err)
	}
}

func TestCalendarResolverDispatchesToConfiguredProvider(t *testing.T) {
	reg := newTestRegistry(t)
	registerTenant(t, reg, "0001", tenant.CalendarProviderGoogle)

	factory, err := store.NewFactory(t.TempDir())
	if err != nil {
		t.Fatalf("store.NewFactory() error = %v", err)
	}
	t.Cleanup(func() { factory.Close() })
	v, err := vault.New(factory, reg, "ab01ab02ab03ab04ab05ab06ab07ab08ab09ab10ab11ab12ab13ab14ab15ab16")
	if err != nil {
		t.Fatalf("vault.New() error = %v", err)
	}
	googleProvider := google.New("client-id", "client-secret", "https://example.com/auth/google/callback", v)

	resolver := &calendarResolver{tenants: reg, google: googleProvider}

	got, err := resolver.Calendar(context.Background(), "0001")
	if err != nil {
		t.Fatalf("Calendar() error = %v", err)
	}
	if got != googleProvider {
		t.Error("Calendar() did not return the configured google provider instance")
	}
}

func TestCalendarResolverErrorsWhenNoCalendarConnected(t *testing.T) {
	reg := newTestRegistry(t)
	registerTenant(t, reg, "0002", "")

	resolver := &calendarResolver{tenants: reg}

	_, err := resolver.Calendar(context.Background(), "0002")
	if !apperr.Is(err, apperr.KindAuthExpired) {
		t.Fatalf("Calendar() err kind = %v, want KindAuthExpired", apperr.KindOf(err))
	}
}

func TestCalendarResolverErrorsWhenBackendNotConfigured(t *testing.T) {
	reg := newTestRegistry(t)
	registerTenant(t, reg, "0003", tenant.CalendarProviderOutlook)

	resolver := &calendarResolver{tenants: reg} // no outlook provider constructed

	_, err := resolver.Calendar(context.Background(), "0003")
	if !apperr.Is(err, apperr.KindAuthExpired) {
		t.Fatalf("Calendar() err kind = %v, want KindAuthExpired", apperr.KindOf(err))
	}
}
