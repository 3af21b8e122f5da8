package app

import (
	"context"

	"github.com/MrWong99/glyphoxa/internal/apperr"
	"github.com/MrWong99/glyphoxa/internal/calendar"
	"github.com/MrWong99/glyphoxa/internal/calendar/google"
	"github.com/MrWong99/glyphoxa/internal/calendar/outlook"
	"github.com/MrWong99/glyphoxa/internal/orchestrator"
	"github.com/MrWong99/glyphoxa/internal/scheduler"
	"github.com/MrWong99/glyphoxa/internal/store"
	"github.com/MrWong99/glyphoxa/internal/tenant"
	"github.com/MrWong99/glyphoxa/internal/ingress"
)

// storeResolver opens the per-tenant store through the shared [store.Factory].
// It satisfies [scheduler.StoreResolver] and [ingress.StoreResolver] directly
// (both want a concrete *store.TenantStore); [orchestrator.StoreResolver]
// wants a locally-declared interface instead, so orchestratorStores below
// adapts the same factory lookup to that return type.
type storeResolver struct {
	factory *store.Factory
}

func (r *storeResolver) Store(ctx context.Context, tenantID string) (*store.TenantStore, error) {
	db, err := r.factory.Get(tenantID)
	if err != nil {
		return nil, err
	}
	return store.NewTenantStore(db), nil
}

var (
	_ scheduler.StoreResolver = (*storeResolver)(nil)
	_ ingress.StoreResolver   = (*storeResolver)(nil)
)

// calendarResolver dispatches to the shared Google or Outlook provider
// instance based on the tenant's configured calendar selection. One
// instance of each backend serves every tenant; tenantID is passed on every
// call.
type calendarResolver struct {
	tenants *tenant.Registry
	google  *google.Provider
	outlook *outlook.Provider
}

func (c *calendarResolver) Calendar(ctx context.Context, tenantID string) (calendar.Provider, error) {
	t, err := c.tenants.FindByID(tenantID)
	if err != nil {
		return nil, err
	}
	switch t.Config.Calendar.Provider {
	case tenant.CalendarProviderGoogle:
		if c.google == nil {
			return nil, apperr.New(apperr.KindAuthExpired, "tenant %q selected google calendar but no google OAuth app is configured", tenantID)
		}
		return c.google, nil
	case tenant.CalendarProviderOutlook:
		if c.outlook == nil {
			return nil, apperr.New(apperr.KindAuthExpired, "tenant %q selected outlook calendar but no outlook OAuth app is configured", tenantID)
		}
		return c.outlook, nil
	default:
		return nil, apperr.New(apperr.KindAuthExpired, "tenant %q has not connected a calendar", tenantID)
	}
}

var (
	_ scheduler.CalendarResolver = (*calendarResolver)(nil)
	_ ingress.CalendarResolver   = (*calendarResolver)(nil)
)

// orchestratorStores adapts storeResolver's concrete *store.TenantStore
// return to orchestrator.StoreResolver's interface-typed return. A single
// resolver method cannot satisfy both shapes at once: Go requires an exact
// return-type match for interface satisfaction, even though *store.TenantStore
// structurally implements orchestrator.TenantStore.
type orchestratorStores struct {
	inner *storeResolver
}

func (o orchestratorStores) Store(ctx context.Context, tenantID string) (orchestrator.TenantStore, error) {
	return o.inner.Store(ctx, tenantID)
}

var _ orchestrator.StoreResolver = orchestratorStores{}
