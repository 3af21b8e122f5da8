package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/glyphoxa/internal/apperr"
	"github.com/MrWong99/glyphoxa/internal/clockutil"
	"github.com/MrWong99/glyphoxa/internal/store"
)

// validTimezone reports whether tz is resolvable against the IANA timezone
// database.
func validTimezone(tz string) bool {
	_, err := time.LoadLocation(tz)
	return err == nil
}

// Registry resolves tenants by ID or phone number and administers their
// lifecycle. Lookups are served from an in-memory cache, since the registry
// is consulted on the hot path of every inbound call. The cache is reloaded
// after every mutation and whenever [Registry.Refresh] is called; the
// registry starts no background refresh of its own.
//
// Registry is safe for concurrent use.
type Registry struct {
	db      *sql.DB
	factory *store.Factory
	clock   clockutil.Clock

	mu      sync.RWMutex
	byID    map[string]Tenant
	byPhone map[string]string // phone number -> tenant id
}

// Option configures a [Registry].
type Option func(*Registry)

// WithClock overrides the clock used for created_at/updated_at timestamps.
// Defaults to [clockutil.System].
func WithClock(c clockutil.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// New creates a [Registry] backed by db (the shared registry database
// obtained from [store.Factory.Registry]) and factory (used to provision
// per-tenant database files when a tenant is registered). It loads the
// initial cache synchronously so the registry is immediately queryable.
func New(db *sql.DB, factory *store.Factory, opts ...Option) (*Registry, error) {
	r := &Registry{
		db:      db,
		factory: factory,
		clock:   clockutil.System,
		byID:    make(map[string]Tenant),
		byPhone: make(map[string]string),
	}
	for _, o := range opts {
		o(r)
	}
	if err := r.reload(context.Background()); err != nil {
		return nil, fmt.Errorf("tenant: initial load: %w", err)
	}
	return r, nil
}

// Register provisions a new tenant: it inserts the registry row and opens
// (creating) the tenant's per-tenant database file. This is the only
// privileged path that creates a new per-tenant file — see
// [store.Factory.Open].
func (r *Registry) Register(ctx context.Context, t Tenant) (Tenant, error) {
	if t.ID == "" {
		return Tenant{}, apperr.New(apperr.KindInvalidArgument, "tenant: id must not be empty")
	}
	if t.DisplayName == "" {
		return Tenant{}, apperr.New(apperr.KindInvalidArgument, "tenant: display_name must not be empty")
	}
	if t.PhoneNumber == "" {
		return Tenant{}, apperr.New(apperr.KindInvalidArgument, "tenant: phone_number must not be empty")
	}
	if t.Timezone == "" {
		t.Timezone = "UTC"
	}
	if !validTimezone(t.Timezone) {
		return Tenant{}, apperr.New(apperr.KindInvalidArgument, "tenant: timezone %q does not resolve against the IANA database", t.Timezone)
	}
	if t.Status == "" {
		t.Status = StatusActive
	}
	if err := t.Config.Validate(); err != nil {
		return Tenant{}, err
	}

	if _, err := r.FindByPhone(t.PhoneNumber); err == nil {
		return Tenant{}, apperr.New(apperr.KindInvalidArgument, "tenant: duplicate_phone %q", t.PhoneNumber)
	}

	now := r.clock.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	cfg, err := marshalConfig(t.Config)
	if err != nil {
		return Tenant{}, apperr.Wrap(apperr.KindInvalidArgument, err, "tenant: encode config for %q", t.ID)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tenants (tenant_id, display_name, phone_number, status, timezone, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.DisplayName, t.PhoneNumber, string(t.Status), t.Timezone, cfg,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return Tenant{}, apperr.Wrap(apperr.KindInternal, err, "tenant: insert %q", t.ID)
	}

	if _, err := r.factory.Open(t.ID); err != nil {
		return Tenant{}, apperr.Wrap(apperr.KindInternal, err, "tenant: provision store for %q", t.ID)
	}

	if err := r.reload(ctx); err != nil {
		return Tenant{}, err
	}
	return t, nil
}

// FindByID returns the tenant registered under id.
func (r *Registry) FindByID(id string) (Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	if !ok {
		return Tenant{}, apperr.New(apperr.KindUnknownTenant, "tenant: no tenant with id %q", id)
	}
	return t, nil
}

// FindByPhone resolves the tenant owning the given inbound phone number.
func (r *Registry) FindByPhone(phone string) (Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPhone[phone]
	if !ok {
		return Tenant{}, apperr.New(apperr.KindUnknownTenant, "tenant: no tenant with phone number %q", phone)
	}
	return r.byID[id], nil
}

// ListActive returns every tenant currently accepting calls.
func (r *Registry) ListActive() []Tenant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tenant, 0, len(r.byID))
	for _, t := range r.byID {
		if t.IsActive() {
			out = append(out, t)
		}
	}
	return out
}

// ListAll returns every registered tenant regardless of status.
func (r *Registry) ListAll() []Tenant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tenant, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t)
	}
	return out
}

// UpdateStatus changes a tenant's lifecycle status.
func (r *Registry) UpdateStatus(ctx context.Context, id string, status Status) error {
	if _, err := r.FindByID(id); err != nil {
		return err
	}
	now := r.clock.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET status = ?, updated_at = ? WHERE tenant_id = ?`,
		string(status), now.Format(time.RFC3339), id,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "tenant: update status %q", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindUnknownTenant, "tenant: no tenant with id %q", id)
	}
	return r.reload(ctx)
}

// UpdateTimezone changes a tenant's IANA timezone, used by the scheduler to
// interpret caller-supplied appointment times.
func (r *Registry) UpdateTimezone(ctx context.Context, id, timezone string) error {
	if _, err := r.FindByID(id); err != nil {
		return err
	}
	now := r.clock.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET timezone = ?, updated_at = ? WHERE tenant_id = ?`,
		timezone, now.Format(time.RFC3339), id,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "tenant: update timezone %q", id)
	}
	return r.reload(ctx)
}

// UpdateConfig replaces a tenant's JSON configuration blob (business hours,
// appointment types, calendar selection, routing, AI settings).
func (r *Registry) UpdateConfig(ctx context.Context, id string, cfg Config) error {
	if _, err := r.FindByID(id); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	encoded, err := marshalConfig(cfg)
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidArgument, err, "tenant: encode config for %q", id)
	}
	now := r.clock.Now().UTC()
	_, err = r.db.ExecContext(ctx,
		`UPDATE tenants SET config = ?, updated_at = ? WHERE tenant_id = ?`,
		encoded, now.Format(time.RFC3339), id,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "tenant: update config %q", id)
	}
	return r.reload(ctx)
}

// Refresh reloads the cache from the database. Call it periodically from a
// background goroutine so that changes made by another instance of
// voicereceptiond (sharing the same data directory is not supported, but a
// future multi-writer registry might) become visible; it is also called
// automatically after every local mutation.
func (r *Registry) Refresh(ctx context.Context) error {
	return r.reload(ctx)
}

func (r *Registry) reload(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tenant_id, display_name, phone_number, status, timezone, config, created_at, updated_at
		FROM tenants`)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "tenant: query all")
	}
	defer rows.Close()

	byID := make(map[string]Tenant)
	byPhone := make(map[string]string)
	for rows.Next() {
		var (
			t                    Tenant
			status               string
			configJSON           string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&t.ID, &t.DisplayName, &t.PhoneNumber, &status, &t.Timezone, &configJSON, &createdAt, &updatedAt); err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "tenant: scan row")
		}
		t.Status = Status(status)
		t.Config = unmarshalConfig(configJSON)
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		byID[t.ID] = t
		byPhone[t.PhoneNumber] = t.ID
	}
	if err := rows.Err(); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "tenant: iterate rows")
	}

	r.mu.Lock()
	r.byID = byID
	r.byPhone = byPhone
	r.mu.Unlock()
	return nil
}
