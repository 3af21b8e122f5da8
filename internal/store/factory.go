// Package store implements the embedded SQLite persistence layer: one shared
// registry database plus one isolated database file per tenant
// (client-<tenant_id>.db). It uses modernc.org/sqlite, a pure-Go SQLite
// driver, so the binary stays cgo-free.
//
// The per-tenant split is deliberate: a runaway or malicious tenant can
// corrupt or bloat only its own file, and a tenant's data can be archived,
// backed up, or deleted independently of every other tenant's.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	_ "modernc.org/sqlite"
)

// ErrUnknownTenant is returned by [Factory.Get] when no database file exists
// for the requested tenant. Per-tenant databases are never created
// implicitly — only [Factory.Open], used by the privileged provisioning
// flow, creates a new file. This is a deliberate defense against a "disk
// bomb": an attacker spamming unknown tenant IDs at the webhook ingress must
// not be able to make the process create one file per request.
var ErrUnknownTenant = errors.New("store: unknown tenant")

// tenantIDPattern restricts tenant IDs to characters safe to embed directly
// in a filename, since tenant IDs are not otherwise attacker-controlled but
// are used to build filesystem paths.
var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// Factory opens and caches the shared registry database and all per-tenant
// databases under a single data directory. It is safe for concurrent use.
type Factory struct {
	dataDir string

	registryOnce sync.Once
	registry     *sql.DB
	registryErr  error

	mu      sync.Mutex
	tenants map[string]*sql.DB
}

// NewFactory creates a [Factory] rooted at dataDir. The directory is created
// if it does not already exist.
func NewFactory(dataDir string) (*Factory, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir %q: %w", dataDir, err)
	}
	return &Factory{
		dataDir: dataDir,
		tenants: make(map[string]*sql.DB),
	}, nil
}

// Registry returns the shared registry database, opening and migrating it on
// first call.
func (f *Factory) Registry() (*sql.DB, error) {
	f.registryOnce.Do(func() {
		path := filepath.Join(f.dataDir, "registry.db")
		f.registry, f.registryErr = openDB(path, sharedSchema)
	})
	return f.registry, f.registryErr
}

// Open opens (creating if necessary) the per-tenant database for tenantID.
// It is used only by the privileged tenant-provisioning flow — callers
// servicing untrusted input must use [Factory.Get] instead.
func (f *Factory) Open(tenantID string) (*sql.DB, error) {
	if !tenantIDPattern.MatchString(tenantID) {
		return nil, fmt.Errorf("store: invalid tenant id %q", tenantID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if db, ok := f.tenants[tenantID]; ok {
		return db, nil
	}

	db, err := openDB(f.tenantPath(tenantID), tenantSchema)
	if err != nil {
		return nil, err
	}
	f.tenants[tenantID] = db
	return db, nil
}

// Get returns the per-tenant database for tenantID. It returns
// [ErrUnknownTenant] without touching the filesystem's create path if no
// database file exists yet — unknown tenants never cause a file to be
// created.
func (f *Factory) Get(tenantID string) (*sql.DB, error) {
	if !tenantIDPattern.MatchString(tenantID) {
		return nil, ErrUnknownTenant
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if db, ok := f.tenants[tenantID]; ok {
		return db, nil
	}

	path := f.tenantPath(tenantID)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrUnknownTenant
		}
		return nil, fmt.Errorf("store: stat %q: %w", path, err)
	}

	db, err := openDB(path, tenantSchema)
	if err != nil {
		return nil, err
	}
	f.tenants[tenantID] = db
	return db, nil
}

// tenantPath returns the database file path for tenantID.
func (f *Factory) tenantPath(tenantID string) string {
	return filepath.Join(f.dataDir, fmt.Sprintf("client-%s.db", tenantID))
}

// Close closes the registry database and every cached per-tenant database.
func (f *Factory) Close() error {
	var errs []error
	if f.registry != nil {
		if err := f.registry.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, db := range f.tenants {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// openDB opens a SQLite database at path in WAL mode, applies ddl (which
// must be idempotent — CREATE TABLE/INDEX IF NOT EXISTS), and stamps the
// schema_version table if it is empty.
func openDB(path, ddl string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	// A single tenant database is accessed by at most one orchestrator
	// goroutine group at a time in practice, but WAL mode tolerates
	// concurrent readers; cap writers to avoid SQLITE_BUSY storms.
	db.SetMaxOpenConns(4)

	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema %q: %w", path, err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&count); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: read schema_version %q: %w", path, err)
	}
	if count == 0 {
		if _, err := db.Exec(`INSERT INTO schema_version(version) VALUES (?)`, schemaVersion); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: stamp schema_version %q: %w", path, err)
		}
	}

	return db, nil
}
