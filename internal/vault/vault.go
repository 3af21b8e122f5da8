// Package vault implements the per-tenant credential vault: encrypted
// storage of calendar OAuth tokens in each tenant's own database file.
//
// Envelope format is "hex(iv):hex(ciphertext)" using AES-256-CBC with a
// random 16-byte IV per encryption. This exact envelope shape is not
// provided by any dependency already in use elsewhere in this module, so it
// is implemented directly on the standard library crypto/aes and
// crypto/cipher packages rather than pulled in as a new third-party
// dependency for a single narrow use.
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/glyphoxa/internal/apperr"
	"github.com/MrWong99/glyphoxa/internal/store"
	"github.com/MrWong99/glyphoxa/internal/tenant"
)

// Credential holds a decrypted OAuth token set for one calendar provider.
type Credential struct {
	Provider     string
	CalendarID   string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TenantResolver is the narrow slice of the Tenant Registry the vault
// consults before any read or write, per spec.md §4.3 ("The vault consults
// the Tenant Registry before writing and rejects unknown tenants"). Declared
// locally, same dependency-inversion seam internal/orchestrator and
// internal/scheduler use for their own TenantResolver interfaces, so tests
// can substitute a fake registry without standing up sqlite.
type TenantResolver interface {
	FindByID(id string) (tenant.Tenant, error)
}

// Vault encrypts and decrypts calendar credentials at rest, scoping all
// operations to a single tenant's database file.
type Vault struct {
	factory *store.Factory
	tenants TenantResolver
	key     []byte // 32 bytes, AES-256

	mu        sync.Mutex
	tenantMus map[string]*sync.Mutex
}

// New creates a [Vault] using keyHex (64 hex characters, decoding to exactly
// 32 bytes) as the AES-256 key, factory to reach each tenant's database, and
// tenants to authoritatively resolve whether a tenant ID is known before any
// store access is attempted.
func New(factory *store.Factory, tenants TenantResolver, keyHex string) (*Vault, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("vault: decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("vault: key must decode to 32 bytes, got %d", len(key))
	}
	return &Vault{
		factory:   factory,
		tenants:   tenants,
		key:       key,
		tenantMus: make(map[string]*sync.Mutex),
	}, nil
}

// checkTenant rejects tenantID outright if the Tenant Registry does not know
// it, before any store file is opened. This is the authoritative check
// spec.md §4.3 requires; store.ErrUnknownTenant (raised when no database
// file exists yet for an otherwise-registered tenant) is a distinct,
// non-rejecting condition handled separately by each operation.
func (v *Vault) checkTenant(tenantID string) error {
	if _, err := v.tenants.FindByID(tenantID); err != nil {
		return apperr.Wrap(apperr.KindUnknownTenant, err, "vault: unknown tenant %q", tenantID)
	}
	return nil
}

// lockFor returns (creating if necessary) the per-tenant mutex serializing
// read-modify-write credential updates for tenantID.
func (v *Vault) lockFor(tenantID string) *sync.Mutex {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.tenantMus[tenantID]
	if !ok {
		m = &sync.Mutex{}
		v.tenantMus[tenantID] = m
	}
	return m
}

// Get retrieves and decrypts the stored credential for tenantID and
// provider. Returns [apperr.KindUnknownTenant] if the Tenant Registry does
// not know tenantID, or an [apperr.KindAuthExpired] error wrapping
// sql.ErrNoRows if no credential has been saved for that provider yet.
func (v *Vault) Get(ctx context.Context, tenantID, provider string) (Credential, error) {
	if err := v.checkTenant(tenantID); err != nil {
		return Credential{}, err
	}

	lock := v.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	db, err := v.factory.Get(tenantID)
	if err != nil {
		if errors.Is(err, store.ErrUnknownTenant) {
			// Registry says tenantID is known (checkTenant above already
			// passed) but the per-tenant store file is missing — a partial
			// provisioning failure, not an unknown tenant.
			return Credential{}, apperr.Wrap(apperr.KindInternal, err, "vault: get %q: tenant registered but store not provisioned", tenantID)
		}
		return Credential{}, apperr.Wrap(apperr.KindInternal, err, "vault: open store %q", tenantID)
	}

	var (
		calendarID, blob, updatedAt string
	)
	err = db.QueryRowContext(ctx,
		`SELECT calendar_id, encrypted_blob, updated_at FROM calendar_credentials WHERE provider = ?`,
		provider,
	).Scan(&calendarID, &blob, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credential{}, apperr.Wrap(apperr.KindAuthExpired, err, "vault: no credential for tenant %q provider %q", tenantID, provider)
		}
		return Credential{}, apperr.Wrap(apperr.KindInternal, err, "vault: query credential")
	}

	plaintext, err := decrypt(v.key, blob)
	if err != nil {
		return Credential{}, apperr.Wrap(apperr.KindInternal, err, "vault: decrypt credential")
	}

	cred, err := decodeCredential(plaintext)
	if err != nil {
		return Credential{}, apperr.Wrap(apperr.KindInternal, err, "vault: decode credential payload")
	}
	cred.Provider = provider
	cred.CalendarID = calendarID
	return cred, nil
}

// Upsert encrypts and stores cred for tenantID, replacing any existing
// credential for the same provider.
func (v *Vault) Upsert(ctx context.Context, tenantID string, cred Credential) error {
	if err := v.checkTenant(tenantID); err != nil {
		return err
	}

	lock := v.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	db, err := v.factory.Get(tenantID)
	if err != nil {
		if errors.Is(err, store.ErrUnknownTenant) {
			return apperr.Wrap(apperr.KindInternal, err, "vault: upsert %q: tenant registered but store not provisioned", tenantID)
		}
		return apperr.Wrap(apperr.KindInternal, err, "vault: open store %q", tenantID)
	}

	plaintext := encodeCredential(cred)
	blob, err := encrypt(v.key, plaintext)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "vault: encrypt credential")
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO calendar_credentials (provider, calendar_id, encrypted_blob, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			calendar_id = excluded.calendar_id,
			encrypted_blob = excluded.encrypted_blob,
			updated_at = excluded.updated_at`,
		cred.Provider, cred.CalendarID, blob, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "vault: upsert credential")
	}
	return nil
}

// SetCalendarSelection updates only the calendar_id column for an existing
// credential, without touching the encrypted token blob. Used by the
// "select which calendar to book into" onboarding step after OAuth
// completes.
func (v *Vault) SetCalendarSelection(ctx context.Context, tenantID, provider, calendarID string) error {
	if err := v.checkTenant(tenantID); err != nil {
		return err
	}

	lock := v.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	db, err := v.factory.Get(tenantID)
	if err != nil {
		if errors.Is(err, store.ErrUnknownTenant) {
			return apperr.Wrap(apperr.KindInternal, err, "vault: set calendar selection %q: tenant registered but store not provisioned", tenantID)
		}
		return apperr.Wrap(apperr.KindInternal, err, "vault: open store %q", tenantID)
	}

	res, err := db.ExecContext(ctx,
		`UPDATE calendar_credentials SET calendar_id = ?, updated_at = ? WHERE provider = ?`,
		calendarID, time.Now().UTC().Format(time.RFC3339), provider,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "vault: update calendar selection")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindAuthExpired, "vault: no credential for tenant %q provider %q to select a calendar on", tenantID, provider)
	}
	return nil
}

// encodeCredential serializes a credential's token fields into a simple
// newline-delimited plaintext payload prior to encryption.
func encodeCredential(c Credential) []byte {
	return []byte(fmt.Sprintf("%d\n%s\n%s", c.ExpiresAt.Unix(), c.AccessToken, c.RefreshToken))
}

// decodeCredential is the inverse of encodeCredential.
func decodeCredential(data []byte) (Credential, error) {
	parts := strings.SplitN(string(data), "\n", 3)
	if len(parts) != 3 {
		return Credential{}, errors.New("vault: malformed credential payload")
	}
	expiresUnix, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Credential{}, fmt.Errorf("vault: malformed expiry: %w", err)
	}
	return Credential{
		AccessToken:  parts[1],
		RefreshToken: parts[2],
		ExpiresAt:    time.Unix(expiresUnix, 0).UTC(),
	}, nil
}

// encrypt returns the "hex(iv):hex(ciphertext)" envelope for plaintext under
// key using AES-256-CBC with PKCS#7 padding.
func encrypt(key, plaintext []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// decrypt is the inverse of encrypt.
func decrypt(key []byte, envelope string) ([]byte, error) {
	ivHex, ctHex, ok := strings.Cut(envelope, ":")
	if !ok {
		return nil, errors.New("vault: malformed envelope")
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, fmt.Errorf("vault: decode iv: %w", err)
	}
	ciphertext, err := hex.DecodeString(ctHex)
	if err != nil {
		return nil, fmt.Errorf("vault: decode ciphertext: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("vault: iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("vault: ciphertext is not a multiple of the block size")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("vault: empty plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, errors.New("vault: invalid padding")
	}
	return data[:len(data)-padLen], nil
}
