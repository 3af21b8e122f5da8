package calendar

import (
	"context"
	"fmt"

	"github.com/MrWong99/glyphoxa/internal/vault"
	"golang.org/x/oauth2"
)

// VaultTokenSource returns an [oauth2.TokenSource] for tenantID/provider
// backed by v: it loads the stored credential, lets oauth2.Config refresh
// it as needed, and persists any refreshed token back to the vault so the
// next call reuses it instead of round-tripping the provider's token
// endpoint every time.
//
// providerName is the calendar_credentials row key ("google" or
// "outlook").
func VaultTokenSource(ctx context.Context, v *vault.Vault, oauthCfg *oauth2.Config, tenantID, providerName string) (oauth2.TokenSource, error) {
	cred, err := v.Get(ctx, tenantID, providerName)
	if err != nil {
		return nil, err
	}

	base := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.ExpiresAt,
	}
	persisting := &persistingTokenSource{
		ctx:      ctx,
		vault:    v,
		tenantID: tenantID,
		provider: providerName,
		prior:    cred,
		inner:    oauthCfg.TokenSource(ctx, base),
	}
	return persisting, nil
}

// persistingTokenSource wraps an oauth2.TokenSource and writes any token it
// returns that differs from the last-seen token back to the vault.
type persistingTokenSource struct {
	ctx      context.Context
	vault    *vault.Vault
	tenantID string
	provider string
	prior    vault.Credential
	inner    oauth2.TokenSource
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.inner.Token()
	if err != nil {
		return nil, fmt.Errorf("calendar: refresh %s token for tenant %q: %w", p.provider, p.tenantID, err)
	}
	if tok.AccessToken != p.prior.AccessToken {
		updated := p.prior
		updated.Provider = p.provider
		updated.AccessToken = tok.AccessToken
		if tok.RefreshToken != "" {
			updated.RefreshToken = tok.RefreshToken
		}
		updated.ExpiresAt = tok.Expiry
		if err := p.vault.Upsert(p.ctx, p.tenantID, updated); err != nil {
			return nil, fmt.Errorf("calendar: persist refreshed %s token for tenant %q: %w", p.provider, p.tenantID, err)
		}
		p.prior = updated
	}
	return tok, nil
}
