// Package tokenprovider supplies the reference backendclient.TokenProvider
// implementation for standalone/CLI operation (§6): a bearer token cached
// in memory and refreshed proactively once its JWT `exp` claim is close to
// expiring.
package tokenprovider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RefreshFunc fetches a fresh bearer token from whatever auth backend the
// host application uses. It is called at most once per Token call, only
// when the cached token is missing or close to expiry.
type RefreshFunc func(ctx context.Context) (string, error)

// RefreshSkew is how long before the cached token's exp claim a refresh is
// triggered proactively, so an in-flight RPC never races an expiring token.
const RefreshSkew = 30 * time.Second

// Provider is a jwt-expiry-aware TokenProvider: it parses the cached
// token's claims (without verifying the signature — it only trusts a token
// it fetched itself) to decide whether to call refresh again.
type Provider struct {
	refresh RefreshFunc

	mu      sync.Mutex
	cached  string
	expires time.Time // zero means unknown expiry; treated as always-expired
}

// New builds a Provider backed by refresh.
func New(refresh RefreshFunc) *Provider {
	return &Provider{refresh: refresh}
}

// Token returns a cached bearer token, refreshing it first if it is missing
// or within RefreshSkew of expiring.
func (p *Provider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != "" && time.Now().Add(RefreshSkew).Before(p.expires) {
		return p.cached, nil
	}

	token, err := p.refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("tokenprovider: refresh failed: %w", err)
	}

	p.cached = token
	p.expires = expiryOf(token)
	return p.cached, nil
}

// expiryOf extracts the exp claim from a JWT without verifying its
// signature. A malformed or claim-less token is treated as already
// expired, forcing a refresh on every call rather than caching it.
func expiryOf(token string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	expiresAt, err := claims.GetExpirationTime()
	if err != nil || expiresAt == nil {
		return time.Time{}
	}
	return expiresAt.Time
}
