package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dgellow/docfront/internal/autherr"
	"github.com/dgellow/docfront/internal/cookie"
	"github.com/dgellow/docfront/internal/crypto"
	"github.com/dgellow/docfront/internal/log"
)

// Principal is the authenticated user behind a request
type Principal struct {
	ID        string `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// BrowserCookie represents the data sealed into the session cookie
type BrowserCookie struct {
	Principal Principal `json:"principal"`
	Provider  string    `json:"provider"` // IDP that authenticated this user
	Expires   time.Time `json:"expires"`
}

// IsExpired reports whether the session is past its expiry at now
func (c BrowserCookie) IsExpired(now time.Time) bool {
	return !now.Before(c.Expires)
}

// Summary is the logged-in-or-not view served by the session status endpoint
type Summary struct {
	Authenticated bool       `json:"authenticated"`
	User          *Principal `json:"user,omitempty"`
}

// Accessor resolves the principal from the session cookie
type Accessor struct {
	sealer *crypto.Sealer
	ttl    time.Duration
	now    func() time.Time
}

// NewAccessor creates an accessor issuing sessions valid for ttl
func NewAccessor(sealer *crypto.Sealer, ttl time.Duration) *Accessor {
	return &Accessor{
		sealer: sealer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue seals a new session for p and returns the cookie to set
func (a *Accessor) Issue(p Principal, provider string) (*http.Cookie, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("principal id is required")
	}

	data, err := json.Marshal(BrowserCookie{
		Principal: p,
		Provider:  provider,
		Expires:   a.now().Add(a.ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling session: %w", err)
	}

	sealed, err := a.sealer.Seal(data)
	if err != nil {
		return nil, fmt.Errorf("sealing session: %w", err)
	}

	return cookie.Session(sealed, a.ttl), nil
}

// Current resolves the request's principal. Missing, expired, tampered, or
// malformed sessions fail with an authentication error.
func (a *Accessor) Current(jar cookie.Jar) (Principal, error) {
	raw, ok := jar.Get(cookie.SessionCookie)
	if !ok || raw == "" {
		return Principal{}, autherr.Authentication("Authentication required", nil)
	}

	data, err := a.sealer.Open(raw)
	if err != nil {
		return Principal{}, autherr.Authentication("Invalid session", err)
	}

	var sc BrowserCookie
	if err := json.Unmarshal(data, &sc); err != nil {
		return Principal{}, autherr.Authentication("Invalid session", err)
	}

	if sc.IsExpired(a.now()) {
		log.LogDebugWithFields("session", "Session expired", map[string]any{
			"user":    sc.Principal.Login,
			"expired": sc.Expires,
		})
		return Principal{}, autherr.Authentication("Session expired", nil)
	}

	if sc.Principal.ID == "" {
		return Principal{}, autherr.Authentication("Invalid session", nil)
	}

	return sc.Principal, nil
}

// Require is the strict accessor for protected resources. It never returns a
// zero Principal without an error.
func (a *Accessor) Require(jar cookie.Jar) (Principal, error) {
	return a.Current(jar)
}

// Summary answers whether the request is logged in. It never fails.
func (a *Accessor) Summary(jar cookie.Jar) Summary {
	p, err := a.Current(jar)
	if err != nil {
		return Summary{Authenticated: false}
	}
	return Summary{Authenticated: true, User: &p}
}

// Clear returns the mutations that end the session
func (a *Accessor) Clear() []*http.Cookie {
	return []*http.Cookie{cookie.Expire(cookie.SessionCookie)}
}

type principalKey struct{}

// WithPrincipal stores p in ctx for downstream handlers
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by WithPrincipal
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.ID == "" {
		return Principal{}, false
	}
	return p, true
}
