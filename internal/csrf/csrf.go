// Package csrf implements double-submit cookie CSRF protection.
//
// The token lives in a script-readable cookie; mutating requests must echo it
// in the X-CSRF-Token header. A cross-origin page can make the browser send
// the cookie but cannot read it, so it cannot produce the header. No
// server-side record of issued tokens is kept.
package csrf

import (
	"net/http"
	"time"

	"github.com/dgellow/docfront/internal/autherr"
	"github.com/dgellow/docfront/internal/cookie"
	"github.com/dgellow/docfront/internal/crypto"
)

// HeaderName carries the token on mutating requests and on the
// session-bootstrap response
const HeaderName = "X-CSRF-Token"

// DefaultTTL is the CSRF cookie lifetime when none is configured
const DefaultTTL = 7 * 24 * time.Hour

// Token is a CSRF token bound to the browser through its cookie
type Token struct {
	Value string
}

// Manager issues and verifies tokens
type Manager struct {
	ttl time.Duration
}

// NewManager creates a manager whose cookies live for ttl
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{ttl: ttl}
}

// GetOrCreate returns the token already held by the browser when it is well
// formed, with no mutations. Otherwise it mints one and returns the cookie
// to set. Repeated calls for the same browser return the same token.
func (m *Manager) GetOrCreate(jar cookie.Jar) (Token, []*http.Cookie) {
	if existing, ok := jar.Get(cookie.CSRFCookie); ok && crypto.IsHexToken(existing, crypto.CSRFTokenBytes) {
		return Token{Value: existing}, nil
	}

	token := Token{Value: crypto.GenerateHexToken(crypto.CSRFTokenBytes)}
	return token, []*http.Cookie{cookie.CSRF(token.Value, m.ttl)}
}

// Rotate always mints a fresh token, discarding whatever the browser held.
// Used when the session changes so a pre-login token never carries over.
func (m *Manager) Rotate() (Token, []*http.Cookie) {
	token := Token{Value: crypto.GenerateHexToken(crypto.CSRFTokenBytes)}
	return token, []*http.Cookie{cookie.CSRF(token.Value, m.ttl)}
}

// Verify checks that the header value matches the cookie value.
// Any absence or mismatch is a hard InvalidCSRF failure.
func (m *Manager) Verify(jar cookie.Jar, header string) error {
	stored, ok := jar.Get(cookie.CSRFCookie)
	if !ok || !crypto.IsHexToken(stored, crypto.CSRFTokenBytes) {
		return autherr.InvalidCSRF("Missing CSRF token cookie", nil)
	}
	if header == "" {
		return autherr.InvalidCSRF("Missing "+HeaderName+" header", nil)
	}
	if !crypto.Equal(stored, header) {
		return autherr.InvalidCSRF("CSRF token mismatch", nil)
	}
	return nil
}

// Clear returns the mutation that drops the CSRF cookie
func (m *Manager) Clear() []*http.Cookie {
	return []*http.Cookie{cookie.Expire(cookie.CSRFCookie)}
}

// IsSafeMethod reports whether method cannot change state and so needs no token
func IsSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
