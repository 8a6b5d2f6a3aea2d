package cookie

import (
	"net/http"
	"time"

	"github.com/dgellow/docfront/internal/envutil"
	"github.com/dgellow/docfront/internal/log"
)

// Cookie names used by docfront
const (
	AuthStateCookie = "__auth_state"
	SessionCookie   = "__session"
	CSRFCookie      = "csrf_token"
)

// AuthStateMaxAge bounds how long a login may stay in flight
const AuthStateMaxAge = 10 * time.Minute

// Jar is a read-only view of the cookies an inbound request carried.
// Core operations read from a Jar and return the mutations to apply,
// so none of them needs a live http.ResponseWriter.
type Jar map[string]string

// FromRequest snapshots the request's cookies. When a name repeats, the
// first occurrence wins, matching http.Request.Cookie.
func FromRequest(r *http.Request) Jar {
	jar := make(Jar)
	for _, c := range r.Cookies() {
		if _, seen := jar[c.Name]; !seen {
			jar[c.Name] = c.Value
		}
	}
	return jar
}

// Get returns the named cookie value and whether it was present
func (j Jar) Get(name string) (string, bool) {
	v, ok := j[name]
	return v, ok
}

// Apply writes the mutations to the response
func Apply(w http.ResponseWriter, mutations ...*http.Cookie) {
	for _, c := range mutations {
		if c != nil {
			http.SetCookie(w, c)
		}
	}
}

func secure() bool {
	return !envutil.IsDev()
}

// AuthState builds the short-lived login state cookie. The value is a
// browserauth.StateRecord as unpadded base64url-encoded JSON
// ({"state":"<64 hex>","redirectTo":"/path"}); non-Go readers must decode
// it before parsing.
func AuthState(value string) *http.Cookie {
	return &http.Cookie{
		Name:     AuthStateCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(AuthStateMaxAge.Seconds()),
	}
}

// Session builds the session cookie
func Session(value string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	}

	log.LogTraceWithFields("cookie", "Session cookie built", map[string]any{
		"maxAge":   maxAge.String(),
		"secure":   c.Secure,
		"sameSite": "Lax",
	})
	return c
}

// CSRF builds the CSRF token cookie
func CSRF(value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     CSRFCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: false, // client script echoes it back in a header
		Secure:   secure(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	}
}

// Expire returns a mutation that deletes the named cookie
func Expire(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: name != CSRFCookie,
		Secure:   secure(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	}
}
