package browserauth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dgellow/docfront/internal/autherr"
	"github.com/dgellow/docfront/internal/cookie"
	"github.com/dgellow/docfront/internal/crypto"
	"github.com/dgellow/docfront/internal/log"
)

// DefaultRedirect is where a login lands when no usable hint was given
const DefaultRedirect = "/repos"

// StateRecord binds an in-flight login to its callback. It lives only in the
// __auth_state cookie; the cookie is the store.
type StateRecord struct {
	State      string `json:"state"`
	RedirectTo string `json:"redirectTo"`
}

// Encode serializes the record for a cookie value. JSON is base64url wrapped
// because net/http strips '"' from cookie values.
func (s StateRecord) Encode() string {
	data, err := json.Marshal(s)
	if err != nil {
		// two string fields cannot fail to marshal
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeStateRecord parses a cookie value produced by Encode
func DecodeStateRecord(value string) (StateRecord, error) {
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return StateRecord{}, fmt.Errorf("decoding state cookie: %w", err)
	}
	var rec StateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return StateRecord{}, fmt.Errorf("parsing state cookie: %w", err)
	}
	return rec, nil
}

// URLBuilder builds the provider authorization URL for a state nonce.
// idp.Provider satisfies it.
type URLBuilder interface {
	AuthURL(state string) string
}

// Flow runs the OAuth initiation and the callback state check
type Flow struct {
	provider        URLBuilder
	defaultRedirect string
}

// NewFlow creates a flow. An unusable defaultRedirect falls back to DefaultRedirect.
func NewFlow(provider URLBuilder, defaultRedirect string) *Flow {
	if !IsSafeRedirect(defaultRedirect) {
		defaultRedirect = DefaultRedirect
	}
	return &Flow{
		provider:        provider,
		defaultRedirect: defaultRedirect,
	}
}

// Begin starts a login: mints a state nonce, records it with the sanitized
// post-login destination, and returns the provider URL to redirect to along
// with the cookie mutations to apply. A previous in-flight login from the same
// browser is overwritten.
func (f *Flow) Begin(redirectHint string) (string, []*http.Cookie) {
	rec := StateRecord{
		State:      crypto.GenerateHexToken(crypto.StateTokenBytes),
		RedirectTo: SanitizeRedirect(redirectHint, f.defaultRedirect),
	}

	if redirectHint != "" && rec.RedirectTo != redirectHint {
		log.LogWarnWithFields("browserauth", "Rejected unsafe redirect hint", map[string]any{
			"hint": redirectHint,
		})
	}

	return f.provider.AuthURL(rec.State), []*http.Cookie{cookie.AuthState(rec.Encode())}
}

// Complete verifies the state echoed by the provider against the cookie.
// The state cookie is expired whatever the outcome, so each nonce is usable once.
func (f *Flow) Complete(jar cookie.Jar, echoedState string) (StateRecord, []*http.Cookie, error) {
	mutations := []*http.Cookie{cookie.Expire(cookie.AuthStateCookie)}

	raw, ok := jar.Get(cookie.AuthStateCookie)
	if !ok || raw == "" {
		return StateRecord{}, mutations, autherr.InvalidState("Login session expired, please sign in again", nil)
	}

	rec, err := DecodeStateRecord(raw)
	if err != nil {
		return StateRecord{}, mutations, autherr.InvalidState("Invalid login state", err)
	}

	if !crypto.IsHexToken(rec.State, crypto.StateTokenBytes) {
		return StateRecord{}, mutations, autherr.InvalidState("Invalid login state", nil)
	}

	if echoedState == "" || !crypto.Equal(rec.State, echoedState) {
		return StateRecord{}, mutations, autherr.InvalidState("Login state mismatch", nil)
	}

	// The cookie is client-held; re-check what it claims.
	rec.RedirectTo = SanitizeRedirect(rec.RedirectTo, f.defaultRedirect)
	return rec, mutations, nil
}
