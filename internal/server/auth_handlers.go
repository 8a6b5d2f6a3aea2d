package server

import (
	"context"
	"net/http"

	"github.com/dgellow/docfront/internal/autherr"
	"github.com/dgellow/docfront/internal/browserauth"
	"github.com/dgellow/docfront/internal/cookie"
	"github.com/dgellow/docfront/internal/csrf"
	"github.com/dgellow/docfront/internal/idp"
	jsonwriter "github.com/dgellow/docfront/internal/json"
	"github.com/dgellow/docfront/internal/log"
	"github.com/dgellow/docfront/internal/metrics"
	"github.com/dgellow/docfront/internal/session"
	"github.com/dgellow/docfront/internal/storage"
	"golang.org/x/oauth2"
)

// AuthHandlers wraps the browser login endpoints
type AuthHandlers struct {
	provider idp.Provider
	flow     *browserauth.Flow
	sessions *session.Accessor
	csrf     *csrf.Manager
	scoper   *storage.Scoper
	metrics  *metrics.Metrics
}

// NewAuthHandlers creates new auth handlers with dependency injection
func NewAuthHandlers(
	provider idp.Provider,
	defaultRedirect string,
	sessions *session.Accessor,
	csrfManager *csrf.Manager,
	scoper *storage.Scoper,
	m *metrics.Metrics,
) *AuthHandlers {
	return &AuthHandlers{
		provider: provider,
		flow:     browserauth.NewFlow(provider, defaultRedirect),
		sessions: sessions,
		csrf:     csrfManager,
		scoper:   scoper,
		metrics:  m,
	}
}

// StartHandler handles GET /auth/start: records a fresh state nonce and the
// sanitized return path, then redirects to the identity provider.
func (h *AuthHandlers) StartHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonwriter.WriteMethodNotAllowed(w, "Method not allowed")
		return
	}

	authURL, mutations := h.flow.Begin(r.URL.Query().Get("redirect"))
	cookie.Apply(w, mutations...)

	if h.metrics != nil {
		h.metrics.IncrementLoginStarted()
	}
	log.LogDebugWithFields("auth", "Redirecting to identity provider", map[string]any{
		"provider": h.provider.Type(),
	})

	http.Redirect(w, r, authURL, http.StatusFound)
}

// CallbackHandler handles GET /auth/callback from the identity provider
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonwriter.WriteMethodNotAllowed(w, "Method not allowed")
		return
	}

	ctx := r.Context()
	jar := cookie.FromRequest(r)
	query := r.URL.Query()

	record, mutations, err := h.flow.Complete(jar, query.Get("state"))
	cookie.Apply(w, mutations...)
	if err != nil {
		writeError(w, r, err, h.metrics)
		return
	}

	if providerErr := query.Get("error"); providerErr != "" {
		log.LogInfoCtx(ctx, "auth", "Identity provider declined authorization", map[string]any{
			"error":       providerErr,
			"description": query.Get("error_description"),
		})
		writeError(w, r, autherr.Authentication("Authorization was denied", nil), h.metrics)
		return
	}

	code := query.Get("code")
	if code == "" {
		jsonwriter.WriteBadRequest(w, "Missing authorization code")
		return
	}

	token, err := h.provider.ExchangeCode(ctx, code)
	if err != nil {
		writeError(w, r, autherr.Authentication("Failed to complete sign in", err), h.metrics)
		return
	}

	identity, err := h.provider.UserInfo(ctx, token)
	if err != nil {
		writeError(w, r, autherr.Internal("Failed to fetch user", err), h.metrics)
		return
	}

	principal := session.Principal{
		ID:        identity.Subject,
		Login:     identity.Login,
		Name:      identity.Name,
		AvatarURL: identity.AvatarURL,
	}

	scoped := h.scoper.For(principal.ID)
	if err := scoped.TrackUser(ctx, principal.Login); err != nil {
		writeError(w, r, err, h.metrics)
		return
	}

	h.syncInstallations(ctx, scoped, token)

	sessionCookie, err := h.sessions.Issue(principal, h.provider.Type())
	if err != nil {
		writeError(w, r, autherr.Internal("Failed to create session", err), h.metrics)
		return
	}
	_, csrfMutations := h.csrf.Rotate()
	cookie.Apply(w, sessionCookie)
	cookie.Apply(w, csrfMutations...)

	if h.metrics != nil {
		h.metrics.IncrementLoginCompleted()
	}
	log.LogInfoCtx(ctx, "auth", "User signed in", map[string]any{
		"user":     principal.Login,
		"user_id":  principal.ID,
		"redirect": record.RedirectTo,
	})

	http.Redirect(w, r, record.RedirectTo, http.StatusFound)
}

// syncInstallations mirrors the provider's installation list into storage.
// Failures are logged; sign in proceeds with whatever was stored before.
func (h *AuthHandlers) syncInstallations(ctx context.Context, scoped *storage.Scoped, token *oauth2.Token) {
	infos, err := h.provider.Installations(ctx, token)
	if err == nil {
		insts := make([]storage.Installation, 0, len(infos))
		for _, info := range infos {
			if !storage.IsValidAccountType(info.AccountType) {
				log.LogWarnCtx(ctx, "auth", "Skipping installation with unknown account type", map[string]any{
					"user_id":         scoped.OwnerID(),
					"installation_id": info.ID,
					"account_type":    info.AccountType,
				})
				continue
			}
			insts = append(insts, storage.Installation{
				ID:           info.ID,
				AccountLogin: info.AccountLogin,
				AccountType:  info.AccountType,
				AvatarURL:    info.AvatarURL,
			})
		}
		err = scoped.ReplaceInstallations(ctx, insts)
	}

	if h.metrics != nil {
		h.metrics.IncrementInstallationSync(err == nil)
	}
	if err != nil {
		log.LogWarnCtx(ctx, "auth", "Installation sync failed", map[string]any{
			"user_id": scoped.OwnerID(),
			"error":   err.Error(),
		})
		return
	}
	log.LogDebugWithFields("auth", "Installations synced", map[string]any{
		"user_id": scoped.OwnerID(),
		"count":   len(infos),
	})
}

// SessionHandler handles GET /auth/session. It never fails: anonymous callers
// get {authenticated: false}. Either way the CSRF cookie is ensured and its
// value echoed in the X-CSRF-Token header.
func (h *AuthHandlers) SessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonwriter.WriteMethodNotAllowed(w, "Method not allowed")
		return
	}

	jar := cookie.FromRequest(r)
	summary := h.sessions.Summary(jar)

	token, mutations := h.csrf.GetOrCreate(jar)
	cookie.Apply(w, mutations...)
	w.Header().Set(csrf.HeaderName, token.Value)

	_ = jsonwriter.WriteData(w, summary)
}

// LogoutHandler handles POST /auth/logout. It sits behind the CSRF
// middleware and expires both the session and the CSRF cookie.
func (h *AuthHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteMethodNotAllowed(w, "Method not allowed")
		return
	}

	cookie.Apply(w, h.sessions.Clear()...)
	cookie.Apply(w, h.csrf.Clear()...)

	log.LogInfoCtx(r.Context(), "auth", "User signed out", nil)
	_ = jsonwriter.WriteData(w, session.Summary{Authenticated: false})
}
