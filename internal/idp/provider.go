package idp

import (
	"context"

	"golang.org/x/oauth2"
)

// Identity is the authenticated user as reported by the identity provider
type Identity struct {
	ProviderType string `json:"provider_type"`
	Subject      string `json:"sub"`
	Login        string `json:"login"`
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	AvatarURL    string `json:"avatar_url"`
}

// InstallationInfo is an app installation the user can access
type InstallationInfo struct {
	ID           int64
	AccountLogin string
	AccountType  string // "User" or "Organization"
	AvatarURL    string
}

// Provider abstracts identity provider operations.
// The token exchange itself is delegated to golang.org/x/oauth2.
type Provider interface {
	// Type returns the provider type identifier (e.g., "github").
	Type() string

	// AuthURL generates the authorization URL for the OAuth flow.
	AuthURL(state string) string

	// ExchangeCode exchanges an authorization code for tokens.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// UserInfo fetches the identity behind token.
	UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error)

	// Installations lists the app installations the user can access.
	Installations(ctx context.Context, token *oauth2.Token) ([]InstallationInfo, error)
}
