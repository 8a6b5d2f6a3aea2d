package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const installationsPageSize = 100

// GitHubProvider implements the Provider interface for a GitHub App's
// user-to-server OAuth flow. GitHub uses OAuth 2.0 (not OIDC) and has its own
// API for user info and installations.
type GitHubProvider struct {
	config     oauth2.Config
	apiBaseURL string // defaults to https://api.github.com, can be overridden for testing
}

// githubUserResponse represents GitHub's user API response.
type githubUserResponse struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// githubEmailResponse represents an email from GitHub's emails API.
type githubEmailResponse struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

type githubAccount struct {
	Login     string `json:"login"`
	Type      string `json:"type"`
	AvatarURL string `json:"avatar_url"`
}

type githubInstallation struct {
	ID      int64         `json:"id"`
	Account githubAccount `json:"account"`
}

// githubInstallationsResponse represents GET /user/installations.
type githubInstallationsResponse struct {
	TotalCount    int                  `json:"total_count"`
	Installations []githubInstallation `json:"installations"`
}

// NewGitHubProvider creates a new GitHub OAuth provider.
// GitHub Apps ignore scopes; permissions come from the app registration.
func NewGitHubProvider(clientID, clientSecret, redirectURI string) *GitHubProvider {
	endpoint := github.Endpoint
	// Overrides for testing against a fake GitHub
	if authURL := os.Getenv("GITHUB_OAUTH_AUTH_URL"); authURL != "" {
		endpoint.AuthURL = authURL
	}
	if tokenURL := os.Getenv("GITHUB_OAUTH_TOKEN_URL"); tokenURL != "" {
		endpoint.TokenURL = tokenURL
	}

	apiBaseURL := "https://api.github.com"
	if customURL := os.Getenv("GITHUB_API_URL"); customURL != "" {
		apiBaseURL = strings.TrimSuffix(customURL, "/")
	}

	return &GitHubProvider{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     endpoint,
		},
		apiBaseURL: apiBaseURL,
	}
}

// Type returns the provider type.
func (p *GitHubProvider) Type() string {
	return "github"
}

// AuthURL generates the authorization URL.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for tokens.
func (p *GitHubProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code)
}

// UserInfo fetches user identity from GitHub's API.
func (p *GitHubProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	client := p.config.Client(ctx, token)

	var user githubUserResponse
	if err := p.getJSON(ctx, client, "/user", &user); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("failed to get user: missing id")
	}

	// The emails endpoint needs a permission the app may not have
	email := user.Email
	if email == "" {
		email = p.fetchPrimaryEmail(ctx, client)
	}

	return &Identity{
		ProviderType: "github",
		Subject:      strconv.FormatInt(user.ID, 10),
		Login:        user.Login,
		Name:         user.Name,
		Email:        email,
		AvatarURL:    user.AvatarURL,
	}, nil
}

// Installations pages through GET /user/installations.
func (p *GitHubProvider) Installations(ctx context.Context, token *oauth2.Token) ([]InstallationInfo, error) {
	client := p.config.Client(ctx, token)

	var result []InstallationInfo
	for page := 1; ; page++ {
		var resp githubInstallationsResponse
		path := fmt.Sprintf("/user/installations?per_page=%d&page=%d", installationsPageSize, page)
		if err := p.getJSON(ctx, client, path, &resp); err != nil {
			return nil, fmt.Errorf("failed to list installations: %w", err)
		}

		for _, inst := range resp.Installations {
			result = append(result, InstallationInfo{
				ID:           inst.ID,
				AccountLogin: inst.Account.Login,
				AccountType:  inst.Account.Type,
				AvatarURL:    inst.Account.AvatarURL,
			})
		}

		if len(resp.Installations) < installationsPageSize || len(result) >= resp.TotalCount {
			return result, nil
		}
	}
}

func (p *GitHubProvider) fetchPrimaryEmail(ctx context.Context, client *http.Client) string {
	var emails []githubEmailResponse
	if err := p.getJSON(ctx, client, "/user/emails", &emails); err != nil {
		return ""
	}

	for _, email := range emails {
		if email.Primary && email.Verified {
			return email.Email
		}
	}
	for _, email := range emails {
		if email.Verified {
			return email.Email
		}
	}
	return ""
}

func (p *GitHubProvider) getJSON(ctx context.Context, client *http.Client, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
