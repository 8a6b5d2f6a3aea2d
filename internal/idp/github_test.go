package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestProvider(serverURL string) *GitHubProvider {
	return &GitHubProvider{
		config: oauth2.Config{
			ClientID:     "test-client",
			ClientSecret: "test-secret",
			RedirectURL:  "https://docs.example.com/auth/callback",
			Endpoint: oauth2.Endpoint{
				AuthURL:  serverURL + "/login/oauth/authorize",
				TokenURL: serverURL + "/login/oauth/access_token",
			},
		},
		apiBaseURL: serverURL,
	}
}

func TestGitHubProvider_Type(t *testing.T) {
	provider := NewGitHubProvider("client-id", "client-secret", "https://example.com/auth/callback")
	assert.Equal(t, "github", provider.Type())
}

func TestGitHubProvider_AuthURL(t *testing.T) {
	provider := NewGitHubProvider("client-id", "client-secret", "https://example.com/auth/callback")

	authURL := provider.AuthURL("test-state")

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "test-state", u.Query().Get("state"))
	assert.Equal(t, "client-id", u.Query().Get("client_id"))
	assert.Equal(t, "https://example.com/auth/callback", u.Query().Get("redirect_uri"))
}

func TestGitHubProvider_EndpointOverrides(t *testing.T) {
	t.Setenv("GITHUB_OAUTH_AUTH_URL", "http://localhost:9091/login/oauth/authorize")
	t.Setenv("GITHUB_OAUTH_TOKEN_URL", "http://localhost:9091/login/oauth/access_token")
	t.Setenv("GITHUB_API_URL", "http://localhost:9091/api/")

	provider := NewGitHubProvider("client-id", "client-secret", "https://example.com/auth/callback")

	u, err := url.Parse(provider.AuthURL("s"))
	require.NoError(t, err)
	assert.Equal(t, "localhost:9091", u.Host)
	assert.Equal(t, "/login/oauth/authorize", u.Path)
	assert.Equal(t, "http://localhost:9091/login/oauth/access_token", provider.config.Endpoint.TokenURL)
	assert.Equal(t, "http://localhost:9091/api", provider.apiBaseURL)
}

func TestGitHubProvider_ExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/login/oauth/access_token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_abc","token_type":"bearer"}`))
	}))
	defer server.Close()

	token, err := newTestProvider(server.URL).ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "gho_abc", token.AccessToken)
}

func TestGitHubProvider_UserInfo(t *testing.T) {
	tests := []struct {
		name          string
		userResp      githubUserResponse
		emailsResp    []githubEmailResponse
		emailsStatus  int
		expectedEmail string
	}{
		{
			name: "user_with_public_email",
			userResp: githubUserResponse{
				ID:        12345,
				Login:     "octocat",
				Email:     "octo@company.com",
				Name:      "Octo Cat",
				AvatarURL: "https://avatars.example.com/u/12345",
			},
			expectedEmail: "octo@company.com",
		},
		{
			name:     "user_without_public_email_fetches_from_api",
			userResp: githubUserResponse{ID: 12345, Login: "octocat"},
			emailsResp: []githubEmailResponse{
				{Email: "secondary@other.com", Primary: false, Verified: true},
				{Email: "primary@company.com", Primary: true, Verified: true},
			},
			expectedEmail: "primary@company.com",
		},
		{
			name:     "unverified_primary_falls_back_to_verified",
			userResp: githubUserResponse{ID: 12345, Login: "octocat"},
			emailsResp: []githubEmailResponse{
				{Email: "primary@company.com", Primary: true, Verified: false},
				{Email: "verified@company.com", Primary: false, Verified: true},
			},
			expectedEmail: "verified@company.com",
		},
		{
			name:          "emails_forbidden_is_not_fatal",
			userResp:      githubUserResponse{ID: 12345, Login: "octocat"},
			emailsStatus:  http.StatusForbidden,
			expectedEmail: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
				w.Header().Set("Content-Type", "application/json")

				switch r.URL.Path {
				case "/user":
					require.NoError(t, json.NewEncoder(w).Encode(tt.userResp))
				case "/user/emails":
					if tt.emailsStatus != 0 {
						w.WriteHeader(tt.emailsStatus)
						return
					}
					require.NoError(t, json.NewEncoder(w).Encode(tt.emailsResp))
				default:
					w.WriteHeader(http.StatusNotFound)
				}
			}))
			defer server.Close()

			token := &oauth2.Token{AccessToken: "test-token"}
			identity, err := newTestProvider(server.URL).UserInfo(context.Background(), token)

			require.NoError(t, err)
			require.NotNil(t, identity)
			assert.Equal(t, "github", identity.ProviderType)
			assert.Equal(t, "12345", identity.Subject)
			assert.Equal(t, "octocat", identity.Login)
			assert.Equal(t, tt.userResp.AvatarURL, identity.AvatarURL)
			assert.Equal(t, tt.expectedEmail, identity.Email)
		})
	}
}

func TestGitHubProvider_UserInfo_APIErrors(t *testing.T) {
	tests := []struct {
		name        string
		userStatus  int
		errContains string
	}{
		{
			name:        "user_api_error",
			userStatus:  http.StatusInternalServerError,
			errContains: "status 500",
		},
		{
			name:        "user_unauthorized",
			userStatus:  http.StatusUnauthorized,
			errContains: "status 401",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.userStatus)
			}))
			defer server.Close()

			token := &oauth2.Token{AccessToken: "test-token"}
			_, err := newTestProvider(server.URL).UserInfo(context.Background(), token)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestGitHubProvider_UserInfo_MissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"login":"ghost"}`))
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).UserInfo(context.Background(), &oauth2.Token{AccessToken: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id")
}

func TestGitHubProvider_Installations(t *testing.T) {
	const total = 150

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user/installations", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))

		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		require.NoError(t, err)

		resp := githubInstallationsResponse{TotalCount: total}
		start := (page - 1) * installationsPageSize
		for i := start; i < total && i < start+installationsPageSize; i++ {
			accountType := "User"
			if i%2 == 1 {
				accountType = "Organization"
			}
			resp.Installations = append(resp.Installations, githubInstallation{
				ID: int64(i + 1),
				Account: githubAccount{
					Login:     fmt.Sprintf("account-%d", i+1),
					Type:      accountType,
					AvatarURL: fmt.Sprintf("https://avatars.example.com/%d", i+1),
				},
			})
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	installations, err := newTestProvider(server.URL).Installations(context.Background(), &oauth2.Token{AccessToken: "t"})
	require.NoError(t, err)
	require.Len(t, installations, total)

	assert.Equal(t, InstallationInfo{
		ID:           1,
		AccountLogin: "account-1",
		AccountType:  "User",
		AvatarURL:    "https://avatars.example.com/1",
	}, installations[0])
	assert.Equal(t, "Organization", installations[1].AccountType)
	assert.Equal(t, int64(total), installations[total-1].ID)
}

func TestGitHubProvider_Installations_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).Installations(context.Background(), &oauth2.Token{AccessToken: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}
