package integration

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthFlow(t *testing.T) {
	startDocfront(t, writeTestConfig(t, buildTestConfig(nil)))
	waitForDocfront(t)

	t.Run("start redirects to GitHub with state matching the cookie", func(t *testing.T) {
		b := newBrowserClient(t)
		resp, _ := b.do(http.MethodGet, "/auth/start", nil)
		require.Equal(t, http.StatusFound, resp.StatusCode)

		location, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "localhost:"+fakeGitHubPort, location.Host)
		assert.Equal(t, "test-client-id", location.Query().Get("client_id"))
		assert.Equal(t, docfrontURL+"/auth/callback", location.Query().Get("redirect_uri"))

		state := location.Query().Get("state")
		assert.Regexp(t, "^[0-9a-f]{64}$", state)
		assert.NotEmpty(t, b.cookie("__auth_state"))
	})

	t.Run("anonymous session summary", func(t *testing.T) {
		b := newBrowserClient(t)
		resp, body := b.do(http.MethodGet, "/auth/session", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"data":{"authenticated":false}}`, string(body))

		token := resp.Header.Get(csrfHeader)
		assert.Regexp(t, "^[0-9a-f]{64}$", token)
		assert.Equal(t, token, b.cookie("csrf_token"))

		// second call keeps the same token
		resp, _ = b.do(http.MethodGet, "/auth/session", nil)
		assert.Equal(t, token, resp.Header.Get(csrfHeader))
	})

	t.Run("full sign in", func(t *testing.T) {
		b := newBrowserClient(t)

		landing := b.signIn("alice", "/repos/acme/handbook")
		assert.Equal(t, "/repos/acme/handbook", landing)
		assert.Empty(t, b.cookie("__auth_state"), "state cookie is single use")
		assert.NotEmpty(t, b.cookie("__session"))

		resp, body := b.do(http.MethodGet, "/auth/session", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var summary struct {
			Data struct {
				Authenticated bool `json:"authenticated"`
				User          struct {
					ID    string `json:"id"`
					Login string `json:"login"`
				} `json:"user"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(body, &summary))
		assert.True(t, summary.Data.Authenticated)
		assert.Equal(t, "1001", summary.Data.User.ID)
		assert.Equal(t, "alice", summary.Data.User.Login)

		status, list := b.installations()
		require.Equal(t, http.StatusOK, status)
		require.Len(t, list.Data, 2)
		assert.Equal(t, int64(501), list.Data[0].ID)
		assert.Equal(t, "acme", list.Data[1].AccountLogin)
		assert.Equal(t, "Organization", list.Data[1].AccountType)
	})

	t.Run("missing redirect lands on default", func(t *testing.T) {
		b := newBrowserClient(t)
		assert.Equal(t, "/repos", b.signIn("alice", ""))
	})

	t.Run("logout", func(t *testing.T) {
		b := newBrowserClient(t)
		b.signIn("alice", "")
		token := b.csrfToken()

		resp, body := b.do(http.MethodPost, "/auth/logout", withCSRF(token))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"data":{"authenticated":false}}`, string(body))
		assert.Empty(t, b.cookie("__session"))

		status, _ := b.installations()
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}
