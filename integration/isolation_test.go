package integration

import (
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runIsolationScenario(t *testing.T) {
	alice := newBrowserClient(t)
	bob := newBrowserClient(t)
	alice.signIn("alice", "")
	bob.signIn("bob", "")

	status, aliceList := alice.installations()
	require.Equal(t, http.StatusOK, status)
	status, bobList := bob.installations()
	require.Equal(t, http.StatusOK, status)

	require.Len(t, aliceList.Data, 2)
	require.Len(t, bobList.Data, 1)
	assert.Equal(t, int64(601), bobList.Data[0].ID)
	for _, inst := range aliceList.Data {
		assert.NotEqual(t, int64(601), inst.ID, "alice must never see bob's installation")
	}

	t.Run("cannot delete another user's installation", func(t *testing.T) {
		resp, body := alice.do(http.MethodDelete, installationPath(601), withCSRF(alice.csrfToken()))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Contains(t, string(body), "not_found")

		status, bobList := bob.installations()
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, bobList.Data, 1)
	})

	t.Run("csrf token of another user is rejected", func(t *testing.T) {
		resp, _ := alice.do(http.MethodDelete, installationPath(501), withCSRF(bob.csrfToken()))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("owner can delete", func(t *testing.T) {
		resp, _ := alice.do(http.MethodDelete, installationPath(502), withCSRF(alice.csrfToken()))
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		status, list := alice.installations()
		require.Equal(t, http.StatusOK, status)
		require.Len(t, list.Data, 1)
		assert.Equal(t, int64(501), list.Data[0].ID)
	})

	t.Run("sign in again resyncs from GitHub", func(t *testing.T) {
		alice.signIn("alice", "")
		status, list := alice.installations()
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, list.Data, 2)
	})
}

func TestUserIsolation(t *testing.T) {
	startDocfront(t, writeTestConfig(t, buildTestConfig(nil)))
	waitForDocfront(t)

	runIsolationScenario(t)
}

// TestUserIsolationPostgres runs the same scenario against Postgres storage.
// Set DOCFRONT_TEST_POSTGRES_DSN to a disposable database to enable it.
func TestUserIsolationPostgres(t *testing.T) {
	dsn := os.Getenv("DOCFRONT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DOCFRONT_TEST_POSTGRES_DSN not set")
	}

	cfg := buildTestConfig(map[string]any{
		"kind":        "postgres",
		"postgresDsn": map[string]string{"$env": "DOCFRONT_TEST_POSTGRES_DSN"},
	})
	startDocfront(t, writeTestConfig(t, cfg))
	waitForDocfront(t)

	runIsolationScenario(t)
}
