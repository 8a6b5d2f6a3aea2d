package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgellow/docfront/internal/cookie"
	"github.com/dgellow/docfront/internal/crypto"
	"github.com/dgellow/docfront/internal/csrf"
	"github.com/dgellow/docfront/internal/idp"
	"github.com/dgellow/docfront/internal/metrics"
	"github.com/dgellow/docfront/internal/session"
	"github.com/dgellow/docfront/internal/storage"
	"github.com/dgellow/docfront/internal/testutil"
	"github.com/stretchr/testify/require"
)

// countingStore records how often installation rows are read
type countingStore struct {
	*storage.MemoryStorage
	reads   atomic.Int32
	listErr error
}

func (s *countingStore) ListInstallationsByOwner(ctx context.Context, ownerID string) ([]storage.Installation, error) {
	s.reads.Add(1)
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.MemoryStorage.ListInstallationsByOwner(ctx, ownerID)
}

func (s *countingStore) GetInstallation(ctx context.Context, ownerID string, id int64) (*storage.Installation, error) {
	s.reads.Add(1)
	return s.MemoryStorage.GetInstallation(ctx, ownerID, id)
}

var errStoreDown = errors.New("dial tcp 10.0.0.5:5432: connection refused")

type testDeps struct {
	provider *testutil.FakeProvider
	store    *countingStore
	scoper   *storage.Scoper
	sessions *session.Accessor
	csrf     *csrf.Manager
	metrics  *metrics.Metrics
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()
	sealer, err := crypto.NewSealer([]byte("test-session-key-32-bytes-long!!"))
	require.NoError(t, err)

	store := &countingStore{MemoryStorage: storage.NewMemoryStorage()}
	m := metrics.New()
	return &testDeps{
		provider: testutil.NewFakeProvider(
			&idp.Identity{ProviderType: "github", Subject: "583231", Login: "octocat", Name: "The Octocat"},
		),
		store:    store,
		scoper:   storage.NewScoper(store, storage.WithViolationHook(m.IncrementScopeViolation)),
		sessions: session.NewAccessor(sealer, 24*time.Hour),
		csrf:     csrf.NewManager(0),
		metrics:  m,
	}
}

func (d *testDeps) authHandlers() *AuthHandlers {
	return NewAuthHandlers(d.provider, "/repos", d.sessions, d.csrf, d.scoper, d.metrics)
}

// sessionCookie seals a session for principal id
func (d *testDeps) sessionCookie(t *testing.T, id, login string) *http.Cookie {
	t.Helper()
	c, err := d.sessions.Issue(session.Principal{ID: id, Login: login}, "github")
	require.NoError(t, err)
	return c
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func csrfCookie(value string) *http.Cookie {
	return &http.Cookie{Name: cookie.CSRFCookie, Value: value}
}
