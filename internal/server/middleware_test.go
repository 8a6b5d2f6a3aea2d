package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgellow/docfront/internal/crypto"
	"github.com/dgellow/docfront/internal/csrf"
	"github.com/dgellow/docfront/internal/log"
	"github.com/dgellow/docfront/internal/session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCorsMiddleware(t *testing.T) {
	tests := []struct {
		name              string
		allowedOrigins    []string
		requestOrigin     string
		expectAllowOrigin string
		expectCredentials bool
	}{
		{
			name:              "allowed origin",
			allowedOrigins:    []string{"https://docs.example.com", "https://example.com"},
			requestOrigin:     "https://docs.example.com",
			expectAllowOrigin: "https://docs.example.com",
			expectCredentials: true,
		},
		{
			name:           "disallowed origin",
			allowedOrigins: []string{"https://docs.example.com"},
			requestOrigin:  "https://evil.com",
		},
		{
			name:           "no origin header",
			allowedOrigins: []string{"https://docs.example.com"},
		},
		{
			name:          "no allowed origins",
			requestOrigin: "https://docs.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewCORSMiddleware(tt.allowedOrigins)(okHandler)

			req := httptest.NewRequest(http.MethodGet, "/installations", nil)
			if tt.requestOrigin != "" {
				req.Header.Set("Origin", tt.requestOrigin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectAllowOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.expectCredentials {
				assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
			} else {
				assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
			}
			assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), csrf.HeaderName)
			assert.Equal(t, csrf.HeaderName, rec.Header().Get("Access-Control-Expose-Headers"))
		})
	}

	t.Run("preflight short circuits", func(t *testing.T) {
		called := false
		handler := NewCORSMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/installations/1", nil))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.False(t, called)
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := NewRequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = log.RequestID(r.Context())
	}))

	t.Run("mints an id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		_, err := uuid.Parse(seen)
		require.NoError(t, err)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("keeps a valid inbound id", func(t *testing.T) {
		inbound := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, inbound)
		handler.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, inbound, seen)
	})

	t.Run("replaces a malformed inbound id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "<script>")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		assert.NotEqual(t, "<script>", seen)
	})
}

func TestRecoverMiddleware(t *testing.T) {
	handler := NewRecoverMiddleware("test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decodeError(t, rec).Error)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestLoggerMiddlewareRecordsRoute(t *testing.T) {
	d := newTestDeps(t)
	mux := http.NewServeMux()
	mux.Handle("/health", NewHealthHandler())
	handler := NewLoggerMiddleware("test", d.metrics)(mux)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	metricsRec := httptest.NewRecorder()
	d.metrics.Handler().ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metricsRec.Body.String(), `route="/health"`)
}

func TestSessionMiddleware(t *testing.T) {
	d := newTestDeps(t)
	var got session.Principal
	handler := NewSessionMiddleware(d.sessions, d.metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = session.PrincipalFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/installations", nil)
	req.AddCookie(d.sessionCookie(t, "u1", "alice"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", got.ID)
}

func TestCSRFMiddleware(t *testing.T) {
	d := newTestDeps(t)
	handler := NewCSRFMiddleware(d.csrf, d.metrics)(okHandler)
	token := crypto.GenerateHexToken(crypto.CSRFTokenBytes)

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(method, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code, method)
	}

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		req := httptest.NewRequest(method, "/", nil)
		req.AddCookie(csrfCookie(token))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, method)

		req = httptest.NewRequest(method, "/", nil)
		req.AddCookie(csrfCookie(token))
		req.Header.Set(csrf.HeaderName, token)
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, method)
	}

	t.Run("header without cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(csrf.HeaderName, token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
