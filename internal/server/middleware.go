package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/docfront/internal/autherr"
	"github.com/dgellow/docfront/internal/cookie"
	"github.com/dgellow/docfront/internal/csrf"
	jsonwriter "github.com/dgellow/docfront/internal/json"
	"github.com/dgellow/docfront/internal/log"
	"github.com/dgellow/docfront/internal/metrics"
	"github.com/dgellow/docfront/internal/session"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

// MiddlewareFunc is a function that wraps an http.Handler
type MiddlewareFunc func(http.Handler) http.Handler

// ChainMiddleware chains multiple middleware functions. The last one listed
// runs first.
func ChainMiddleware(h http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	for _, mw := range middlewares {
		h = mw(h)
	}
	return h
}

// NewCORSMiddleware adds CORS headers to responses
func NewCORSMiddleware(allowedOrigins []string) MiddlewareFunc {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	allowHeaders := strings.Join([]string{"Content-Type", csrf.HeaderName, RequestIDHeader}, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Credentials are only allowed for listed origins; never with a wildcard
			if origin != "" && allowedMap[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
			w.Header().Set("Access-Control-Expose-Headers", csrf.HeaderName)
			w.Header().Set("Access-Control-Max-Age", "3600")

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriterDelegator wraps http.ResponseWriter to capture status and bytes written
// while properly delegating all optional interfaces through Unwrap
type responseWriterDelegator struct {
	http.ResponseWriter
	status      int
	written     int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriterDelegator {
	return &responseWriterDelegator{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

func (r *responseWriterDelegator) Status() int {
	return r.status
}

func (r *responseWriterDelegator) BytesWritten() int {
	return r.written
}

func (r *responseWriterDelegator) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseWriterDelegator) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter for interface detection
func (r *responseWriterDelegator) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

var _ http.ResponseWriter = (*responseWriterDelegator)(nil)

// NewRequestIDMiddleware tags each request with an id, reusing a well-formed
// inbound X-Request-ID and minting a UUID otherwise.
func NewRequestIDMiddleware() MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(log.WithRequestID(r.Context(), id)))
		})
	}
}

// NewLoggerMiddleware adds request/response logging and duration metrics
func NewLoggerMiddleware(prefix string, m *metrics.Metrics) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			// Query strings are not logged; they carry OAuth codes and state
			log.LogInfoCtx(r.Context(), prefix, "request", map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes":       wrapped.BytesWritten(),
				"remote_addr": r.RemoteAddr,
			})

			if m != nil {
				route := r.Pattern
				if route == "" {
					route = "unmatched"
				}
				m.ObserveRequest(route, wrapped.Status(), start)
			}
		})
	}
}

// NewRecoverMiddleware recovers from panics
func NewRecoverMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.LogErrorCtx(r.Context(), prefix, "Recovered from panic", map[string]any{
						"panic": err,
						"path":  r.URL.Path,
					})
					jsonwriter.WriteInternalServerError(w, genericInternalMessage)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// NewSessionMiddleware rejects requests without a valid session before the
// handler runs, and hands the principal to the handler through the context.
func NewSessionMiddleware(accessor *session.Accessor, m *metrics.Metrics) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := accessor.Require(cookie.FromRequest(r))
			if err != nil {
				writeError(w, r, err, m)
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithPrincipal(r.Context(), principal)))
		})
	}
}

// NewCSRFMiddleware enforces the double-submit check on state-changing methods
func NewCSRFMiddleware(manager *csrf.Manager, m *metrics.Metrics) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if csrf.IsSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			if err := manager.Verify(cookie.FromRequest(r), r.Header.Get(csrf.HeaderName)); err != nil {
				writeError(w, r, err, m)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// principalOrReject fetches the principal placed by the session middleware
func principalOrReject(w http.ResponseWriter, r *http.Request, m *metrics.Metrics) (session.Principal, bool) {
	principal, ok := session.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, r, autherr.Authentication("Authentication required", nil), m)
		return session.Principal{}, false
	}
	return principal, true
}
