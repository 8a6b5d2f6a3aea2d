package server

import (
	"errors"
	"net/http"

	"github.com/dgellow/docfront/internal/autherr"
	jsonwriter "github.com/dgellow/docfront/internal/json"
	"github.com/dgellow/docfront/internal/log"
	"github.com/dgellow/docfront/internal/metrics"
)

const genericInternalMessage = "Internal server error"

// writeError maps a classified failure onto its HTTP response. Internal
// causes are logged and never echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error, m *metrics.Metrics) {
	kind := autherr.KindOf(err)

	message := ""
	var authErr *autherr.Error
	if errors.As(err, &authErr) {
		message = authErr.Message
	}

	if m != nil {
		m.IncrementAuthFailure(kind.String())
	}

	fields := map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
		"kind":   kind.String(),
	}

	switch kind {
	case autherr.KindAuthentication:
		log.LogDebugWithFields("server", "Rejected unauthenticated request", fields)
		if message == "" {
			message = "Authentication required"
		}
		jsonwriter.WriteUnauthorized(w, message)
	case autherr.KindInvalidCSRF:
		if m != nil {
			m.IncrementCSRFRejection()
		}
		log.LogWarnCtx(r.Context(), "server", "Rejected request with invalid CSRF token", fields)
		if message == "" {
			message = "Invalid CSRF token"
		}
		jsonwriter.WriteInvalidCSRF(w, message)
	case autherr.KindInvalidState:
		log.LogWarnCtx(r.Context(), "server", "Rejected login callback with invalid state", fields)
		if message == "" {
			message = "Invalid login state"
		}
		jsonwriter.WriteInvalidState(w, message)
	case autherr.KindInternal:
		fields["error"] = err.Error()
		log.LogErrorCtx(r.Context(), "server", "Request failed", fields)
		jsonwriter.WriteInternalServerError(w, genericInternalMessage)
	default:
		fields["error"] = err.Error()
		log.LogErrorCtx(r.Context(), "server", "Request failed with unclassified error", fields)
		jsonwriter.WriteInternalServerError(w, genericInternalMessage)
	}
}
