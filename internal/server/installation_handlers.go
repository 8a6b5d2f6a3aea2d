package server

import (
	"errors"
	"net/http"
	"strconv"

	jsonwriter "github.com/dgellow/docfront/internal/json"
	"github.com/dgellow/docfront/internal/log"
	"github.com/dgellow/docfront/internal/metrics"
	"github.com/dgellow/docfront/internal/storage"
)

// InstallationHandlers serves the signed-in user's installations. Every
// handler sits behind the session middleware and reads through an accessor
// bound to the session principal.
type InstallationHandlers struct {
	scoper  *storage.Scoper
	metrics *metrics.Metrics
}

// NewInstallationHandlers creates installation handlers
func NewInstallationHandlers(scoper *storage.Scoper, m *metrics.Metrics) *InstallationHandlers {
	return &InstallationHandlers{scoper: scoper, metrics: m}
}

// ListHandler handles GET /installations
func (h *InstallationHandlers) ListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonwriter.WriteMethodNotAllowed(w, "Method not allowed")
		return
	}

	principal, ok := principalOrReject(w, r, h.metrics)
	if !ok {
		return
	}

	installations, err := h.scoper.For(principal.ID).FindAllInstallations(r.Context())
	if err != nil {
		writeError(w, r, err, h.metrics)
		return
	}

	_ = jsonwriter.WriteData(w, installations)
}

// DeleteHandler handles DELETE /installations/{id}
func (h *InstallationHandlers) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		jsonwriter.WriteMethodNotAllowed(w, "Method not allowed")
		return
	}

	principal, ok := principalOrReject(w, r, h.metrics)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		jsonwriter.WriteBadRequest(w, "Invalid installation id")
		return
	}

	scoped := h.scoper.For(principal.ID)
	inst, err := scoped.FindInstallation(r.Context(), id)
	if err == nil {
		err = scoped.RemoveInstallation(r.Context(), id)
	}
	if errors.Is(err, storage.ErrInstallationNotFound) {
		jsonwriter.WriteNotFound(w, "Installation not found")
		return
	}
	if err != nil {
		writeError(w, r, err, h.metrics)
		return
	}

	log.LogInfoCtx(r.Context(), "installations", "Installation removed", map[string]any{
		"user_id":         principal.ID,
		"installation_id": id,
		"account":         inst.AccountLogin,
	})
	w.WriteHeader(http.StatusNoContent)
}
