package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prodexhq/prodex/internal/assistant"
	"github.com/prodexhq/prodex/internal/storage"
)

// AssistantHandler exposes the per-tenant assistant lifecycle: manual
// resync, invalidation, and registration inspection.
type AssistantHandler struct {
	manager       *assistant.Manager
	registrations storage.RegistrationStore
	hub           *WebSocketHub
}

// NewAssistantHandler creates a new AssistantHandler instance.
func NewAssistantHandler(manager *assistant.Manager, registrations storage.RegistrationStore, hub *WebSocketHub) *AssistantHandler {
	return &AssistantHandler{manager: manager, registrations: registrations, hub: hub}
}

// syncRequest is the request body for POST /api/assistants/sync.
type syncRequest struct {
	TenantID string `json:"tenant_id"`
	Force    bool   `json:"force,omitempty"`
}

// Sync handles POST /api/assistants/sync — manual resync for a tenant.
// With force set, the registration is invalidated first so the sync runs
// even when the TTL has not expired.
func (h *AssistantHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.TenantID == "" {
		respondError(w, http.StatusBadRequest, "tenant_id is required", nil)
		return
	}

	if req.Force {
		if err := h.manager.Invalidate(r.Context(), req.TenantID); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to invalidate registration", err)
			return
		}
	}

	reg, err := h.manager.EnsureSynced(r.Context(), req.TenantID)
	if err != nil {
		respondError(w, statusForError(err), "sync failed", err)
		return
	}

	if h.hub != nil {
		h.hub.BroadcastSynced(req.TenantID)
	}

	respondJSON(w, http.StatusOK, SyncResponse{
		TenantID:    reg.TenantID,
		AssistantID: reg.AssistantID,
		LastSynced:  reg.LastSynced.Format(time.RFC3339),
	})
}

// GetRegistration handles GET /api/assistants/{tenant} — registration
// inspection for operators.
func (h *AssistantHandler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "tenant is required", nil)
		return
	}

	reg, err := h.registrations.GetRegistration(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "tenant has never synced", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load registration", err)
		return
	}

	respondJSON(w, http.StatusOK, reg)
}
