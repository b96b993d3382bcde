package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prodexhq/prodex/internal/indexer"
	"github.com/prodexhq/prodex/internal/storage"
	"github.com/prodexhq/prodex/pkg/types"
)

// EntityHandler receives entity snapshots from the product layer. A write
// records the snapshot and enqueues an embedding job; the request returns
// as soon as both are durable, long before the embedding exists.
type EntityHandler struct {
	hook     *indexer.Hook
	entities storage.EntityStore
}

// NewEntityHandler creates a new EntityHandler instance.
func NewEntityHandler(hook *indexer.Hook, entities storage.EntityStore) *EntityHandler {
	return &EntityHandler{hook: hook, entities: entities}
}

// entityRequest is the request body for PUT /api/entities.
type entityRequest struct {
	TenantID string       `json:"tenant_id"`
	Entity   types.Entity `json:"entity"`
}

// PutEntity handles PUT /api/entities — the on-write hook.
func (h *EntityHandler) PutEntity(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.TenantID == "" {
		req.TenantID = r.Header.Get("X-Tenant-ID")
	}

	if err := h.hook.EntityWritten(r.Context(), req.TenantID, &req.Entity); err != nil {
		respondError(w, statusForError(err), "failed to record entity", err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"tenant_id":   req.TenantID,
		"entity_type": string(req.Entity.Type),
		"entity_id":   req.Entity.ID,
		"status":      "queued",
	})
}

// DeleteEntity handles DELETE /api/entities/{type}/{id}.
func (h *EntityHandler) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		tenantID = r.Header.Get("X-Tenant-ID")
	}
	entityType := types.EntityType(r.PathValue("type"))
	entityID := r.PathValue("id")

	if err := h.hook.EntityDeleted(r.Context(), tenantID, entityType, entityID); err != nil {
		respondError(w, statusForError(err), "failed to delete entity", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListEntities handles GET /api/entities — the tenant's current snapshots.
func (h *EntityHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		tenantID = r.Header.Get("X-Tenant-ID")
	}
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "tenant is required", nil)
		return
	}

	entities, err := h.entities.ListEntities(r.Context(), tenantID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusInternalServerError, "failed to list entities", err)
		return
	}
	if entities == nil {
		entities = []types.Entity{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entities": entities,
		"total":    len(entities),
	})
}
