package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/prodexhq/prodex/internal/chat"
)

// ChatHandler handles the chat endpoint.
type ChatHandler struct {
	orchestrator *chat.Orchestrator
}

// NewChatHandler creates a new ChatHandler instance.
func NewChatHandler(orchestrator *chat.Orchestrator) *ChatHandler {
	return &ChatHandler{orchestrator: orchestrator}
}

// Chat handles POST /api/chat.
//
// Request body: {tenant_id, user_id?, message, mode?}. Mode "rag" (default)
// answers from local retrieval; "managed" delegates to the tenant's hosted
// assistant and requires user_id. Internal errors are translated to short
// user-safe messages; provider payloads never reach the response.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	reply, err := h.orchestrator.Respond(r.Context(), req.TenantID, req.UserID, req.Message, req.Mode)
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			log.Printf("ERROR: chat request for tenant %s failed: %v", req.TenantID, err)
		}
		respondError(w, status, chat.UserMessage(err), nil)
		return
	}

	respondJSON(w, http.StatusOK, reply)
}
