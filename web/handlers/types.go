package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/prodexhq/prodex/internal/assistant"
	"github.com/prodexhq/prodex/internal/chat"
	"github.com/prodexhq/prodex/internal/indexer"
	"github.com/prodexhq/prodex/internal/llm"
	"github.com/prodexhq/prodex/internal/search"
	"github.com/prodexhq/prodex/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ChatRequest is the request body for POST /api/chat.
type ChatRequest struct {
	TenantID string         `json:"tenant_id"`
	UserID   string         `json:"user_id,omitempty"`
	Message  string         `json:"message"`
	Mode     types.ChatMode `json:"mode,omitempty"`
}

// SearchResponse is the response format for GET /api/search.
type SearchResponse struct {
	Results []types.SearchResult `json:"results"`
	Total   int                  `json:"total"`
	Query   string               `json:"query"`
}

// QueueStatsResponse is the response format for GET /api/queue.
type QueueStatsResponse struct {
	Depth       int             `json:"depth"`
	DeadLetters []types.DeadJob `json:"dead_letters"`
}

// DrainResponse is the response format for POST /api/queue/drain.
type DrainResponse struct {
	Processed    int `json:"processed"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"dead_lettered"`
}

// SyncResponse is the response format for POST /api/assistants/sync.
type SyncResponse struct {
	TenantID    string `json:"tenant_id"`
	AssistantID string `json:"assistant_id"`
	LastSynced  string `json:"last_synced"`
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent; log and move on.
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}

	respondJSON(w, statusCode, errResp)
}

// statusForError maps internal error kinds to HTTP status codes: validation
// errors to 400, busy threads to 429, an open provider circuit to 503,
// exhausted polls to 504, everything else to 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, chat.ErrInvalidRequest),
		errors.Is(err, indexer.ErrInvalidTenant),
		errors.Is(err, indexer.ErrInvalidEntity),
		errors.Is(err, search.ErrInvalidTenant),
		errors.Is(err, search.ErrInvalidQuery),
		errors.Is(err, assistant.ErrEmptyCorpus):
		return http.StatusBadRequest
	case errors.Is(err, assistant.ErrRunAlreadyActive):
		return http.StatusTooManyRequests
	case errors.Is(err, llm.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, assistant.ErrRunTimeout),
		errors.Is(err, assistant.ErrIndexingTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
