package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prodexhq/prodex/internal/assistant"
	"github.com/prodexhq/prodex/internal/chat"
	"github.com/prodexhq/prodex/internal/indexer"
	"github.com/prodexhq/prodex/internal/llm"
	"github.com/prodexhq/prodex/internal/search"
	"github.com/stretchr/testify/assert"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"invalid chat request", chat.ErrInvalidRequest, http.StatusBadRequest},
		{"invalid tenant", indexer.ErrInvalidTenant, http.StatusBadRequest},
		{"invalid entity", indexer.ErrInvalidEntity, http.StatusBadRequest},
		{"invalid search tenant", search.ErrInvalidTenant, http.StatusBadRequest},
		{"invalid query", search.ErrInvalidQuery, http.StatusBadRequest},
		{"empty corpus", assistant.ErrEmptyCorpus, http.StatusBadRequest},
		{"run already active", assistant.ErrRunAlreadyActive, http.StatusTooManyRequests},
		{"circuit open", llm.ErrCircuitOpen, http.StatusServiceUnavailable},
		{"wrapped circuit open", fmt.Errorf("assistants circuit breaker open: %w", llm.ErrCircuitOpen), http.StatusServiceUnavailable},
		{"run timeout", assistant.ErrRunTimeout, http.StatusGatewayTimeout},
		{"indexing timeout", assistant.ErrIndexingTimeout, http.StatusGatewayTimeout},
		{"wrapped sentinel", fmt.Errorf("sync: %w", assistant.ErrIndexingTimeout), http.StatusGatewayTimeout},
		{"unknown error", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, statusForError(tt.err))
		})
	}
}

func TestRespondError(t *testing.T) {
	w := httptest.NewRecorder()
	respondError(w, http.StatusBadRequest, "bad input", errors.New("field x missing"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "bad input", resp.Error)
	assert.Equal(t, "Bad Request", resp.Code)
	assert.Equal(t, "field x missing", resp.Details["error"])
}

func TestRespondErrorWithoutCause(t *testing.T) {
	w := httptest.NewRecorder()
	respondError(w, http.StatusInternalServerError, "something broke", nil)

	var resp ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.Details)
}
