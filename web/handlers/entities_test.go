package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prodexhq/prodex/internal/storage"
	"github.com/stretchr/testify/assert"
)

func TestEntityHandler_PutEntity(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		headers        map[string]string
		expectedStatus int
	}{
		{
			name:           "valid entity is accepted and queued",
			body:           `{"tenant_id":"t1","entity":{"type":"feature","id":"f1","name":"Login","description":"OAuth login flow"}}`,
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "tenant from header",
			body:           `{"entity":{"type":"feature","id":"f1","name":"Login"}}`,
			headers:        map[string]string{"X-Tenant-ID": "t1"},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "missing tenant",
			body:           `{"entity":{"type":"feature","id":"f1","name":"Login"}}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "entity without name",
			body:           `{"tenant_id":"t1","entity":{"type":"feature","id":"f1"}}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "malformed body",
			body:           `{"tenant_id":`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			handler := NewEntityHandler(f.hook, f.store)

			req := httptest.NewRequest(http.MethodPut, "/api/entities", strings.NewReader(tt.body))
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			handler.PutEntity(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusAccepted {
				var resp map[string]string
				assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "queued", resp["status"])

				// The write is durable but asynchronous: snapshot and queue
				// entry exist, the embedding does not yet.
				depth, err := f.store.QueueDepth(context.Background())
				assert.NoError(t, err)
				assert.Equal(t, 1, depth)
				_, err = f.store.GetEmbedding(context.Background(), "t1", "feature", "f1")
				assert.ErrorIs(t, err, storage.ErrNotFound)
			}
		})
	}
}

func TestEntityHandler_DeleteEntity(t *testing.T) {
	f := newFixture(t)
	f.indexEntity(t, "t1", "f1", "Login", "OAuth login flow")
	handler := NewEntityHandler(f.hook, f.store)

	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/entities/{type}/{id}", handler.DeleteEntity)

	req := httptest.NewRequest(http.MethodDelete, "/api/entities/feature/f1?tenant=t1", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, err := f.store.GetEntity(context.Background(), "t1", "feature", "f1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.store.GetEmbedding(context.Background(), "t1", "feature", "f1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Deleting again is a no-op, not an error.
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/entities/feature/f1?tenant=t1", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestEntityHandler_ListEntities(t *testing.T) {
	f := newFixture(t)
	f.indexEntity(t, "t1", "f1", "Login", "OAuth login flow")
	f.indexEntity(t, "t1", "f2", "Billing", "invoice export")
	handler := NewEntityHandler(f.hook, f.store)

	w := httptest.NewRecorder()
	handler.ListEntities(w, httptest.NewRequest(http.MethodGet, "/api/entities?tenant=t1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp["total"])

	// Unknown tenant yields an empty list.
	w = httptest.NewRecorder()
	handler.ListEntities(w, httptest.NewRequest(http.MethodGet, "/api/entities?tenant=t2", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(0), resp["total"])

	// Missing tenant is rejected.
	w = httptest.NewRecorder()
	handler.ListEntities(w, httptest.NewRequest(http.MethodGet, "/api/entities", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
