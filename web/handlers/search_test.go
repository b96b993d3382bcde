package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchHandler_Search(t *testing.T) {
	tests := []struct {
		name           string
		setup          func(f *fixture)
		target         string
		headers        map[string]string
		expectedStatus int
		validateBody   func(*testing.T, []byte)
	}{
		{
			name: "successful search ranks login content first",
			setup: func(f *fixture) {
				f.indexEntity(t, "t1", "f1", "Login", "OAuth login flow")
				f.indexEntity(t, "t1", "f2", "Billing", "invoice export")
			},
			target:         "/api/search?tenant=t1&q=how+does+login+work",
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body []byte) {
				var resp SearchResponse
				assert.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, 2, resp.Total)
				assert.Equal(t, "f1", resp.Results[0].EntityID)
			},
		},
		{
			name:           "tenant from header",
			setup:          func(f *fixture) { f.indexEntity(t, "t1", "f1", "Login", "OAuth login flow") },
			target:         "/api/search?q=login",
			headers:        map[string]string{"X-Tenant-ID": "t1"},
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body []byte) {
				var resp SearchResponse
				assert.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, 1, resp.Total)
			},
		},
		{
			name:           "no cross-tenant leakage",
			setup:          func(f *fixture) { f.indexEntity(t, "t1", "f1", "Login", "OAuth login flow") },
			target:         "/api/search?tenant=t2&q=login",
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body []byte) {
				var resp SearchResponse
				assert.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, 0, resp.Total)
			},
		},
		{
			name:           "missing query",
			target:         "/api/search?tenant=t1",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing tenant",
			target:         "/api/search?q=login",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "non-integer k",
			target:         "/api/search?tenant=t1&q=login&k=lots",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			handler := NewSearchHandler(f.searcher)

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			handler.Search(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.validateBody != nil {
				tt.validateBody(t, w.Body.Bytes())
			}
		})
	}
}
