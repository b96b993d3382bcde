package types

import "time"

// EmbeddingRecord is one indexed entity in the tenant-scoped embedding store.
// The unique key is (TenantID, EntityType, EntityID); re-indexing updates the
// row in place, it never duplicates.
type EmbeddingRecord struct {
	TenantID   string            `json:"tenant_id"`
	EntityType EntityType        `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Content    string            `json:"content"`
	Embedding  []float32         `json:"embedding,omitempty"`
	Dimension  int               `json:"dimension"`
	Model      string            `json:"model"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// SearchResult is one ranked hit from a tenant-scoped vector search.
type SearchResult struct {
	TenantID   string            `json:"tenant_id"`
	EntityType EntityType        `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`

	// Similarity is the cosine similarity to the query vector, in [-1, 1].
	Similarity float64 `json:"similarity"`

	CreatedAt time.Time `json:"created_at"`
}
