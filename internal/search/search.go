// Package search answers tenant-scoped similarity queries over the
// embedding store.
package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/prodexhq/prodex/internal/llm"
	"github.com/prodexhq/prodex/internal/storage"
	"github.com/prodexhq/prodex/pkg/types"
)

var (
	// ErrInvalidQuery is returned for an empty query string or a
	// non-positive result count.
	ErrInvalidQuery = errors.New("invalid search query")

	// ErrInvalidTenant is returned when the tenant id is empty.
	ErrInvalidTenant = errors.New("invalid tenant")
)

const defaultTopK = 5

// Service embeds query text and ranks the tenant's records by cosine
// similarity. Results never cross tenants: an unknown tenant gets an
// empty result set, not an error.
type Service struct {
	store    storage.EmbeddingStore
	embedder llm.EmbeddingGenerator
}

// New creates a search service.
func New(store storage.EmbeddingStore, embedder llm.EmbeddingGenerator) *Service {
	return &Service{store: store, embedder: embedder}
}

// Search embeds the query and returns up to k matches for the tenant,
// most similar first. k <= 0 uses the default of 5.
func (s *Service) Search(ctx context.Context, tenantID, query string, k int) ([]types.SearchResult, error) {
	if tenantID == "" {
		return nil, ErrInvalidTenant
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query text is required", ErrInvalidQuery)
	}
	if k <= 0 {
		k = defaultTopK
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.store.SearchEmbeddings(ctx, tenantID, vec, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	return results, nil
}
