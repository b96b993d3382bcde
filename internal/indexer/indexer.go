// Package indexer turns entity snapshots into embedding records. It owns
// the idempotent upsert contract: one live record per
// (tenant_id, entity_type, entity_id), re-indexing always updates in place.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prodexhq/prodex/internal/corpus"
	"github.com/prodexhq/prodex/internal/llm"
	"github.com/prodexhq/prodex/internal/storage"
	"github.com/prodexhq/prodex/pkg/types"
)

var (
	// ErrInvalidTenant is returned when the tenant id is empty. Never
	// retried; surfaces immediately to the caller.
	ErrInvalidTenant = errors.New("invalid tenant")

	// ErrInvalidEntity is returned when the entity lacks a stable id or
	// name. Never retried.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrEmbeddingShape is returned when the provider's vector length
	// does not match the configured dimension.
	ErrEmbeddingShape = errors.New("embedding shape mismatch")
)

// Indexer produces embeddings and upserts them into the tenant-scoped store.
type Indexer struct {
	store     storage.EmbeddingStore
	embedder  llm.EmbeddingGenerator
	dimension int
}

// New creates an Indexer. dimension is the required vector length; provider
// responses of any other length fail with ErrEmbeddingShape.
func New(store storage.EmbeddingStore, embedder llm.EmbeddingGenerator, dimension int) *Indexer {
	return &Indexer{
		store:     store,
		embedder:  embedder,
		dimension: dimension,
	}
}

// IndexEntity builds the entity's text blob, computes its embedding, and
// upserts the record. Calling twice with the same entity state yields one
// record whose content matches the latest call.
func (ix *Indexer) IndexEntity(ctx context.Context, tenantID string, e *types.Entity) (*types.EmbeddingRecord, error) {
	if tenantID == "" {
		return nil, ErrInvalidTenant
	}
	if !e.Valid() {
		return nil, fmt.Errorf("%w: entity must have a stable id and name", ErrInvalidEntity)
	}

	content := corpus.BuildEntityText(e)
	return ix.IndexContent(ctx, tenantID, e.Type, e.ID, content, map[string]string{"name": e.Name})
}

// IndexContent embeds a pre-built text blob and upserts the record. The
// queue worker uses this path: jobs carry their content from enqueue time.
func (ix *Indexer) IndexContent(ctx context.Context, tenantID string, entityType types.EntityType, entityID, content string, metadata map[string]string) (*types.EmbeddingRecord, error) {
	if tenantID == "" {
		return nil, ErrInvalidTenant
	}
	if entityID == "" || entityType == "" {
		return nil, fmt.Errorf("%w: entity type and id are required", ErrInvalidEntity)
	}

	vec, err := ix.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("failed to embed entity %s/%s: %w", entityType, entityID, err)
	}
	if len(vec) != ix.dimension {
		return nil, fmt.Errorf("%w: provider returned %d values, expected %d",
			ErrEmbeddingShape, len(vec), ix.dimension)
	}

	rec := &types.EmbeddingRecord{
		TenantID:   tenantID,
		EntityType: entityType,
		EntityID:   entityID,
		Content:    content,
		Embedding:  vec,
		Dimension:  ix.dimension,
		Model:      ix.embedder.GetModel(),
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	if err := ix.store.UpsertEmbedding(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store embedding for %s/%s: %w", entityType, entityID, err)
	}

	return rec, nil
}

// RemoveEntity deletes the embedding record for a deleted source entity.
// A missing record is not an error; deletion is idempotent.
func (ix *Indexer) RemoveEntity(ctx context.Context, tenantID string, entityType types.EntityType, entityID string) error {
	if tenantID == "" {
		return ErrInvalidTenant
	}

	err := ix.store.DeleteEmbedding(ctx, tenantID, entityType, entityID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to delete embedding for %s/%s: %w", entityType, entityID, err)
	}
	return nil
}
