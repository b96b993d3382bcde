package indexer

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/prodexhq/prodex/internal/corpus"
	"github.com/prodexhq/prodex/internal/storage"
	"github.com/prodexhq/prodex/pkg/types"
)

// Hook is the write-path bridge between the product layer and the
// embedding pipeline. Entity writes record a snapshot and enqueue an
// embedding job; deletes drop both the snapshot and the live embedding.
// Queue failures are logged, never surfaced, so indexing can never fail
// a product write.
type Hook struct {
	entities storage.EntityStore
	queue    storage.JobQueue
	indexer  *Indexer
}

// NewHook creates the write-path hook.
func NewHook(entities storage.EntityStore, queue storage.JobQueue, ix *Indexer) *Hook {
	return &Hook{entities: entities, queue: queue, indexer: ix}
}

// EntityWritten records the entity snapshot and enqueues an embedding job
// with the text blob captured at write time. Returns ErrInvalidTenant or
// ErrInvalidEntity for malformed input; queue trouble is logged only.
func (h *Hook) EntityWritten(ctx context.Context, tenantID string, e *types.Entity) error {
	if tenantID == "" {
		return ErrInvalidTenant
	}
	if !e.Valid() {
		return ErrInvalidEntity
	}

	snapshot := *e
	snapshot.TenantID = tenantID
	if snapshot.UpdatedAt.IsZero() {
		snapshot.UpdatedAt = time.Now().UTC()
	}
	if err := h.entities.PutEntity(ctx, &snapshot); err != nil {
		return err
	}

	job := &types.QueueJob{
		TenantID:   tenantID,
		EntityType: e.Type,
		EntityID:   e.ID,
		Content:    corpus.BuildEntityText(e),
		EnqueuedAt: time.Now().UTC(),
	}
	if _, err := h.queue.Enqueue(ctx, job); err != nil {
		log.Printf("WARNING: failed to enqueue embedding job for %s/%s: %v", e.Type, e.ID, err)
	}
	return nil
}

// EntityDeleted drops the snapshot and the live embedding. Both deletes
// are idempotent.
func (h *Hook) EntityDeleted(ctx context.Context, tenantID string, entityType types.EntityType, entityID string) error {
	if tenantID == "" {
		return ErrInvalidTenant
	}
	if entityType == "" || entityID == "" {
		return ErrInvalidEntity
	}

	if err := h.entities.DeleteEntity(ctx, tenantID, entityType, entityID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return h.indexer.RemoveEntity(ctx, tenantID, entityType, entityID)
}
