// Package storage provides composable storage interfaces for the Prodex
// chat core.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. Both backends (SQLite
// and PostgreSQL) implement the full Store interface; every method is
// tenant-keyed.
package storage

import (
	"context"
	"time"

	"github.com/prodexhq/prodex/pkg/types"
)

// EmbeddingStore provides upsert, lookup, and tenant-scoped similarity
// search over embedding records.
type EmbeddingStore interface {
	// UpsertEmbedding creates or replaces the record keyed by
	// (tenant_id, entity_type, entity_id). Calling twice with the same
	// entity state yields one record whose content matches the latest call.
	UpsertEmbedding(ctx context.Context, rec *types.EmbeddingRecord) error

	// GetEmbedding retrieves a record by its key.
	// Returns ErrNotFound if the record doesn't exist.
	GetEmbedding(ctx context.Context, tenantID string, entityType types.EntityType, entityID string) (*types.EmbeddingRecord, error)

	// DeleteEmbedding removes a record by its key.
	// Returns ErrNotFound if the record doesn't exist.
	DeleteEmbedding(ctx context.Context, tenantID string, entityType types.EntityType, entityID string) error

	// SearchEmbeddings returns up to k records for the tenant ranked by
	// cosine similarity to the query vector, ties broken by most recent
	// created_at. An unknown tenant yields an empty slice, never an error.
	SearchEmbeddings(ctx context.Context, tenantID string, query []float32, k int) ([]types.SearchResult, error)

	// PurgeTenantEmbeddings removes every record for the tenant. Returns
	// the number of rows removed.
	PurgeTenantEmbeddings(ctx context.Context, tenantID string) (int, error)
}

// EntityStore persists tenant entity snapshots delivered by the on-write
// hook, so the assistant sync can rebuild a whole-tenant corpus without
// calling back into the product layer.
type EntityStore interface {
	// PutEntity creates or replaces a snapshot (upsert semantics).
	PutEntity(ctx context.Context, e *types.Entity) error

	// GetEntity retrieves a snapshot by key.
	// Returns ErrNotFound if the snapshot doesn't exist.
	GetEntity(ctx context.Context, tenantID string, entityType types.EntityType, entityID string) (*types.Entity, error)

	// ListEntities returns all snapshots for a tenant, ordered by type
	// then id so corpus generation is deterministic.
	ListEntities(ctx context.Context, tenantID string) ([]types.Entity, error)

	// DeleteEntity removes a snapshot by key.
	// Returns ErrNotFound if the snapshot doesn't exist.
	DeleteEntity(ctx context.Context, tenantID string, entityType types.EntityType, entityID string) error
}

// JobQueue is a durable at-least-once queue of embedding jobs with a
// visibility timeout. Jobs re-appear to other readers when not deleted in
// time; only a successful index deletes them.
type JobQueue interface {
	// Enqueue appends a job and returns its msg_id.
	Enqueue(ctx context.Context, job *types.QueueJob) (int64, error)

	// ReadBatch returns up to qty visible jobs, hiding each for the
	// visibility timeout and incrementing its read_count. No two readers
	// receive the same job while its timeout is in force.
	ReadBatch(ctx context.Context, visibility time.Duration, qty int) ([]types.QueueJob, error)

	// DeleteJob removes a job after successful processing.
	// Returns ErrNotFound if the job doesn't exist.
	DeleteJob(ctx context.Context, msgID int64) error

	// DeadLetterJob moves a job to the dead-letter table with its last
	// error. Returns ErrNotFound if the job doesn't exist.
	DeadLetterJob(ctx context.Context, msgID int64, lastError string) error

	// QueueDepth returns the number of jobs currently in the queue,
	// including in-flight ones.
	QueueDepth(ctx context.Context) (int, error)

	// DeadLetters returns up to limit dead jobs, newest first.
	DeadLetters(ctx context.Context, limit int) ([]types.DeadJob, error)
}

// RegistrationStore persists the single assistant registration per tenant.
type RegistrationStore interface {
	// GetRegistration returns the tenant's registration.
	// Returns ErrNotFound if the tenant has never synced.
	GetRegistration(ctx context.Context, tenantID string) (*types.AssistantRegistration, error)

	// SaveRegistration creates or replaces the tenant's registration.
	SaveRegistration(ctx context.Context, reg *types.AssistantRegistration) error

	// DeleteRegistration removes the tenant's registration.
	// Returns ErrNotFound if no registration exists.
	DeleteRegistration(ctx context.Context, tenantID string) error
}

// ThreadStore persists (tenant, user) → remote thread bindings.
type ThreadStore interface {
	// GetThread returns the binding for a (tenant, user) pair.
	// Returns ErrNotFound if the user has no thread yet.
	GetThread(ctx context.Context, tenantID, userID string) (*types.ThreadBinding, error)

	// SaveThread creates or replaces a binding.
	SaveThread(ctx context.Context, binding *types.ThreadBinding) error
}

// Store is the full chat-core storage surface implemented by each backend.
type Store interface {
	EmbeddingStore
	EntityStore
	JobQueue
	RegistrationStore
	ThreadStore

	// Close releases any resources held by the store.
	Close() error
}
