package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/prodexhq/prodex/internal/storage"
	"github.com/prodexhq/prodex/pkg/types"
)

// Store implements storage.Store using PostgreSQL with pgvector.
type Store struct {
	db *sql.DB
}

// Compile-time assertion.
var _ storage.Store = (*Store)(nil)

// New opens a PostgreSQL chat-core store with the given DSN and applies the
// schema. The pgvector extension must be installable by the connecting role.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// GetDB exposes the underlying connection for handlers that need raw access.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// EmbeddingStore
// ---------------------------------------------------------------------------

// UpsertEmbedding creates or replaces the record keyed by
// (tenant_id, entity_type, entity_id).
func (s *Store) UpsertEmbedding(ctx context.Context, rec *types.EmbeddingRecord) error {
	if rec == nil || rec.TenantID == "" || rec.EntityID == "" || rec.EntityType == "" {
		return fmt.Errorf("%w: tenant, entity type, and entity id are required", storage.ErrInvalidInput)
	}
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}
	if len(rec.Embedding) != rec.Dimension {
		return fmt.Errorf("%w: embedding length (%d) does not match dimension (%d)",
			storage.ErrInvalidInput, len(rec.Embedding), rec.Dimension)
	}

	metadataJSON, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO embeddings (tenant_id, entity_type, entity_id, content, embedding, dimension, model, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (tenant_id, entity_type, entity_id) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			model = excluded.model,
			metadata = excluded.metadata,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.TenantID, string(rec.EntityType), rec.EntityID, rec.Content,
		pgvector.NewVector(rec.Embedding), rec.Dimension, rec.Model, metadataJSON)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert embedding: %w", err)
	}

	return nil
}

// GetEmbedding retrieves a record by its key.
func (s *Store) GetEmbedding(ctx context.Context, tenantID string, entityType types.EntityType, entityID string) (*types.EmbeddingRecord, error) {
	if tenantID == "" || entityID == "" {
		return nil, fmt.Errorf("%w: tenant and entity id are required", storage.ErrInvalidInput)
	}

	var rec types.EmbeddingRecord
	var et string
	var vec pgvector.Vector
	var metadataJSON sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, entity_type, entity_id, content, embedding, dimension, model, metadata, created_at, updated_at
		FROM embeddings
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
	`, tenantID, string(entityType), entityID).Scan(
		&rec.TenantID, &et, &rec.EntityID, &rec.Content,
		&vec, &rec.Dimension, &rec.Model, &metadataJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to get embedding: %w", err)
	}

	rec.EntityType = types.EntityType(et)
	rec.Embedding = vec.Slice()
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal metadata: %w", err)
		}
	}

	return &rec, nil
}

// DeleteEmbedding removes a record by its key.
func (s *Store) DeleteEmbedding(ctx context.Context, tenantID string, entityType types.EntityType, entityID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM embeddings WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3`,
		tenantID, string(entityType), entityID)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete embedding: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SearchEmbeddings ranks the tenant's records by pgvector cosine distance.
// The tenant filter is applied before ranking; an unknown tenant simply
// matches no rows and yields an empty slice.
func (s *Store) SearchEmbeddings(ctx context.Context, tenantID string, query []float32, k int) ([]types.SearchResult, error) {
	if tenantID == "" || len(query) == 0 || k <= 0 {
		return []types.SearchResult{}, nil
	}

	// 1 - cosine distance = cosine similarity.
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, entity_type, entity_id, content, metadata, created_at,
		       1 - (embedding <=> $2) AS similarity
		FROM embeddings
		WHERE tenant_id = $1
		ORDER BY embedding <=> $2, created_at DESC
		LIMIT $3
	`, tenantID, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to search embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []types.SearchResult{}
	for rows.Next() {
		var r types.SearchResult
		var et string
		var metadataJSON sql.NullString
		if err := rows.Scan(&r.TenantID, &et, &r.EntityID, &r.Content,
			&metadataJSON, &r.CreatedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan search result: %w", err)
		}
		r.EntityType = types.EntityType(et)
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &r.Metadata); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal metadata: %w", err)
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows error: %w", err)
	}

	return results, nil
}

// PurgeTenantEmbeddings removes every record for the tenant.
func (s *Store) PurgeTenantEmbeddings(ctx context.Context, tenantID string) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenant is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to purge tenant embeddings: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to check rows affected: %w", err)
	}
	return int(rows), nil
}

// ---------------------------------------------------------------------------
// EntityStore
// ---------------------------------------------------------------------------

// PutEntity creates or replaces an entity snapshot.
func (s *Store) PutEntity(ctx context.Context, e *types.Entity) error {
	if e == nil || e.TenantID == "" || !e.Valid() {
		return fmt.Errorf("%w: tenant, id, and name are required", storage.ErrInvalidInput)
	}

	attributesJSON, err := marshalMetadata(e.Attributes)
	if err != nil {
		return err
	}

	updatedAt := e.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (tenant_id, entity_type, entity_id, name, description, attributes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, entity_type, entity_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			attributes = excluded.attributes,
			updated_at = excluded.updated_at
	`, e.TenantID, string(e.Type), e.ID, e.Name, e.Description, attributesJSON, updatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to put entity: %w", err)
	}
	return nil
}

// GetEntity retrieves an entity snapshot by key.
func (s *Store) GetEntity(ctx context.Context, tenantID string, entityType types.EntityType, entityID string) (*types.Entity, error) {
	var e types.Entity
	var et string
	var description, attributesJSON sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, entity_type, entity_id, name, description, attributes, updated_at
		FROM entities
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
	`, tenantID, string(entityType), entityID).Scan(
		&e.TenantID, &et, &e.ID, &e.Name, &description, &attributesJSON, &e.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to get entity: %w", err)
	}

	e.Type = types.EntityType(et)
	if description.Valid {
		e.Description = description.String
	}
	if attributesJSON.Valid && attributesJSON.String != "" {
		if err := json.Unmarshal([]byte(attributesJSON.String), &e.Attributes); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal attributes: %w", err)
		}
	}
	return &e, nil
}

// ListEntities returns all snapshots for a tenant ordered by type then id.
func (s *Store) ListEntities(ctx context.Context, tenantID string) ([]types.Entity, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant is required", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, entity_type, entity_id, name, description, attributes, updated_at
		FROM entities
		WHERE tenant_id = $1
		ORDER BY entity_type, entity_id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entities := []types.Entity{}
	for rows.Next() {
		var e types.Entity
		var et string
		var description, attributesJSON sql.NullString
		if err := rows.Scan(&e.TenantID, &et, &e.ID, &e.Name, &description, &attributesJSON, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan entity: %w", err)
		}
		e.Type = types.EntityType(et)
		if description.Valid {
			e.Description = description.String
		}
		if attributesJSON.Valid && attributesJSON.String != "" {
			if err := json.Unmarshal([]byte(attributesJSON.String), &e.Attributes); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal attributes: %w", err)
			}
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows error: %w", err)
	}

	return entities, nil
}

// DeleteEntity removes an entity snapshot by key.
func (s *Store) DeleteEntity(ctx context.Context, tenantID string, entityType types.EntityType, entityID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM entities WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3`,
		tenantID, string(entityType), entityID)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete entity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// RegistrationStore / ThreadStore
// ---------------------------------------------------------------------------

// GetRegistration returns the tenant's assistant registration.
func (s *Store) GetRegistration(ctx context.Context, tenantID string) (*types.AssistantRegistration, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant is required", storage.ErrInvalidInput)
	}

	var reg types.AssistantRegistration
	var fileIDsJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, assistant_id, vector_store_id, file_ids, last_synced, created_at
		FROM assistant_registrations
		WHERE tenant_id = $1
	`, tenantID).Scan(&reg.TenantID, &reg.AssistantID, &reg.VectorStoreID, &fileIDsJSON, &reg.LastSynced, &reg.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to get registration: %w", err)
	}

	if err := json.Unmarshal([]byte(fileIDsJSON), &reg.FileIDs); err != nil {
		return nil, fmt.Errorf("postgres: failed to unmarshal file ids: %w", err)
	}
	return &reg, nil
}

// SaveRegistration creates or replaces the tenant's registration.
func (s *Store) SaveRegistration(ctx context.Context, reg *types.AssistantRegistration) error {
	if reg == nil || reg.TenantID == "" || reg.AssistantID == "" {
		return fmt.Errorf("%w: tenant and assistant id are required", storage.ErrInvalidInput)
	}

	fileIDs := reg.FileIDs
	if fileIDs == nil {
		fileIDs = []string{}
	}
	fileIDsJSON, err := json.Marshal(fileIDs)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal file ids: %w", err)
	}

	createdAt := reg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assistant_registrations (tenant_id, assistant_id, vector_store_id, file_ids, last_synced, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id) DO UPDATE SET
			assistant_id = excluded.assistant_id,
			vector_store_id = excluded.vector_store_id,
			file_ids = excluded.file_ids,
			last_synced = excluded.last_synced
	`, reg.TenantID, reg.AssistantID, reg.VectorStoreID, string(fileIDsJSON), reg.LastSynced, createdAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to save registration: %w", err)
	}
	return nil
}

// DeleteRegistration removes the tenant's registration.
func (s *Store) DeleteRegistration(ctx context.Context, tenantID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM assistant_registrations WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete registration: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetThread returns the binding for a (tenant, user) pair.
func (s *Store) GetThread(ctx context.Context, tenantID, userID string) (*types.ThreadBinding, error) {
	if tenantID == "" || userID == "" {
		return nil, fmt.Errorf("%w: tenant and user are required", storage.ErrInvalidInput)
	}

	var b types.ThreadBinding
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, user_id, thread_id, created_at
		FROM thread_bindings
		WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID).Scan(&b.TenantID, &b.UserID, &b.ThreadID, &b.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to get thread binding: %w", err)
	}
	return &b, nil
}

// SaveThread creates or replaces a binding.
func (s *Store) SaveThread(ctx context.Context, binding *types.ThreadBinding) error {
	if binding == nil || binding.TenantID == "" || binding.UserID == "" || binding.ThreadID == "" {
		return fmt.Errorf("%w: tenant, user, and thread id are required", storage.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thread_bindings (tenant_id, user_id, thread_id, created_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			thread_id = excluded.thread_id
	`, binding.TenantID, binding.UserID, binding.ThreadID)
	if err != nil {
		return fmt.Errorf("postgres: failed to save thread binding: %w", err)
	}
	return nil
}

func marshalMetadata(m map[string]string) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}
