package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/prodexhq/prodex/internal/storage"
	"github.com/prodexhq/prodex/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Compile-time assertion.
var _ storage.Store = (*Store)(nil)

// New opens (or creates) a SQLite chat-core store at the given DSN and
// applies the schema. Use ":memory:" for an ephemeral store.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// The queue read path uses a transaction that must not race another
	// connection's view of visible_at.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: failed to apply schema: %w", err)
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

	now := time.Now().UTC()
	query := `
		INSERT INTO embeddings (tenant_id, entity_type, entity_id, content, embedding, dimension, model, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, entity_type, entity_id) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			model = excluded.model,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.TenantID, string(rec.EntityType), rec.EntityID, rec.Content,
		serializeVector(rec.Embedding), rec.Dimension, rec.Model, metadataJSON, now, now)
	if err != nil {
		return fmt.Errorf("sqlite: failed to upsert embedding: %w", err)
	}

	return nil
}

// GetEmbedding retrieves a record by its key.
func (s *Store) GetEmbedding(ctx context.Context, tenantID string, entityType types.EntityType, entityID string) (*types.EmbeddingRecord, error) {
	if tenantID == "" || entityID == "" {
		return nil, fmt.Errorf("%w: tenant and entity id are required", storage.ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, entity_type, entity_id, content, embedding, dimension, model, metadata, created_at, updated_at
		FROM embeddings
		WHERE tenant_id = ? AND entity_type = ? AND entity_id = ?
	`

	rec, err := scanEmbedding(s.db.QueryRowContext(ctx, query, tenantID, string(entityType), entityID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: failed to get embedding: %w", err)
	}

	return rec, nil
}

// DeleteEmbedding removes a record by its key.
func (s *Store) DeleteEmbedding(ctx context.Context, tenantID string, entityType types.EntityType, entityID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM embeddings WHERE tenant_id = ? AND entity_type = ? AND entity_id = ?`,
		tenantID, string(entityType), entityID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete embedding: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// SearchEmbeddings ranks the tenant's records by cosine similarity to the
// query vector. SQLite has no vector index, so the tenant's rows are scanned
// and ranked in Go; per-tenant corpora are small enough for this to hold.
func (s *Store) SearchEmbeddings(ctx context.Context, tenantID string, query []float32, k int) ([]types.SearchResult, error) {
	if tenantID == "" || len(query) == 0 || k <= 0 {
		return []types.SearchResult{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, entity_type, entity_id, content, embedding, dimension, model, metadata, created_at, updated_at
		FROM embeddings
		WHERE tenant_id = ?
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []types.SearchResult{}
	for rows.Next() {
		rec, err := scanEmbedding(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan embedding: %w", err)
		}
		if len(rec.Embedding) != len(query) {
			continue
		}
		results = append(results, types.SearchResult{
			TenantID:   rec.TenantID,
			EntityType: rec.EntityType,
			EntityID:   rec.EntityID,
			Content:    rec.Content,
			Metadata:   rec.Metadata,
			Similarity: cosineSimilarity(query, rec.Embedding),
			CreatedAt:  rec.CreatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows error: %w", err)
	}

	// Rank by similarity descending; ties broken by most-recent created_at.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// PurgeTenantEmbeddings removes every record for the tenant.
func (s *Store) PurgeTenantEmbeddings(ctx context.Context, tenantID string) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenant is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to purge tenant embeddings: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to check rows affected: %w", err)
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
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, entity_type, entity_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			attributes = excluded.attributes,
			updated_at = excluded.updated_at
	`, e.TenantID, string(e.Type), e.ID, e.Name, e.Description, attributesJSON, updatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to put entity: %w", err)
	}

	return nil
}

// GetEntity retrieves an entity snapshot by key.
func (s *Store) GetEntity(ctx context.Context, tenantID string, entityType types.EntityType, entityID string) (*types.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, entity_type, entity_id, name, description, attributes, updated_at
		FROM entities
		WHERE tenant_id = ? AND entity_type = ? AND entity_id = ?
	`, tenantID, string(entityType), entityID)

	e, err := scanEntity(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: failed to get entity: %w", err)
	}
	return e, nil
}

// ListEntities returns all snapshots for a tenant ordered by type then id.
func (s *Store) ListEntities(ctx context.Context, tenantID string) ([]types.Entity, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant is required", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, entity_type, entity_id, name, description, attributes, updated_at
		FROM entities
		WHERE tenant_id = ?
		ORDER BY entity_type, entity_id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entities := []types.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan entity: %w", err)
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows error: %w", err)
	}

	return entities, nil
}

// DeleteEntity removes an entity snapshot by key.
func (s *Store) DeleteEntity(ctx context.Context, tenantID string, entityType types.EntityType, entityID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM entities WHERE tenant_id = ? AND entity_type = ? AND entity_id = ?`,
		tenantID, string(entityType), entityID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete entity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// RegistrationStore
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
		WHERE tenant_id = ?
	`, tenantID).Scan(&reg.TenantID, &reg.AssistantID, &reg.VectorStoreID, &fileIDsJSON, &reg.LastSynced, &reg.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: failed to get registration: %w", err)
	}

	if err := json.Unmarshal([]byte(fileIDsJSON), &reg.FileIDs); err != nil {
		return nil, fmt.Errorf("sqlite: failed to unmarshal file ids: %w", err)
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
		return fmt.Errorf("sqlite: failed to marshal file ids: %w", err)
	}

	createdAt := reg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assistant_registrations (tenant_id, assistant_id, vector_store_id, file_ids, last_synced, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			assistant_id = excluded.assistant_id,
			vector_store_id = excluded.vector_store_id,
			file_ids = excluded.file_ids,
			last_synced = excluded.last_synced
	`, reg.TenantID, reg.AssistantID, reg.VectorStoreID, string(fileIDsJSON), reg.LastSynced, createdAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to save registration: %w", err)
	}

	return nil
}

// DeleteRegistration removes the tenant's registration.
func (s *Store) DeleteRegistration(ctx context.Context, tenantID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM assistant_registrations WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete registration: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// ThreadStore
// ---------------------------------------------------------------------------

// GetThread returns the binding for a (tenant, user) pair.
func (s *Store) GetThread(ctx context.Context, tenantID, userID string) (*types.ThreadBinding, error) {
	if tenantID == "" || userID == "" {
		return nil, fmt.Errorf("%w: tenant and user are required", storage.ErrInvalidInput)
	}

	var b types.ThreadBinding
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, user_id, thread_id, created_at
		FROM thread_bindings
		WHERE tenant_id = ? AND user_id = ?
	`, tenantID, userID).Scan(&b.TenantID, &b.UserID, &b.ThreadID, &b.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: failed to get thread binding: %w", err)
	}

	return &b, nil
}

// SaveThread creates or replaces a binding.
func (s *Store) SaveThread(ctx context.Context, binding *types.ThreadBinding) error {
	if binding == nil || binding.TenantID == "" || binding.UserID == "" || binding.ThreadID == "" {
		return fmt.Errorf("%w: tenant, user, and thread id are required", storage.ErrInvalidInput)
	}

	createdAt := binding.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thread_bindings (tenant_id, user_id, thread_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id, user_id) DO UPDATE SET
			thread_id = excluded.thread_id
	`, binding.TenantID, binding.UserID, binding.ThreadID, createdAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to save thread binding: %w", err)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEmbedding(row rowScanner) (*types.EmbeddingRecord, error) {
	var rec types.EmbeddingRecord
	var entityType string
	var blob []byte
	var metadataJSON sql.NullString

	err := row.Scan(&rec.TenantID, &entityType, &rec.EntityID, &rec.Content,
		&blob, &rec.Dimension, &rec.Model, &metadataJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rec.EntityType = types.EntityType(entityType)

	rec.Embedding, err = deserializeVector(blob, rec.Dimension)
	if err != nil {
		return nil, err
	}

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return &rec, nil
}

func scanEntity(row rowScanner) (*types.Entity, error) {
	var e types.Entity
	var entityType string
	var description, attributesJSON sql.NullString

	err := row.Scan(&e.TenantID, &entityType, &e.ID, &e.Name, &description, &attributesJSON, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.Type = types.EntityType(entityType)
	if description.Valid {
		e.Description = description.String
	}
	if attributesJSON.Valid && attributesJSON.String != "" {
		if err := json.Unmarshal([]byte(attributesJSON.String), &e.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal attributes: %w", err)
		}
	}

	return &e, nil
}

func marshalMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

// serializeVector converts a float32 slice to little-endian bytes. The
// representation is exact, so a stored vector reads back bitwise-equal.
func serializeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeVector converts little-endian bytes back to a float32 slice.
// dimension validates the buffer size.
func deserializeVector(buf []byte, dimension int) ([]float32, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension: %d", dimension)
	}
	if len(buf) != dimension*4 {
		return nil, fmt.Errorf("buffer size mismatch: expected %d bytes, got %d", dimension*4, len(buf))
	}

	vec := make([]float32, dimension)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}

// cosineSimilarity computes cosine similarity between two equal-length
// vectors. Zero vectors yield 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
