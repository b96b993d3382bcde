// Package postgres provides the PostgreSQL implementation of the chat-core
// storage interfaces. It requires the pgvector extension for native
// cosine-distance ranking and uses SKIP LOCKED for concurrent queue readers.
package postgres

// Schema contains the SQL statements to create the chat-core schema for
// PostgreSQL. The embedding column dimension is fixed at table creation;
// see config for the provider-side dimension check.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;

-- Entity snapshots delivered by the product layer's on-write hook.
CREATE TABLE IF NOT EXISTS entities (
    tenant_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    attributes JSONB,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (tenant_id, entity_type, entity_id)
);

-- Embedding records: one live row per (tenant, type, id).
CREATE TABLE IF NOT EXISTS embeddings (
    tenant_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    content TEXT NOT NULL,
    embedding vector(1536) NOT NULL,
    dimension INTEGER NOT NULL,
    model TEXT NOT NULL,
    metadata JSONB,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (tenant_id, entity_type, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_embeddings_tenant ON embeddings(tenant_id);

-- ivfflat requires rows to build useful lists; created unconditionally,
-- postgres keeps it maintained as data arrives.
CREATE INDEX IF NOT EXISTS idx_embeddings_cosine
    ON embeddings USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);

-- Durable embedding job queue with visibility timeout.
CREATE TABLE IF NOT EXISTS embedding_jobs (
    msg_id BIGSERIAL PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    content TEXT NOT NULL,
    enqueued_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    visible_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    read_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_embedding_jobs_visible ON embedding_jobs(visible_at);

-- Jobs that exhausted their retry budget, kept for operator inspection.
CREATE TABLE IF NOT EXISTS embedding_jobs_dead (
    msg_id BIGINT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    content TEXT NOT NULL,
    enqueued_at TIMESTAMP NOT NULL,
    read_count INTEGER NOT NULL,
    failed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_error TEXT
);

-- One assistant registration per tenant.
CREATE TABLE IF NOT EXISTS assistant_registrations (
    tenant_id TEXT PRIMARY KEY,
    assistant_id TEXT NOT NULL,
    vector_store_id TEXT NOT NULL,
    file_ids JSONB NOT NULL,
    last_synced TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- (tenant, user) -> remote conversation thread.
CREATE TABLE IF NOT EXISTS thread_bindings (
    tenant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    thread_id TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (tenant_id, user_id)
);
`
