package types

import "time"

// AssistantRegistration records the hosted assistant resources owned by one
// tenant: exactly one assistant backed by one vector store holding the
// current corpus file generation. Owned exclusively by the lifecycle
// manager; chat requests only ever read it.
type AssistantRegistration struct {
	TenantID      string    `json:"tenant_id"`
	AssistantID   string    `json:"assistant_id"`
	VectorStoreID string    `json:"vector_store_id"`
	FileIDs       []string  `json:"file_ids"`
	LastSynced    time.Time `json:"last_synced"`
	CreatedAt     time.Time `json:"created_at"`
}

// Stale reports whether the registration should be rebuilt on the next
// sync check: either it is older than ttl, or it was explicitly
// invalidated (zero LastSynced). A zero ttl disables age-based expiry but
// never explicit invalidation.
func (r *AssistantRegistration) Stale(ttl time.Duration, now time.Time) bool {
	if r.LastSynced.IsZero() {
		return true
	}
	if ttl <= 0 {
		return false
	}
	return now.Sub(r.LastSynced) > ttl
}

// ThreadBinding maps a (tenant, user) pair to its remote conversation
// thread. Created lazily on the first managed-mode message and never
// deleted automatically; stale threads stay valid as long as the remote
// assistant exists.
type ThreadBinding struct {
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	ThreadID  string    `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatTurn is one message in a conversation. Turns are ephemeral: the chat
// core holds them in the orchestrator layer only and never persists them.
type ChatTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ThreadID  string    `json:"thread_id,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
}
