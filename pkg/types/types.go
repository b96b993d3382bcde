// Package types defines the core data structures for the Prodex chat core.
// These types represent tenant entity snapshots, embedding records, queue
// jobs, and the per-tenant assistant resources managed by the sync layer.
package types

// EntityType classifies the product entities that feed the embedding index.
type EntityType string

// Entity type constants. These mirror the entity kinds produced by the
// product-management layer that calls the on-write hook.
const (
	EntityFeature     EntityType = "feature"
	EntityRelease     EntityType = "release"
	EntityRequirement EntityType = "requirement"
	EntityPage        EntityType = "page"
)

// RunStatus represents the remote state of an assistant run.
type RunStatus string

// Run status constants, as reported by the assistants provider.
const (
	RunQueued     RunStatus = "queued"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
	RunExpired    RunStatus = "expired"
)

// Terminal reports whether the run has reached a final state and will not
// transition again.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunExpired:
		return true
	}
	return false
}

// ChatMode selects the answering path for a chat request.
type ChatMode string

const (
	// ModeRAG answers with local vector search plus a completion call.
	ModeRAG ChatMode = "rag"

	// ModeManaged delegates to the tenant's hosted assistant thread.
	ModeManaged ChatMode = "managed"
)
