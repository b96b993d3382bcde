package types

import "time"

// Entity is a snapshot of one product entity (feature, release, requirement,
// page) as delivered by the product layer's on-write hook. The chat core
// never mutates entities; it only indexes them.
type Entity struct {
	// TenantID scopes the entity. Every read and write path carries it.
	TenantID string `json:"tenant_id"`

	// Type classifies the entity (feature, release, requirement, page).
	Type EntityType `json:"type"`

	// ID is the stable identifier assigned by the product layer.
	ID string `json:"id"`

	// Name is the display name. Required for indexing.
	Name string `json:"name"`

	// Description is the long-form body text.
	Description string `json:"description,omitempty"`

	// Attributes holds additional structured fields (status, owner, dates).
	// Rendered deterministically (sorted keys) by the corpus builder.
	Attributes map[string]string `json:"attributes,omitempty"`

	// UpdatedAt is when the snapshot was last written by the product layer.
	UpdatedAt time.Time `json:"updated_at"`
}

// Valid reports whether the snapshot carries the minimum fields needed for
// indexing: a stable id and a name.
func (e *Entity) Valid() bool {
	return e != nil && e.ID != "" && e.Name != ""
}
