// Package llm provides clients for the completion and embedding providers
// used by the chat core. Every provider call goes through a circuit breaker
// and uses explicit typed request/response structs; dynamic provider shapes
// are never trusted past this boundary.
package llm

import "context"

// TextGenerator is the interface for completion calls on the RAG path.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
// Implementations validate the returned vector length against their
// configured dimension before handing it to callers.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string

	// Dimension returns the vector length this generator is configured
	// to produce (0 when the provider does not enforce one).
	Dimension() int
}
