// Package assistant manages per-tenant hosted assistant resources: corpus
// files, vector stores, the assistant itself, and user conversation
// threads with their runs.
package assistant

import (
	"context"

	"github.com/prodexhq/prodex/pkg/types"
)

// FileStatus is the attach state of a file inside a vector store.
type FileStatus string

// File attach states reported by the provider.
const (
	FileInProgress FileStatus = "in_progress"
	FileCompleted  FileStatus = "completed"
	FileFailed     FileStatus = "failed"
	FileCancelled  FileStatus = "cancelled"
)

// AssistantSpec is the desired state of a tenant's assistant resource.
type AssistantSpec struct {
	Name          string
	Instructions  string
	Model         string
	VectorStoreID string
}

// Run is the provider's view of one assistant execution.
type Run struct {
	ID        string
	ThreadID  string
	Status    types.RunStatus
	LastError string
}

// Message is one message in a remote thread.
type Message struct {
	ID      string
	Role    string
	Content string
}

// ProviderClient is the hosted-assistants surface the lifecycle manager
// drives. Implementations wrap one provider account; fakes replace it in
// tests.
type ProviderClient interface {
	// CreateFile uploads a corpus document and returns its file id.
	CreateFile(ctx context.Context, filename string, contents []byte) (string, error)

	// DeleteFile removes an uploaded file.
	DeleteFile(ctx context.Context, fileID string) error

	// CreateVectorStore creates an empty vector store.
	CreateVectorStore(ctx context.Context, name string) (string, error)

	// DeleteVectorStore removes a vector store.
	DeleteVectorStore(ctx context.Context, storeID string) error

	// AttachFile adds a file to a vector store. Indexing is asynchronous;
	// callers poll GetFileStatus until it reports a terminal state.
	AttachFile(ctx context.Context, storeID, fileID string) error

	// GetFileStatus reports the attach state of a file in a store.
	GetFileStatus(ctx context.Context, storeID, fileID string) (FileStatus, error)

	// CreateAssistant creates an assistant wired to the spec's vector store.
	CreateAssistant(ctx context.Context, spec AssistantSpec) (string, error)

	// UpdateAssistant points an existing assistant at a new vector store
	// and refreshes its instructions.
	UpdateAssistant(ctx context.Context, assistantID string, spec AssistantSpec) error

	// DeleteAssistant removes an assistant.
	DeleteAssistant(ctx context.Context, assistantID string) error

	// CreateThread creates an empty conversation thread.
	CreateThread(ctx context.Context) (string, error)

	// PostMessage appends a message to a thread and returns its id.
	PostMessage(ctx context.Context, threadID, role, text string) (string, error)

	// CreateRun starts an assistant run on a thread.
	CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error)

	// GetRun fetches the current state of a run.
	GetRun(ctx context.Context, threadID, runID string) (*Run, error)

	// LatestAssistantMessage returns the newest assistant-role message in
	// the thread, or empty string when the thread has none.
	LatestAssistantMessage(ctx context.Context, threadID string) (string, error)
}
