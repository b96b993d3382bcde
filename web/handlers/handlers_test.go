package handlers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prodexhq/prodex/internal/assistant"
	"github.com/prodexhq/prodex/internal/chat"
	"github.com/prodexhq/prodex/internal/indexer"
	"github.com/prodexhq/prodex/internal/search"
	"github.com/prodexhq/prodex/internal/storage/sqlite"
	"github.com/prodexhq/prodex/pkg/types"
)

// fixture wires real services over an in-memory store, with the embedding
// and completion providers faked out.
type fixture struct {
	store        *sqlite.Store
	indexer      *indexer.Indexer
	hook         *indexer.Hook
	worker       *indexer.Worker
	searcher     *search.Service
	orchestrator *chat.Orchestrator
}

// testEmbedder maps login-flavored text onto one axis and everything else
// onto another.
type testEmbedder struct{}

func (testEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 3)
	if strings.Contains(strings.ToLower(text), "login") {
		vec[0] = 1
	} else {
		vec[1] = 1
	}
	vec[2] = 0.1
	return vec, nil
}
func (testEmbedder) GetModel() string { return "test-embedder" }
func (testEmbedder) Dimension() int   { return 3 }

type testGenerator struct{}

func (testGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	return "generated answer", nil
}
func (testGenerator) GetModel() string { return "test-generator" }

// testProvider covers the hosted-assistants surface with canned responses.
type testProvider struct{}

func (testProvider) CreateFile(ctx context.Context, filename string, contents []byte) (string, error) {
	return "file_1", nil
}
func (testProvider) DeleteFile(ctx context.Context, fileID string) error { return nil }
func (testProvider) CreateVectorStore(ctx context.Context, name string) (string, error) {
	return "vs_1", nil
}
func (testProvider) DeleteVectorStore(ctx context.Context, storeID string) error { return nil }
func (testProvider) AttachFile(ctx context.Context, storeID, fileID string) error {
	return nil
}
func (testProvider) GetFileStatus(ctx context.Context, storeID, fileID string) (assistant.FileStatus, error) {
	return assistant.FileCompleted, nil
}
func (testProvider) CreateAssistant(ctx context.Context, spec assistant.AssistantSpec) (string, error) {
	return "asst_1", nil
}
func (testProvider) UpdateAssistant(ctx context.Context, assistantID string, spec assistant.AssistantSpec) error {
	return nil
}
func (testProvider) DeleteAssistant(ctx context.Context, assistantID string) error { return nil }
func (testProvider) CreateThread(ctx context.Context) (string, error)              { return "thread_1", nil }
func (testProvider) PostMessage(ctx context.Context, threadID, role, text string) (string, error) {
	return "msg_1", nil
}
func (testProvider) CreateRun(ctx context.Context, threadID, assistantID string) (*assistant.Run, error) {
	return &assistant.Run{ID: "run_1", ThreadID: threadID, Status: types.RunCompleted}, nil
}
func (testProvider) GetRun(ctx context.Context, threadID, runID string) (*assistant.Run, error) {
	return &assistant.Run{ID: runID, ThreadID: threadID, Status: types.RunCompleted}, nil
}
func (testProvider) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	return "managed answer", nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ix := indexer.New(store, testEmbedder{}, 3)
	hook := indexer.NewHook(store, store, ix)
	worker := indexer.NewWorker(store, ix, indexer.WorkerConfig{})
	searcher := search.New(store, testEmbedder{})
	manager := assistant.NewManager(testProvider{}, store, store, store, assistant.ManagerConfig{
		StalenessTTL:    time.Hour,
		AttachPollDelay: time.Millisecond,
		RunPollDelay:    time.Millisecond,
	})
	orchestrator := chat.New(searcher, testGenerator{}, manager)

	return &fixture{
		store:        store,
		indexer:      ix,
		hook:         hook,
		worker:       worker,
		searcher:     searcher,
		orchestrator: orchestrator,
	}
}

// indexEntity writes a snapshot and its embedding directly, bypassing the
// queue, for tests that need searchable content.
func (f *fixture) indexEntity(t *testing.T, tenantID, id, name, description string) {
	t.Helper()
	e := &types.Entity{TenantID: tenantID, Type: types.EntityFeature, ID: id, Name: name, Description: description}
	if _, err := f.indexer.IndexEntity(context.Background(), tenantID, e); err != nil {
		t.Fatalf("failed to index %s: %v", id, err)
	}
	if err := f.store.PutEntity(context.Background(), e); err != nil {
		t.Fatalf("failed to snapshot %s: %v", id, err)
	}
}
