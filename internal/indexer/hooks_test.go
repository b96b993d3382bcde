package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/prodexhq/prodex/internal/storage"
	"github.com/prodexhq/prodex/pkg/types"
)

func TestEntityWrittenRecordsSnapshotAndEnqueues(t *testing.T) {
	store := newTestStore(t)
	ix := New(store, &fakeEmbedder{dimension: 4}, 4)
	hook := NewHook(store, store, ix)
	ctx := context.Background()

	e := &types.Entity{
		Type:        types.EntityFeature,
		ID:          "f1",
		Name:        "Login",
		Description: "OAuth login",
	}
	if err := hook.EntityWritten(ctx, "t1", e); err != nil {
		t.Fatalf("EntityWritten() failed: %v", err)
	}

	// Snapshot recorded under the tenant.
	snap, err := store.GetEntity(ctx, "t1", types.EntityFeature, "f1")
	if err != nil {
		t.Fatalf("GetEntity() failed: %v", err)
	}
	if snap.Name != "Login" {
		t.Errorf("snapshot name: got %q", snap.Name)
	}

	// One job queued with content captured at write time.
	depth, err := store.QueueDepth(ctx)
	if err != nil {
		t.Fatalf("QueueDepth() failed: %v", err)
	}
	if depth != 1 {
		t.Fatalf("depth: got %d, want 1", depth)
	}

	// No embedding yet: the write path never waits for indexing.
	if _, err := store.GetEmbedding(ctx, "t1", types.EntityFeature, "f1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("embedding exists before drain: %v", err)
	}
}

func TestEntityWrittenValidation(t *testing.T) {
	store := newTestStore(t)
	hook := NewHook(store, store, New(store, &fakeEmbedder{dimension: 4}, 4))
	ctx := context.Background()

	e := &types.Entity{Type: types.EntityFeature, ID: "f1", Name: "Login"}
	if err := hook.EntityWritten(ctx, "", e); !errors.Is(err, ErrInvalidTenant) {
		t.Errorf("empty tenant: got %v, want ErrInvalidTenant", err)
	}
	if err := hook.EntityWritten(ctx, "t1", &types.Entity{Type: types.EntityFeature}); !errors.Is(err, ErrInvalidEntity) {
		t.Errorf("invalid entity: got %v, want ErrInvalidEntity", err)
	}
}

func TestEntityDeletedDropsSnapshotAndEmbedding(t *testing.T) {
	store := newTestStore(t)
	ix := New(store, &fakeEmbedder{dimension: 4}, 4)
	hook := NewHook(store, store, ix)
	worker := NewWorker(store, ix, WorkerConfig{})
	ctx := context.Background()

	e := &types.Entity{Type: types.EntityFeature, ID: "f1", Name: "Login"}
	if err := hook.EntityWritten(ctx, "t1", e); err != nil {
		t.Fatalf("EntityWritten() failed: %v", err)
	}
	if _, err := worker.Drain(ctx); err != nil {
		t.Fatalf("Drain() failed: %v", err)
	}

	if err := hook.EntityDeleted(ctx, "t1", types.EntityFeature, "f1"); err != nil {
		t.Fatalf("EntityDeleted() failed: %v", err)
	}

	if _, err := store.GetEntity(ctx, "t1", types.EntityFeature, "f1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("snapshot survived delete: %v", err)
	}
	if _, err := store.GetEmbedding(ctx, "t1", types.EntityFeature, "f1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("embedding survived delete: %v", err)
	}

	// Deleting again is idempotent.
	if err := hook.EntityDeleted(ctx, "t1", types.EntityFeature, "f1"); err != nil {
		t.Errorf("second EntityDeleted(): got %v, want nil", err)
	}
}
