package indexer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prodexhq/prodex/internal/storage/sqlite"
	"github.com/prodexhq/prodex/pkg/types"
)

// fakeEmbedder returns a deterministic vector derived from the text, so
// equal content always embeds equally.
type fakeEmbedder struct {
	dimension int
	calls     int
	err       error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vec := make([]float32, f.dimension)
	for i := range vec {
		vec[i] = float32((len(text)+i)%7) / 7.0
	}
	return vec, nil
}

func (f *fakeEmbedder) GetModel() string { return "fake-embedder" }
func (f *fakeEmbedder) Dimension() int   { return f.dimension }

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestIndexEntityValidation(t *testing.T) {
	store := newTestStore(t)
	ix := New(store, &fakeEmbedder{dimension: 4}, 4)
	ctx := context.Background()

	entity := &types.Entity{Type: types.EntityFeature, ID: "f1", Name: "Login"}

	if _, err := ix.IndexEntity(ctx, "", entity); !errors.Is(err, ErrInvalidTenant) {
		t.Errorf("empty tenant: got %v, want ErrInvalidTenant", err)
	}

	if _, err := ix.IndexEntity(ctx, "t1", &types.Entity{Type: types.EntityFeature, ID: "f1"}); !errors.Is(err, ErrInvalidEntity) {
		t.Errorf("missing name: got %v, want ErrInvalidEntity", err)
	}
	if _, err := ix.IndexEntity(ctx, "t1", &types.Entity{Type: types.EntityFeature, Name: "Login"}); !errors.Is(err, ErrInvalidEntity) {
		t.Errorf("missing id: got %v, want ErrInvalidEntity", err)
	}
}

func TestIndexEntityShapeError(t *testing.T) {
	store := newTestStore(t)
	// Provider returns 3 values, indexer expects 4.
	ix := New(store, &fakeEmbedder{dimension: 3}, 4)

	entity := &types.Entity{Type: types.EntityFeature, ID: "f1", Name: "Login"}
	_, err := ix.IndexEntity(context.Background(), "t1", entity)
	if !errors.Is(err, ErrEmbeddingShape) {
		t.Errorf("got %v, want ErrEmbeddingShape", err)
	}
}

func TestIndexEntityProviderError(t *testing.T) {
	store := newTestStore(t)
	ix := New(store, &fakeEmbedder{dimension: 4, err: fmt.Errorf("connection refused")}, 4)

	entity := &types.Entity{Type: types.EntityFeature, ID: "f1", Name: "Login"}
	_, err := ix.IndexEntity(context.Background(), "t1", entity)
	if err == nil {
		t.Fatal("expected error from failing provider")
	}
	if errors.Is(err, ErrInvalidTenant) || errors.Is(err, ErrInvalidEntity) || errors.Is(err, ErrEmbeddingShape) {
		t.Errorf("provider error misclassified as validation error: %v", err)
	}
}

func TestIndexEntityReindexUpdatesInPlace(t *testing.T) {
	store := newTestStore(t)
	ix := New(store, &fakeEmbedder{dimension: 4}, 4)
	ctx := context.Background()

	entity := &types.Entity{
		Type:        types.EntityFeature,
		ID:          "f1",
		Name:        "Login",
		Description: "OAuth login",
	}

	rec, err := ix.IndexEntity(ctx, "t1", entity)
	if err != nil {
		t.Fatalf("IndexEntity() failed: %v", err)
	}
	if rec.TenantID != "t1" || rec.EntityID != "f1" {
		t.Errorf("record key: got %s/%s", rec.TenantID, rec.EntityID)
	}
	firstContent := rec.Content

	// Indexing again with the same state yields identical content.
	rec, err = ix.IndexEntity(ctx, "t1", entity)
	if err != nil {
		t.Fatalf("re-index failed: %v", err)
	}
	if rec.Content != firstContent {
		t.Errorf("content changed on unchanged entity:\n%q\nvs\n%q", rec.Content, firstContent)
	}

	// Changed description: same record, updated content.
	entity.Description = "OAuth and SAML login"
	rec, err = ix.IndexEntity(ctx, "t1", entity)
	if err != nil {
		t.Fatalf("re-index with change failed: %v", err)
	}
	if rec.Content == firstContent {
		t.Error("content not updated after description change")
	}

	stored, err := store.GetEmbedding(ctx, "t1", types.EntityFeature, "f1")
	if err != nil {
		t.Fatalf("GetEmbedding() failed: %v", err)
	}
	if stored.Content != rec.Content {
		t.Errorf("stored content stale: %q", stored.Content)
	}
}

func TestRemoveEntityIdempotent(t *testing.T) {
	store := newTestStore(t)
	ix := New(store, &fakeEmbedder{dimension: 4}, 4)
	ctx := context.Background()

	entity := &types.Entity{Type: types.EntityFeature, ID: "f1", Name: "Login"}
	if _, err := ix.IndexEntity(ctx, "t1", entity); err != nil {
		t.Fatalf("IndexEntity() failed: %v", err)
	}

	if err := ix.RemoveEntity(ctx, "t1", types.EntityFeature, "f1"); err != nil {
		t.Fatalf("RemoveEntity() failed: %v", err)
	}
	// Removing a missing record is not an error.
	if err := ix.RemoveEntity(ctx, "t1", types.EntityFeature, "f1"); err != nil {
		t.Errorf("second RemoveEntity(): got %v, want nil", err)
	}

	if err := ix.RemoveEntity(ctx, "", types.EntityFeature, "f1"); !errors.Is(err, ErrInvalidTenant) {
		t.Errorf("empty tenant: got %v, want ErrInvalidTenant", err)
	}
}
