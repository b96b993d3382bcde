package indexer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prodexhq/prodex/pkg/types"
)

func enqueueTestJob(t *testing.T, queue interface {
	Enqueue(ctx context.Context, job *types.QueueJob) (int64, error)
}, tenantID, entityID, content string) int64 {
	t.Helper()
	msgID, err := queue.Enqueue(context.Background(), &types.QueueJob{
		TenantID:   tenantID,
		EntityType: types.EntityFeature,
		EntityID:   entityID,
		Content:    content,
	})
	if err != nil {
		t.Fatalf("failed to enqueue job for %s: %v", entityID, err)
	}
	return msgID
}

func TestDrainProcessesAndRemovesJobs(t *testing.T) {
	store := newTestStore(t)
	ix := New(store, &fakeEmbedder{dimension: 4}, 4)
	worker := NewWorker(store, ix, WorkerConfig{})
	ctx := context.Background()

	enqueueTestJob(t, store, "t1", "f1", "Feature: Login")

	stats, err := worker.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() failed: %v", err)
	}
	if stats.Processed != 1 || stats.Failed != 0 || stats.DeadLettered != 0 {
		t.Errorf("stats: %+v", stats)
	}

	// The embedding exists and the job is gone.
	if _, err := store.GetEmbedding(ctx, "t1", types.EntityFeature, "f1"); err != nil {
		t.Errorf("embedding not created: %v", err)
	}
	depth, err := store.QueueDepth(ctx)
	if err != nil {
		t.Fatalf("QueueDepth() failed: %v", err)
	}
	if depth != 0 {
		t.Errorf("queue depth after drain: got %d, want 0", depth)
	}

	// Draining an empty queue is a no-op.
	stats, err = worker.Drain(ctx)
	if err != nil {
		t.Fatalf("second Drain() failed: %v", err)
	}
	if stats.Processed != 0 {
		t.Errorf("empty queue drain processed %d jobs", stats.Processed)
	}
}

func TestDrainPartialFailure(t *testing.T) {
	store := newTestStore(t)

	// Embedder fails only for one entity's content.
	embedder := &selectiveEmbedder{dimension: 4, failOn: "Feature: Broken"}
	ix := New(store, embedder, 4)
	worker := NewWorker(store, ix, WorkerConfig{VisibilityTimeout: time.Minute, MaxReads: 5})
	ctx := context.Background()

	enqueueTestJob(t, store, "t1", "ok1", "Feature: Login")
	enqueueTestJob(t, store, "t1", "bad", "Feature: Broken")
	enqueueTestJob(t, store, "t1", "ok2", "Feature: Search")

	stats, err := worker.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() failed: %v", err)
	}
	if stats.Processed != 2 {
		t.Errorf("processed: got %d, want 2", stats.Processed)
	}
	if stats.Failed != 1 {
		t.Errorf("failed: got %d, want 1", stats.Failed)
	}
	if stats.DeadLettered != 0 {
		t.Errorf("dead-lettered: got %d, want 0", stats.DeadLettered)
	}

	// The failed job stays queued for retry.
	depth, err := store.QueueDepth(ctx)
	if err != nil {
		t.Fatalf("QueueDepth() failed: %v", err)
	}
	if depth != 1 {
		t.Errorf("depth: got %d, want 1", depth)
	}
}

func TestDrainDeadLettersAfterMaxReads(t *testing.T) {
	store := newTestStore(t)
	embedder := &selectiveEmbedder{dimension: 4, failOn: "Feature: Broken"}
	ix := New(store, embedder, 4)
	worker := NewWorker(store, ix, WorkerConfig{VisibilityTimeout: time.Millisecond, MaxReads: 2})
	ctx := context.Background()

	enqueueTestJob(t, store, "t1", "bad", "Feature: Broken")

	// First pass: read_count 1, below the bound, left for retry.
	stats, err := worker.Drain(ctx)
	if err != nil {
		t.Fatalf("first Drain() failed: %v", err)
	}
	if stats.Failed != 1 || stats.DeadLettered != 0 {
		t.Fatalf("first pass stats: %+v", stats)
	}

	time.Sleep(5 * time.Millisecond)

	// Second pass: read_count reaches the bound, job is dead-lettered.
	stats, err = worker.Drain(ctx)
	if err != nil {
		t.Fatalf("second Drain() failed: %v", err)
	}
	if stats.DeadLettered != 1 {
		t.Fatalf("second pass stats: %+v", stats)
	}

	depth, err := store.QueueDepth(ctx)
	if err != nil {
		t.Fatalf("QueueDepth() failed: %v", err)
	}
	if depth != 0 {
		t.Errorf("depth after dead-letter: got %d, want 0", depth)
	}

	dead, err := store.DeadLetters(ctx, 10)
	if err != nil {
		t.Fatalf("DeadLetters() failed: %v", err)
	}
	if len(dead) != 1 || dead[0].EntityID != "bad" {
		t.Errorf("dead letters: %+v", dead)
	}
}

func TestDrainDeadLettersValidationErrorsImmediately(t *testing.T) {
	store := newTestStore(t)
	ix := New(store, &fakeEmbedder{dimension: 4}, 4)
	worker := NewWorker(store, ix, WorkerConfig{MaxReads: 5})
	ctx := context.Background()

	// Bypass Enqueue validation to plant a malformed job; raw SQL mirrors a
	// producer bug.
	_, err := store.GetDB().Exec(`
		INSERT INTO embedding_jobs (tenant_id, entity_type, entity_id, content, enqueued_at, visible_at, read_count)
		VALUES ('t1', 'feature', '', 'Feature: Nameless', ?, ?, 0)
	`, time.Now().UTC(), time.Now().UTC())
	if err != nil {
		t.Fatalf("failed to insert malformed job: %v", err)
	}

	stats, err := worker.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() failed: %v", err)
	}
	// Validation errors never succeed on retry, so the job is dead-lettered
	// on the first read.
	if stats.DeadLettered != 1 {
		t.Errorf("stats: %+v", stats)
	}
}

func TestWorkerOnJobDone(t *testing.T) {
	store := newTestStore(t)
	ix := New(store, &fakeEmbedder{dimension: 4}, 4)
	worker := NewWorker(store, ix, WorkerConfig{})

	var seen []string
	worker.OnJobDone(func(job types.QueueJob) {
		seen = append(seen, job.EntityID)
	})

	enqueueTestJob(t, store, "t1", "f1", "Feature: Login")
	enqueueTestJob(t, store, "t1", "f2", "Feature: Search")

	if _, err := worker.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() failed: %v", err)
	}
	if len(seen) != 2 {
		t.Errorf("callback invocations: got %v", seen)
	}
}

// selectiveEmbedder fails only for one specific input text.
type selectiveEmbedder struct {
	dimension int
	failOn    string
}

func (f *selectiveEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == f.failOn {
		return nil, fmt.Errorf("provider unavailable")
	}
	vec := make([]float32, f.dimension)
	for i := range vec {
		vec[i] = float32(i) / float32(f.dimension)
	}
	return vec, nil
}

func (f *selectiveEmbedder) GetModel() string { return "fake-embedder" }
func (f *selectiveEmbedder) Dimension() int   { return f.dimension }
