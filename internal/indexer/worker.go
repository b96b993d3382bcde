package indexer

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/prodexhq/prodex/internal/storage"
	"github.com/prodexhq/prodex/pkg/types"
)

// WorkerConfig holds the drain loop's tunables.
type WorkerConfig struct {
	// VisibilityTimeout is how long a read hides a job from other
	// readers. Default: 60s.
	VisibilityTimeout time.Duration

	// BatchSize is the maximum number of jobs per drain pass. Default: 20.
	BatchSize int

	// MaxReads is the read_count bound: a job read this many times
	// without success is dead-lettered instead of retried. Default: 5.
	MaxReads int
}

// Worker drains the embedding job queue. It is driven by a periodic
// scheduler in the server process and can also be invoked synchronously
// for tests and backfills.
type Worker struct {
	queue   storage.JobQueue
	indexer *Indexer
	cfg     WorkerConfig

	// onDone, when set, is called after each successfully indexed job.
	// The server wires this to the websocket event hub.
	onDone func(job types.QueueJob)
}

// NewWorker creates a queue worker with defaults applied.
func NewWorker(queue storage.JobQueue, ix *Indexer, cfg WorkerConfig) *Worker {
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 60 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxReads <= 0 {
		cfg.MaxReads = 5
	}
	return &Worker{queue: queue, indexer: ix, cfg: cfg}
}

// OnJobDone registers a callback invoked after each successful job.
func (w *Worker) OnJobDone(fn func(job types.QueueJob)) {
	w.onDone = fn
}

// Drain reads up to one batch of visible jobs and processes each
// independently: index, then delete on success. Failed jobs stay in the
// queue and re-appear after the visibility timeout, until their read_count
// crosses the bound and they are dead-lettered. One failing job never
// aborts the batch.
func (w *Worker) Drain(ctx context.Context) (storage.DrainStats, error) {
	var stats storage.DrainStats

	jobs, err := w.queue.ReadBatch(ctx, w.cfg.VisibilityTimeout, w.cfg.BatchSize)
	if err != nil {
		return stats, err
	}

	for i := range jobs {
		job := jobs[i]
		if err := w.processJob(ctx, job); err != nil {
			if isValidationError(err) || job.ReadCount >= w.cfg.MaxReads {
				log.Printf("Dead-lettering job %d for %s/%s after %d reads: %v",
					job.MsgID, job.EntityType, job.EntityID, job.ReadCount, err)
				if dlErr := w.queue.DeadLetterJob(ctx, job.MsgID, err.Error()); dlErr != nil {
					log.Printf("ERROR: failed to dead-letter job %d: %v", job.MsgID, dlErr)
				}
				stats.DeadLettered++
			} else {
				log.Printf("WARNING: job %d for %s/%s failed (read %d/%d), leaving for retry: %v",
					job.MsgID, job.EntityType, job.EntityID, job.ReadCount, w.cfg.MaxReads, err)
				stats.Failed++
			}
			continue
		}

		if err := w.queue.DeleteJob(ctx, job.MsgID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Printf("WARNING: failed to delete completed job %d: %v", job.MsgID, err)
		}
		stats.Processed++

		if w.onDone != nil {
			w.onDone(job)
		}
	}

	return stats, nil
}

// Run drains the queue every interval until the context is cancelled.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("Embedding worker started (interval %s)", interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("Embedding worker stopped")
			return
		case <-ticker.C:
			stats, err := w.Drain(ctx)
			if err != nil {
				log.Printf("ERROR: queue drain failed: %v", err)
				continue
			}
			if stats.Processed > 0 || stats.Failed > 0 || stats.DeadLettered > 0 {
				log.Printf("Queue drain: processed=%d failed=%d dead=%d",
					stats.Processed, stats.Failed, stats.DeadLettered)
			}
		}
	}
}

func (w *Worker) processJob(ctx context.Context, job types.QueueJob) error {
	_, err := w.indexer.IndexContent(ctx, job.TenantID, job.EntityType, job.EntityID, job.Content, nil)
	return err
}

// isValidationError reports whether the error can never succeed on retry.
func isValidationError(err error) bool {
	return errors.Is(err, ErrInvalidTenant) ||
		errors.Is(err, ErrInvalidEntity) ||
		errors.Is(err, ErrEmbeddingShape)
}
