package handlers

import (
	"log"
	"net/http"

	"github.com/prodexhq/prodex/internal/indexer"
	"github.com/prodexhq/prodex/internal/storage"
	"github.com/prodexhq/prodex/pkg/types"
)

// QueueHandler exposes embedding queue inspection and the manual drain
// entry point used by tests and backfills.
type QueueHandler struct {
	queue  storage.JobQueue
	worker *indexer.Worker
}

// NewQueueHandler creates a new QueueHandler instance.
func NewQueueHandler(queue storage.JobQueue, worker *indexer.Worker) *QueueHandler {
	return &QueueHandler{queue: queue, worker: worker}
}

// GetQueue handles GET /api/queue — queue depth and dead letters.
func (h *QueueHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	depth, err := h.queue.QueueDepth(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read queue depth", err)
		return
	}

	dead, err := h.queue.DeadLetters(r.Context(), 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read dead letters", err)
		return
	}
	if dead == nil {
		dead = []types.DeadJob{}
	}

	respondJSON(w, http.StatusOK, QueueStatsResponse{
		Depth:       depth,
		DeadLetters: dead,
	})
}

// Drain handles POST /api/queue/drain — one synchronous drain pass.
func (h *QueueHandler) Drain(w http.ResponseWriter, r *http.Request) {
	stats, err := h.worker.Drain(r.Context())
	if err != nil {
		log.Printf("ERROR: manual queue drain failed: %v", err)
		respondError(w, http.StatusInternalServerError, "drain failed", err)
		return
	}

	respondJSON(w, http.StatusOK, DrainResponse{
		Processed:    stats.Processed,
		Failed:       stats.Failed,
		DeadLettered: stats.DeadLettered,
	})
}
