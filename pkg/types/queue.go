package types

import "time"

// QueueJob is one pending embedding job in the durable queue. Jobs are
// delivered at-least-once: a read hides the job for the visibility timeout,
// and only a successful index deletes it.
type QueueJob struct {
	// MsgID is assigned by the queue backend on enqueue.
	MsgID int64 `json:"msg_id"`

	TenantID   string     `json:"tenant_id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`

	// Content is the pre-built text blob, captured at enqueue time so the
	// worker never has to call back into the product layer.
	Content string `json:"content"`

	EnqueuedAt time.Time `json:"enqueued_at"`

	// ReadCount is how many times the job has been handed to a worker.
	// Jobs past the retry bound are dead-lettered instead of re-read.
	ReadCount int `json:"read_count"`
}

// DeadJob is a queue job that exhausted its retry budget. Dead jobs stay
// visible for operator inspection; they are never retried automatically.
type DeadJob struct {
	QueueJob
	FailedAt  time.Time `json:"failed_at"`
	LastError string    `json:"last_error"`
}
