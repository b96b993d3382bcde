package storage

import "errors"

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// DrainStats reports the outcome of one queue drain pass. A single job
// failure never aborts the batch, so partial results are the normal case.
type DrainStats struct {
	// Processed is the number of jobs indexed and deleted.
	Processed int `json:"processed"`

	// Failed is the number of jobs left in the queue for retry.
	Failed int `json:"failed"`

	// DeadLettered is the number of jobs moved to the dead-letter table
	// after exhausting their retry budget.
	DeadLettered int `json:"dead_lettered"`
}
