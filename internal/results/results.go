// Package results defines the per-task outcome model and the narrow store
// contract the pipeline reads and writes through. A task result is created
// pending at submit time and moves to exactly one terminal state; the store
// enforces that transition so at-least-once queue redelivery can never
// corrupt an outcome.
package results

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status of one delivery task.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether s permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// TaskResult is the outcome record for one delivery unit.
type TaskResult struct {
	TaskID    string    `json:"task_id"`
	BatchID   string    `json:"batch_id"`
	Recipient string    `json:"recipient"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Handle identifies a submitted batch: its id plus the task ids in
// recipient-submission order. Read-only after submit.
type Handle struct {
	BatchID    string    `json:"batch_id"`
	TaskIDs    []string  `json:"task_ids"`
	Recipients []string  `json:"recipients"`
	CreatedAt  time.Time `json:"created_at"`
}

var (
	// ErrNotFound: no result exists under the task id.
	ErrNotFound = errors.New("task result not found")

	// ErrBatchNotFound: no handle exists under the batch id.
	ErrBatchNotFound = errors.New("batch not found")
)

// ConflictError reports a terminal result changing after being set. This
// is an internal invariant violation, logged as a defect and never
// surfaced to callers as a normal delivery failure.
type ConflictError struct {
	TaskID    string
	Existing  Status
	Attempted Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("result store inconsistency: task %s already %s, refused write of %s",
		e.TaskID, e.Existing, e.Attempted)
}

// Store is the result store contract. Implementations must make Complete
// a compare-and-set: pending -> terminal succeeds, a repeated identical
// terminal write is a no-op, a conflicting one returns *ConflictError.
type Store interface {
	// InitBatch persists the handle and creates every task result as
	// pending. Called once per submission, before anything is enqueued.
	InitBatch(ctx context.Context, h Handle, pending []TaskResult) error

	// Handle returns the handle for a batch id, or ErrBatchNotFound.
	Handle(ctx context.Context, batchID string) (Handle, error)

	// Get returns the result for a task id, or ErrNotFound.
	Get(ctx context.Context, taskID string) (TaskResult, error)

	// Complete writes the terminal status for a task.
	Complete(ctx context.Context, taskID string, status Status, errDetail string) error

	// DeleteBatch removes the handle and every task result it references.
	// Used to roll back a submission whose enqueue failed.
	DeleteBatch(ctx context.Context, h Handle) error
}
