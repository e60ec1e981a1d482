// Package executor runs analysis tasks against the shared language model
// session. It selects a supervision mode per task (short-lived runs tied to
// the caller, supervised runs that outlive it), tracks running tasks for
// cooperative cancellation, and optionally hands successful results to a
// persister.
package executor

import (
	"context"
	"time"

	"github.com/voxbookapp/voxbook-server/internal/domain"
	"github.com/voxbookapp/voxbook-server/internal/errors"
	"github.com/voxbookapp/voxbook-server/internal/model"
)

// Task is one unit of model-backed work. Implementations observe ctx
// between inference calls; cancellation is cooperative and surfaces as a
// cancelled TaskResult, not an error.
type Task interface {
	// ID identifies the task for cancellation and logging. At most one
	// task per ID runs at a time; a finished ID may be reused.
	ID() string
	// Kind names the task type for logs and events.
	Kind() string
	// EstimatedDuration is the planning estimate that drives supervision
	// mode selection. It is never enforced as a deadline.
	EstimatedDuration() time.Duration
	// Run executes the task on the given session. A result with a nil
	// error is the normal return, including for failed and cancelled runs;
	// a non-nil error means the task could not run at all.
	Run(ctx context.Context, session *model.Session, onProgress ProgressFunc) (*TaskResult, error)
}

// TaskResult is the outcome of one task run.
type TaskResult struct {
	TaskID   string
	Success  bool
	Duration time.Duration
	// ResultData carries task-specific output for persistence and events.
	ResultData map[string]any
	// Err is set when Success is false.
	Err *errors.Error
}

// TaskProgress is one progress tick from a running task.
type TaskProgress struct {
	TaskID  string
	Stage   string
	Current int
	Total   int
	Percent float64
}

// ProgressFunc receives progress ticks. Callbacks are synchronous and must
// be cheap. May be nil.
type ProgressFunc func(TaskProgress)

// CheckpointStore is the slice of the store the pipeline needs for
// mid-chapter resume. *store.Store satisfies it.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, cp *domain.Checkpoint) error
	// LoadCheckpoint returns (nil, nil) when no usable checkpoint exists:
	// absent, content hash mismatch, or unreadable record.
	LoadCheckpoint(ctx context.Context, bookID, chapterID, expectedHash string) (*domain.Checkpoint, error)
}
