package executor

import "context"

// ExecutionMode describes how a task's lifetime relates to its caller's.
type ExecutionMode string

const (
	// ModeShortLived ties the work to the caller's context; caller
	// cancellation aborts it.
	ModeShortLived ExecutionMode = "short_lived"
	// ModeSupervised detaches the work from the caller; it stops only
	// through task cancellation or process exit.
	ModeSupervised ExecutionMode = "supervised"
)

// ExecutionContext launches task functions under a supervision mode. The
// pipeline never depends on the concrete mechanism, so an alternative
// runner can slot in without touching task code.
type ExecutionContext interface {
	RunShortLived(ctx context.Context, fn func(context.Context))
	RunSupervised(ctx context.Context, fn func(context.Context))
}

// goroutineRunner is the default mechanism: plain goroutines, with
// supervised work detached via context.WithoutCancel.
type goroutineRunner struct{}

// NewExecutionContext returns the default goroutine-based mechanism.
func NewExecutionContext() ExecutionContext {
	return goroutineRunner{}
}

func (goroutineRunner) RunShortLived(ctx context.Context, fn func(context.Context)) {
	go fn(ctx)
}

func (goroutineRunner) RunSupervised(ctx context.Context, fn func(context.Context)) {
	go fn(context.WithoutCancel(ctx))
}
