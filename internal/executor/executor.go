package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/voxbookapp/voxbook-server/internal/config"
	"github.com/voxbookapp/voxbook-server/internal/errors"
	"github.com/voxbookapp/voxbook-server/internal/model"
)

// supervisedHeartbeat is how often a supervised execution logs liveness.
const supervisedHeartbeat = 30 * time.Second

// Options adjusts one execution.
type Options struct {
	// ForceShortLived pins the run to the caller's lifetime regardless of
	// the duration estimate. Takes precedence over ForceSupervised.
	ForceShortLived bool
	// ForceSupervised detaches the run regardless of the estimate.
	ForceSupervised bool
	// AutoPersist hands a successful result to the configured Persister.
	AutoPersist bool
}

// ExecutionResult wraps a task's result with execution metadata.
type ExecutionResult struct {
	TaskResult     *TaskResult
	Mode           ExecutionMode
	PersistedItems int
}

// Persister writes a successful task's ResultData to durable storage and
// reports how many items it stored.
type Persister interface {
	Persist(ctx context.Context, result *TaskResult) (int, error)
}

// Executor runs tasks against the shared model session. The session is
// acquired lazily on the first task and that interest is held until
// Release, so the model survives between chapters of the same book without
// each task paying the load cost.
type Executor struct {
	session *model.Session
	runner  ExecutionContext
	logger  *slog.Logger

	supervisedThreshold time.Duration

	persisterMu sync.RWMutex
	persister   Persister

	sessionMu     sync.Mutex
	holdsInterest bool

	mu     sync.Mutex
	active map[string]*taskHandle
}

// taskHandle lets Cancel reach a running task before its goroutine has
// built its context.
type taskHandle struct {
	stop     chan struct{}
	stopOnce sync.Once
}

func (h *taskHandle) requestStop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// New creates an executor. runner may be nil to use the default goroutine
// mechanism.
func New(session *model.Session, runner ExecutionContext, cfg config.AnalysisConfig, logger *slog.Logger) *Executor {
	if runner == nil {
		runner = NewExecutionContext()
	}

	threshold := cfg.SupervisedThreshold
	if threshold <= 0 {
		threshold = 60 * time.Second
	}

	return &Executor{
		session:             session,
		runner:              runner,
		logger:              logger,
		supervisedThreshold: threshold,
		active:              make(map[string]*taskHandle),
	}
}

// SetPersister wires the result persister. Set after construction because
// the persister (the analysis service) is itself built around the executor.
func (e *Executor) SetPersister(p Persister) {
	e.persisterMu.Lock()
	defer e.persisterMu.Unlock()
	e.persister = p
}

// Execute runs the task to completion and returns its result. Forced mode
// flags win; otherwise tasks estimated to outlast the supervised threshold
// run detached from the caller. Execute itself always blocks until the task
// finishes; the mode governs what the task's context is tied to.
func (e *Executor) Execute(ctx context.Context, task Task, opts Options, onProgress ProgressFunc) (*ExecutionResult, error) {
	mode := e.selectMode(task, opts)

	handle := &taskHandle{stop: make(chan struct{})}
	if err := e.register(task.ID(), handle); err != nil {
		return nil, err
	}
	defer e.unregister(task.ID())

	e.logger.Info("executing task",
		"task_id", task.ID(),
		"kind", task.Kind(),
		"mode", string(mode),
		"estimated", task.EstimatedDuration().String(),
	)

	resultCh := make(chan *TaskResult, 1)
	run := func(workCtx context.Context) {
		taskCtx, cancel := context.WithCancel(workCtx)
		defer cancel()
		go func() {
			select {
			case <-handle.stop:
				cancel()
			case <-taskCtx.Done():
			}
		}()
		resultCh <- e.runTask(taskCtx, task, onProgress)
	}

	if mode == ModeSupervised {
		e.runner.RunSupervised(ctx, run)
	} else {
		e.runner.RunShortLived(ctx, run)
	}

	result := e.wait(task, mode, resultCh)

	persisted := 0
	if opts.AutoPersist && result.Success {
		persisted = e.persist(ctx, task, result)
	}

	if result.Success {
		e.logger.Info("task completed",
			"task_id", task.ID(),
			"duration", result.Duration.String(),
			"persisted", persisted,
		)
	} else {
		e.logger.Warn("task did not complete",
			"task_id", task.ID(),
			"duration", result.Duration.String(),
			"error", result.Err,
		)
	}

	return &ExecutionResult{TaskResult: result, Mode: mode, PersistedItems: persisted}, nil
}

// Cancel requests cooperative cancellation of a running task. The task
// observes it between inference calls and reports a cancelled result within
// one batch's processing time.
func (e *Executor) Cancel(taskID string) error {
	e.mu.Lock()
	handle, ok := e.active[taskID]
	e.mu.Unlock()

	if !ok {
		return errors.NotFoundf("no running task %q", taskID)
	}

	handle.requestStop()
	e.logger.Info("task cancellation requested", "task_id", taskID)
	return nil
}

// ActiveTasks returns the IDs of currently running tasks, sorted.
func (e *Executor) ActiveTasks() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsModelLoaded reports whether the backend is currently ready.
func (e *Executor) IsModelLoaded() bool {
	return e.session.IsLoaded()
}

// Release drops the executor's cached session interest. Idempotent. The
// backend itself unloads only when no other holder (the analysis queue, an
// ad hoc task caller) still depends on it.
func (e *Executor) Release(ctx context.Context) error {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()

	if !e.holdsInterest {
		return nil
	}
	e.holdsInterest = false
	return e.session.Release(ctx)
}

func (e *Executor) selectMode(task Task, opts Options) ExecutionMode {
	switch {
	case opts.ForceShortLived:
		return ModeShortLived
	case opts.ForceSupervised:
		return ModeSupervised
	case task.EstimatedDuration() > e.supervisedThreshold:
		return ModeSupervised
	default:
		return ModeShortLived
	}
}

func (e *Executor) register(taskID string, h *taskHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, running := e.active[taskID]; running {
		return errors.Conflict(fmt.Sprintf("task %q is already running", taskID))
	}
	e.active[taskID] = h
	return nil
}

func (e *Executor) unregister(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, taskID)
}

// runTask acquires the session and executes the task, normalizing every
// failure path into a TaskResult.
func (e *Executor) runTask(ctx context.Context, task Task, onProgress ProgressFunc) *TaskResult {
	start := time.Now()

	if err := e.ensureSession(ctx); err != nil {
		return &TaskResult{
			TaskID:   task.ID(),
			Success:  false,
			Duration: time.Since(start),
			Err:      toDomainError(err, errors.CodeModelUnavailable, "acquire model session"),
		}
	}

	result, err := task.Run(ctx, e.session, onProgress)
	switch {
	case err != nil:
		result = &TaskResult{
			TaskID:  task.ID(),
			Success: false,
			Err:     toDomainError(err, errors.CodeInternal, "task execution failed"),
		}
	case result == nil:
		result = &TaskResult{
			TaskID:  task.ID(),
			Success: false,
			Err:     errors.Internal("task returned no result"),
		}
	}

	if result.TaskID == "" {
		result.TaskID = task.ID()
	}
	result.Duration = time.Since(start)
	return result
}

// wait blocks for the task's result. Supervised executions log a liveness
// heartbeat while they run.
func (e *Executor) wait(task Task, mode ExecutionMode, resultCh <-chan *TaskResult) *TaskResult {
	if mode != ModeSupervised {
		return <-resultCh
	}

	ticker := time.NewTicker(supervisedHeartbeat)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case result := <-resultCh:
			return result
		case <-ticker.C:
			e.logger.Info("supervised task running",
				"task_id", task.ID(),
				"kind", task.Kind(),
				"elapsed", time.Since(start).Round(time.Second).String(),
			)
		}
	}
}

func (e *Executor) persist(ctx context.Context, task Task, result *TaskResult) int {
	e.persisterMu.RLock()
	p := e.persister
	e.persisterMu.RUnlock()

	if p == nil {
		e.logger.Warn("auto-persist requested but no persister configured", "task_id", task.ID())
		return 0
	}

	// Completed work must be stored even when the caller has gone away.
	n, err := p.Persist(context.WithoutCancel(ctx), result)
	if err != nil {
		result.Success = false
		result.Err = toDomainError(err, errors.CodeInternal, "persist task results")
	}
	return n
}

func (e *Executor) ensureSession(ctx context.Context) error {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()

	if e.holdsInterest {
		return nil
	}
	if err := e.session.Acquire(ctx); err != nil {
		return err
	}
	e.holdsInterest = true
	return nil
}

// toDomainError returns err's domain form, wrapping foreign errors under
// the fallback code.
func toDomainError(err error, fallback errors.Code, msg string) *errors.Error {
	var de *errors.Error
	if errors.As(err, &de) {
		return de
	}
	return errors.Wrap(err, fallback, msg)
}
