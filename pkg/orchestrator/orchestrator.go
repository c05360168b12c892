package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/strandkit/strand/pkg/config"
	"github.com/strandkit/strand/pkg/observability"
)

// Handler executes one task body. The context is cancelled when the task
// is cancelled or the orchestrator shuts down; bodies must check it at
// natural boundaries. Execution is at-least-once, so bodies must be
// idempotent or key side effects on the task id.
type Handler func(ctx context.Context, task *Task) (any, error)

// SubmitOptions tunes one submission.
type SubmitOptions struct {
	// MaxAttempts overrides the configured default when positive.
	MaxAttempts int
}

// Orchestrator schedules durable tasks over a bounded worker pool.
type Orchestrator struct {
	cfg      config.OrchestratorConfig
	log      TaskLog
	handlers map[string]Handler
	queue    chan string
	logger   *slog.Logger
	tracer   trace.Tracer

	mu        sync.Mutex
	inflight  map[string]bool
	cancels   map[string]context.CancelFunc
	cancelled map[string]bool

	group   *errgroup.Group
	stop    context.CancelFunc
	started bool
}

func New(cfg config.OrchestratorConfig, log TaskLog, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		cfg:       cfg,
		log:       log,
		handlers:  make(map[string]Handler),
		queue:     make(chan string, cfg.QueueSize),
		logger:    logger,
		tracer:    observability.GetTracer("strand.orchestrator"),
		inflight:  make(map[string]bool),
		cancels:   make(map[string]context.CancelFunc),
		cancelled: make(map[string]bool),
	}

	o.RegisterHandler(KindPeriodicCleanup, func(ctx context.Context, task *Task) (any, error) {
		removed, err := o.log.DeleteTerminalBefore(ctx, time.Now().Add(-o.cfg.Retention))
		if err != nil {
			return nil, err
		}
		return map[string]any{"removed": removed}, nil
	})
	return o
}

// RegisterHandler binds a task kind to its body. Later registrations
// replace earlier ones.
func (o *Orchestrator) RegisterHandler(kind string, handler Handler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handlers[kind] = handler
}

// Start replays non-terminal tasks from the log, then launches the
// worker pool and the sweeper.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	o.started = true
	o.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	o.stop = cancel
	o.group, runCtx = errgroup.WithContext(runCtx)

	if err := o.replay(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to replay task log: %w", err)
	}

	for i := 0; i < o.cfg.Workers; i++ {
		o.group.Go(func() error {
			o.workerLoop(runCtx)
			return nil
		})
	}
	o.group.Go(func() error {
		o.sweepLoop(runCtx)
		return nil
	})

	o.logger.Info("orchestrator started",
		"workers", o.cfg.Workers, "queue_size", o.cfg.QueueSize, "max_attempts", o.cfg.MaxAttempts)
	return nil
}

// Stop halts workers and waits for in-progress tasks to settle.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	stop := o.stop
	o.mu.Unlock()
	if stop != nil {
		stop()
	}
	if o.group != nil {
		_ = o.group.Wait()
	}
}

// Submit durably records the task, then hands it to the dispatch queue.
// A full queue fails the submission; the record is rolled back so a
// retry starts clean.
func (o *Orchestrator) Submit(ctx context.Context, kind string, payload any, opts *SubmitOptions) (string, error) {
	o.mu.Lock()
	_, known := o.handlers[kind]
	o.mu.Unlock()
	if !known {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize payload: %w", err)
	}

	maxAttempts := o.cfg.MaxAttempts
	if opts != nil && opts.MaxAttempts > 0 {
		maxAttempts = opts.MaxAttempts
	}

	now := time.Now()
	task := &Task{
		ID:          uuid.New().String(),
		Kind:        kind,
		Payload:     data,
		State:       StatePending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := o.log.Append(ctx, task); err != nil {
		return "", fmt.Errorf("failed to persist task: %w", err)
	}
	observability.GetGlobalMetrics().RecordTaskTransition(ctx, kind, string(StatePending))

	if !o.enqueue(task.ID) {
		if delErr := o.log.Delete(ctx, task.ID); delErr != nil {
			o.logger.Error("failed to roll back unqueued task", "task_id", task.ID, "error", delErr)
		}
		return "", ErrQueueFull
	}
	return task.ID, nil
}

// Status returns the task record.
func (o *Orchestrator) Status(ctx context.Context, id string) (*Task, error) {
	return o.log.Get(ctx, id)
}

// Cancel transitions an idle task to CANCELLED directly; a running task
// gets its cancellation signal and settles at the next checkpoint.
// Returns false when the task is already terminal.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (bool, error) {
	ok, err := o.log.CancelIfIdle(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		o.clearInflight(id)
		task, _ := o.log.Get(ctx, id)
		if task != nil {
			observability.GetGlobalMetrics().RecordTaskTransition(ctx, task.Kind, string(StateCancelled))
		}
		return true, nil
	}

	task, err := o.log.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if task.State != StateRunning {
		return false, nil
	}

	o.mu.Lock()
	o.cancelled[id] = true
	cancel := o.cancels[id]
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	// The run may have settled between the state read and the flag landing,
	// in which case nothing will ever consume the flag. Re-check and drop it.
	if settled, err := o.log.Get(ctx, id); err == nil && settled.State.IsTerminal() {
		o.mu.Lock()
		delete(o.cancelled, id)
		o.mu.Unlock()
		return settled.State == StateCancelled, nil
	}
	return true, nil
}

// Wait blocks until the task reaches a terminal state. A non-positive
// timeout waits until the context ends.
func (o *Orchestrator) Wait(ctx context.Context, id string, timeout time.Duration) (*Task, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		task, err := o.log.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.State.IsTerminal() {
			return task, nil
		}

		select {
		case <-ctx.Done():
			if timeout > 0 {
				return nil, ErrWaitTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// replay reconstructs the dispatch queue from the log after a restart.
func (o *Orchestrator) replay(ctx context.Context) error {
	tasks, err := o.log.ListNonTerminal(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, task := range tasks {
		if task.State == StateRunning {
			// A RUNNING record at startup is an orphaned claim.
			o.revertExpiredLease(ctx, task, now)
		}
		o.enqueue(task.ID)
	}
	if len(tasks) > 0 {
		o.logger.Info("replayed non-terminal tasks", "count", len(tasks))
	}
	return nil
}

// enqueue marks the task in flight and hands it to the queue. Returns
// false when the queue is full.
func (o *Orchestrator) enqueue(id string) bool {
	o.mu.Lock()
	if o.inflight[id] {
		o.mu.Unlock()
		return true
	}
	o.inflight[id] = true
	o.mu.Unlock()

	select {
	case o.queue <- id:
		return true
	default:
		o.clearInflight(id)
		return false
	}
}

func (o *Orchestrator) clearInflight(id string) {
	o.mu.Lock()
	delete(o.inflight, id)
	o.mu.Unlock()
}

func (o *Orchestrator) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-o.queue:
			o.runTask(ctx, id)
		}
	}
}

func (o *Orchestrator) runTask(ctx context.Context, id string) {
	defer o.clearInflight(id)

	token := uuid.New().String()
	task, claimed, err := o.log.Claim(ctx, id, token, time.Now().Add(o.cfg.LeaseDuration))
	if err != nil {
		o.logger.Error("claim failed", "task_id", id, "error", err)
		return
	}
	if !claimed {
		return
	}

	metrics := observability.GetGlobalMetrics()
	metrics.RecordTaskTransition(ctx, task.Kind, string(StateRunning))

	spanCtx, span := o.tracer.Start(ctx, observability.SpanTaskExecution,
		trace.WithAttributes(
			attribute.String(observability.AttrTaskKind, task.Kind),
			attribute.String(observability.AttrTaskID, task.ID),
		),
	)
	defer span.End()

	o.mu.Lock()
	handler := o.handlers[task.Kind]
	o.mu.Unlock()

	start := time.Now()
	var result any
	var execErr error

	if handler == nil {
		execErr = fmt.Errorf("%w: %s", ErrUnknownKind, task.Kind)
	} else {
		taskCtx, cancelTask := context.WithCancel(spanCtx)
		o.mu.Lock()
		o.cancels[task.ID] = cancelTask
		o.mu.Unlock()

		renewDone := make(chan struct{})
		go o.renewLease(task.ID, token, renewDone)

		result, execErr = handler(taskCtx, task.Clone())

		close(renewDone)
		cancelTask()
		o.mu.Lock()
		delete(o.cancels, task.ID)
		o.mu.Unlock()
	}

	duration := time.Since(start)

	o.mu.Lock()
	wasCancelled := o.cancelled[task.ID]
	delete(o.cancelled, task.ID)
	o.mu.Unlock()

	// The final write must not be lost to a shutting-down context.
	writeCtx, cancelWrite := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelWrite()

	now := time.Now()
	task.ClaimToken = ""
	task.LeaseUntil = time.Time{}
	task.UpdatedAt = now

	switch {
	case wasCancelled:
		task.State = StateCancelled
		task.LastError = "cancelled"
		task.FinishedAt = now
		span.SetStatus(codes.Error, "cancelled")

	case execErr == nil:
		task.Attempts++
		task.State = StateCompleted
		task.FinishedAt = now
		if result != nil {
			if data, err := json.Marshal(result); err == nil {
				task.Result = data
			}
		}
		span.SetStatus(codes.Ok, "completed")

	default:
		task.Attempts++
		task.LastError = execErr.Error()
		span.RecordError(execErr)
		if task.Attempts >= task.MaxAttempts {
			task.State = StateFailed
			task.FinishedAt = now
			span.SetStatus(codes.Error, "failed")
		} else {
			delay := backoffDelay(o.cfg.BaseBackoff, o.cfg.CapBackoff, task.Attempts)
			task.State = StateRetrying
			task.NextAttemptAt = now.Add(delay)
			span.SetStatus(codes.Error, "retrying")
			o.logger.Warn("task failed, scheduling retry",
				"task_id", task.ID, "kind", task.Kind, "attempts", task.Attempts, "delay", delay, "error", execErr)
		}
	}

	// The write lands only while this worker still owns the claim. If the
	// sweeper reclaimed the task after a lease expiry, another worker owns
	// it now and this outcome is stale.
	ok, err := o.log.UpdateClaimed(writeCtx, task, token)
	if err != nil {
		o.logger.Error("failed to record task outcome", "task_id", task.ID, "error", err)
		return
	}
	if !ok {
		o.logger.Warn("dropping outcome of lost claim",
			"task_id", task.ID, "kind", task.Kind, "state", task.State)
		return
	}
	metrics.RecordTaskTransition(writeCtx, task.Kind, string(task.State))
	if task.State.IsTerminal() {
		metrics.RecordTaskDuration(writeCtx, task.Kind, duration, execErr)
	}
}

// renewLease extends the claim periodically until the task body returns.
func (o *Orchestrator) renewLease(id, token string, done <-chan struct{}) {
	interval := o.cfg.LeaseDuration / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			ok, err := o.log.RenewLease(ctx, id, token, time.Now().Add(o.cfg.LeaseDuration))
			cancel()
			if err != nil {
				o.logger.Warn("lease renewal failed", "task_id", id, "error", err)
			} else if !ok {
				return
			}
		}
	}
}

func (o *Orchestrator) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sweep(ctx)
		}
	}
}

// sweep re-dispatches due retries, reclaims expired leases, and prunes
// old terminal records.
func (o *Orchestrator) sweep(ctx context.Context) {
	tasks, err := o.log.ListNonTerminal(ctx)
	if err != nil {
		o.logger.Error("sweep failed to list tasks", "error", err)
		return
	}

	now := time.Now()
	for _, task := range tasks {
		o.mu.Lock()
		busy := o.inflight[task.ID]
		o.mu.Unlock()
		if busy {
			continue
		}

		switch task.State {
		case StatePending:
			o.enqueue(task.ID)
		case StateRetrying:
			if !task.NextAttemptAt.After(now) {
				o.enqueue(task.ID)
			}
		case StateRunning:
			if task.LeaseUntil.Before(now) {
				o.revertExpiredLease(ctx, task, now)
				o.enqueue(task.ID)
			}
		}
	}

	if _, err := o.log.DeleteTerminalBefore(ctx, now.Add(-o.cfg.Retention)); err != nil {
		o.logger.Error("retention cleanup failed", "error", err)
	}
	observability.GetGlobalMetrics().SetQueueDepth(ctx, int64(len(o.queue)))
}

// revertExpiredLease returns an orphaned RUNNING task to the claimable
// pool: PENDING when it never finished an attempt, RETRYING otherwise.
func (o *Orchestrator) revertExpiredLease(ctx context.Context, task *Task, now time.Time) {
	staleToken := task.ClaimToken
	if task.Attempts == 0 {
		task.State = StatePending
	} else {
		task.State = StateRetrying
		task.NextAttemptAt = now
	}
	task.ClaimToken = ""
	task.LeaseUntil = time.Time{}
	task.UpdatedAt = now

	// Guarded on the stale token so a worker that settles the task between
	// the sweep listing and this write is not overwritten.
	ok, err := o.log.UpdateClaimed(ctx, task, staleToken)
	if err != nil {
		o.logger.Error("failed to revert expired lease", "task_id", task.ID, "error", err)
		return
	}
	if !ok {
		return
	}
	observability.GetGlobalMetrics().RecordTaskTransition(ctx, task.Kind, string(task.State))
	o.logger.Warn("reclaimed expired lease", "task_id", task.ID, "kind", task.Kind, "state", task.State)
}
