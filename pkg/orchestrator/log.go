package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/strandkit/strand/pkg/config"
)

// TaskLog is the durable task store. Claim and CancelIfIdle are the
// atomic transitions; everything else is a plain write-back by the
// current owner.
type TaskLog interface {
	// Append stores a new task record. The task must be PENDING.
	Append(ctx context.Context, task *Task) error

	Get(ctx context.Context, id string) (*Task, error)

	// Update writes the task back unconditionally. Callers must know the
	// task is idle; claim holders use UpdateClaimed instead.
	Update(ctx context.Context, task *Task) error

	// UpdateClaimed writes the task back only while the stored record is
	// still RUNNING under the given claim token. Returns false when the
	// claim was lost, so a stale worker's outcome is dropped instead of
	// overwriting the new owner's state.
	UpdateClaimed(ctx context.Context, task *Task, token string) (bool, error)

	// Delete removes a record outright. Used to roll back a submission
	// that could not be enqueued.
	Delete(ctx context.Context, id string) error

	// Claim atomically transitions a PENDING task, or a RETRYING task
	// whose backoff has elapsed, to RUNNING under the given token and
	// lease. Returns false when the task is not claimable.
	Claim(ctx context.Context, id, token string, leaseUntil time.Time) (*Task, bool, error)

	// RenewLease extends the lease while the claim token still matches.
	RenewLease(ctx context.Context, id, token string, leaseUntil time.Time) (bool, error)

	// CancelIfIdle atomically transitions a PENDING or RETRYING task to
	// CANCELLED. Returns false when the task was already claimed or
	// terminal.
	CancelIfIdle(ctx context.Context, id string) (bool, error)

	// ListNonTerminal returns every task still in flight, for replay
	// and lease sweeping.
	ListNonTerminal(ctx context.Context) ([]*Task, error)

	// DeleteTerminalBefore removes terminal tasks finished before the
	// cutoff, returning how many were removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}

// NewTaskLog builds the configured backend.
func NewTaskLog(cfg config.StoreConfig, logger *slog.Logger) (TaskLog, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryLog(), nil
	case "sqlite", "postgres", "mysql":
		return NewSQLLog(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown task log backend: %s", cfg.Backend)
	}
}
