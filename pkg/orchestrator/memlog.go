package orchestrator

import (
	"context"
	"sync"
	"time"
)

// MemoryLog keeps task records in process memory. Restart durability is
// the SQL log's job; this one serves tests and throwaway runs.
type MemoryLog struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{tasks: make(map[string]*Task)}
}

func (l *MemoryLog) Append(ctx context.Context, task *Task) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks[task.ID] = task.Clone()
	return nil
}

func (l *MemoryLog) Get(ctx context.Context, id string) (*Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	task, ok := l.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return task.Clone(), nil
}

func (l *MemoryLog) Update(ctx context.Context, task *Task) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tasks[task.ID]; !ok {
		return ErrTaskNotFound
	}
	l.tasks[task.ID] = task.Clone()
	return nil
}

func (l *MemoryLog) UpdateClaimed(ctx context.Context, task *Task, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.tasks[task.ID]
	if !ok {
		return false, ErrTaskNotFound
	}
	if stored.State != StateRunning || stored.ClaimToken != token {
		return false, nil
	}
	l.tasks[task.ID] = task.Clone()
	return true, nil
}

func (l *MemoryLog) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.tasks, id)
	return nil
}

func (l *MemoryLog) Claim(ctx context.Context, id, token string, leaseUntil time.Time) (*Task, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	task, ok := l.tasks[id]
	if !ok {
		return nil, false, ErrTaskNotFound
	}

	now := time.Now()
	claimable := task.State == StatePending ||
		(task.State == StateRetrying && !task.NextAttemptAt.After(now))
	if !claimable {
		return nil, false, nil
	}

	task.State = StateRunning
	task.ClaimToken = token
	task.LeaseUntil = leaseUntil
	task.UpdatedAt = now
	return task.Clone(), true, nil
}

func (l *MemoryLog) RenewLease(ctx context.Context, id, token string, leaseUntil time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	task, ok := l.tasks[id]
	if !ok || task.State != StateRunning || task.ClaimToken != token {
		return false, nil
	}
	task.LeaseUntil = leaseUntil
	task.UpdatedAt = time.Now()
	return true, nil
}

func (l *MemoryLog) CancelIfIdle(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	task, ok := l.tasks[id]
	if !ok {
		return false, ErrTaskNotFound
	}
	if task.State != StatePending && task.State != StateRetrying {
		return false, nil
	}

	now := time.Now()
	task.State = StateCancelled
	task.LastError = "cancelled"
	task.UpdatedAt = now
	task.FinishedAt = now
	return true, nil
}

func (l *MemoryLog) ListNonTerminal(ctx context.Context) ([]*Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*Task
	for _, task := range l.tasks {
		if !task.State.IsTerminal() {
			out = append(out, task.Clone())
		}
	}
	return out, nil
}

func (l *MemoryLog) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, task := range l.tasks {
		if task.State.IsTerminal() && !task.FinishedAt.IsZero() && task.FinishedAt.Before(cutoff) {
			delete(l.tasks, id)
			removed++
		}
	}
	return removed, nil
}

func (l *MemoryLog) Close() error { return nil }
