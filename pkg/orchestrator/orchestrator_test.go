package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandkit/strand/pkg/config"
)

func testConfig() config.OrchestratorConfig {
	return config.OrchestratorConfig{
		Workers:       2,
		QueueSize:     16,
		MaxAttempts:   3,
		BaseBackoff:   100 * time.Millisecond,
		CapBackoff:    time.Second,
		LeaseDuration: 5 * time.Second,
		SweepInterval: 20 * time.Millisecond,
		Retention:     time.Hour,
	}
}

// recordingLog wraps a MemoryLog and captures every state a task record
// passes through.
type recordingLog struct {
	*MemoryLog
	mu     sync.Mutex
	states map[string][]TaskState
}

func newRecordingLog() *recordingLog {
	return &recordingLog{MemoryLog: NewMemoryLog(), states: make(map[string][]TaskState)}
}

func (l *recordingLog) record(id string, state TaskState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states[id] = append(l.states[id], state)
}

func (l *recordingLog) history(id string) []TaskState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]TaskState(nil), l.states[id]...)
}

func (l *recordingLog) Append(ctx context.Context, task *Task) error {
	if err := l.MemoryLog.Append(ctx, task); err != nil {
		return err
	}
	l.record(task.ID, task.State)
	return nil
}

func (l *recordingLog) Update(ctx context.Context, task *Task) error {
	if err := l.MemoryLog.Update(ctx, task); err != nil {
		return err
	}
	l.record(task.ID, task.State)
	return nil
}

func (l *recordingLog) UpdateClaimed(ctx context.Context, task *Task, token string) (bool, error) {
	ok, err := l.MemoryLog.UpdateClaimed(ctx, task, token)
	if ok {
		l.record(task.ID, task.State)
	}
	return ok, err
}

func (l *recordingLog) Claim(ctx context.Context, id, token string, leaseUntil time.Time) (*Task, bool, error) {
	task, ok, err := l.MemoryLog.Claim(ctx, id, token, leaseUntil)
	if ok {
		l.record(id, StateRunning)
	}
	return task, ok, err
}

func startOrchestrator(t *testing.T, cfg config.OrchestratorConfig, log TaskLog) *Orchestrator {
	t.Helper()
	o := New(cfg, log, nil)
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(o.Stop)
	return o
}

func TestOrchestrator_CompletesTask(t *testing.T) {
	o := startOrchestrator(t, testConfig(), NewMemoryLog())

	var got atomic.Value
	o.RegisterHandler("echo", func(ctx context.Context, task *Task) (any, error) {
		var payload map[string]string
		require.NoError(t, unmarshalPayload(task, &payload))
		got.Store(payload["input"])
		return map[string]string{"output": payload["input"]}, nil
	})

	id, err := o.Submit(context.Background(), "echo", map[string]string{"input": "hello"}, nil)
	require.NoError(t, err)

	task, err := o.Wait(context.Background(), id, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, task.State)
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, "hello", got.Load())
	assert.Contains(t, string(task.Result), "hello")
	assert.False(t, task.FinishedAt.IsZero())
}

func TestOrchestrator_RetriesThenSucceeds(t *testing.T) {
	log := newRecordingLog()
	o := startOrchestrator(t, testConfig(), log)

	var runs atomic.Int32
	var timesMu sync.Mutex
	var runTimes []time.Time

	o.RegisterHandler("flaky", func(ctx context.Context, task *Task) (any, error) {
		timesMu.Lock()
		runTimes = append(runTimes, time.Now())
		timesMu.Unlock()

		if runs.Add(1) < 3 {
			return nil, errors.New("transient failure")
		}
		return "done", nil
	})

	id, err := o.Submit(context.Background(), "flaky", nil, nil)
	require.NoError(t, err)

	task, err := o.Wait(context.Background(), id, 10*time.Second)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, task.State)
	assert.Equal(t, 3, task.Attempts)
	assert.Equal(t, int32(3), runs.Load())

	wantStates := []TaskState{
		StatePending,
		StateRunning, StateRetrying,
		StateRunning, StateRetrying,
		StateRunning, StateCompleted,
	}
	assert.Equal(t, wantStates, log.history(id))

	// Backoff doubles per failed attempt; the jitter floor is 80% of the
	// nominal delay.
	timesMu.Lock()
	defer timesMu.Unlock()
	require.Len(t, runTimes, 3)
	assert.GreaterOrEqual(t, runTimes[1].Sub(runTimes[0]), 80*time.Millisecond)
	assert.GreaterOrEqual(t, runTimes[2].Sub(runTimes[1]), 160*time.Millisecond)
}

func TestOrchestrator_ExhaustsAttempts(t *testing.T) {
	o := startOrchestrator(t, testConfig(), NewMemoryLog())

	var runs atomic.Int32
	o.RegisterHandler("doomed", func(ctx context.Context, task *Task) (any, error) {
		runs.Add(1)
		return nil, errors.New("permanent failure")
	})

	id, err := o.Submit(context.Background(), "doomed", nil, nil)
	require.NoError(t, err)

	task, err := o.Wait(context.Background(), id, 10*time.Second)
	require.NoError(t, err)

	assert.Equal(t, StateFailed, task.State)
	assert.Equal(t, 3, task.Attempts)
	assert.Equal(t, int32(3), runs.Load())
	assert.Equal(t, "permanent failure", task.LastError)
	assert.LessOrEqual(t, task.Attempts, task.MaxAttempts)
}

func TestOrchestrator_SubmitMaxAttemptsOverride(t *testing.T) {
	o := startOrchestrator(t, testConfig(), NewMemoryLog())

	var runs atomic.Int32
	o.RegisterHandler("doomed", func(ctx context.Context, task *Task) (any, error) {
		runs.Add(1)
		return nil, errors.New("nope")
	})

	id, err := o.Submit(context.Background(), "doomed", nil, &SubmitOptions{MaxAttempts: 1})
	require.NoError(t, err)

	task, err := o.Wait(context.Background(), id, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, task.State)
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, int32(1), runs.Load())
}

func TestOrchestrator_CancelRunningTask(t *testing.T) {
	o := startOrchestrator(t, testConfig(), NewMemoryLog())

	started := make(chan struct{})
	o.RegisterHandler("slow", func(ctx context.Context, task *Task) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	id, err := o.Submit(context.Background(), "slow", nil, nil)
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never started")
	}

	ok, err := o.Cancel(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)

	task, err := o.Wait(context.Background(), id, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, task.State)
	assert.Equal(t, "cancelled", task.LastError)
	assert.Equal(t, 0, task.Attempts)
}

func TestOrchestrator_CancelIdleTask(t *testing.T) {
	log := NewMemoryLog()
	o := New(testConfig(), log, nil)
	o.RegisterHandler("noop", func(ctx context.Context, task *Task) (any, error) { return nil, nil })

	// Not started, so the submission sits in the queue unclaimed.
	id, err := o.Submit(context.Background(), "noop", nil, nil)
	require.NoError(t, err)

	ok, err := o.Cancel(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)

	task, err := o.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, task.State)
	assert.Equal(t, "cancelled", task.LastError)
}

func TestOrchestrator_CancelTerminalTaskReturnsFalse(t *testing.T) {
	o := startOrchestrator(t, testConfig(), NewMemoryLog())
	o.RegisterHandler("noop", func(ctx context.Context, task *Task) (any, error) { return nil, nil })

	id, err := o.Submit(context.Background(), "noop", nil, nil)
	require.NoError(t, err)
	_, err = o.Wait(context.Background(), id, 5*time.Second)
	require.NoError(t, err)

	ok, err := o.Cancel(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrchestrator_QueueFullRollsBackRecord(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1
	cfg.SweepInterval = time.Hour

	log := NewMemoryLog()
	o := startOrchestrator(t, cfg, log)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	o.RegisterHandler("block", func(ctx context.Context, task *Task) (any, error) {
		started <- struct{}{}
		<-release
		return nil, nil
	})
	defer close(release)

	// First submission occupies the worker, the second fills the queue.
	_, err := o.Submit(context.Background(), "block", nil, nil)
	require.NoError(t, err)
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never picked up the first task")
	}
	_, err = o.Submit(context.Background(), "block", nil, nil)
	require.NoError(t, err)

	id, err := o.Submit(context.Background(), "block", nil, nil)
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Empty(t, id)

	// The durable record was rolled back, so nothing can replay it.
	tasks, err := log.ListNonTerminal(context.Background())
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestOrchestrator_SubmitUnknownKind(t *testing.T) {
	o := New(testConfig(), NewMemoryLog(), nil)
	_, err := o.Submit(context.Background(), "nope", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestOrchestrator_ReplayResumesPendingTasks(t *testing.T) {
	log := NewMemoryLog()
	now := time.Now()

	pending := &Task{
		ID: "t-pending", Kind: "noop", State: StatePending,
		MaxAttempts: 3, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, log.Append(context.Background(), pending))

	// An orphaned claim from a crashed process, no finished attempts yet.
	orphan := &Task{
		ID: "t-orphan", Kind: "noop", State: StateRunning,
		MaxAttempts: 3, ClaimToken: "stale",
		LeaseUntil: now.Add(-time.Minute), CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, log.Append(context.Background(), orphan))

	o := New(testConfig(), log, nil)
	var runs atomic.Int32
	o.RegisterHandler("noop", func(ctx context.Context, task *Task) (any, error) {
		runs.Add(1)
		return nil, nil
	})
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(o.Stop)

	for _, id := range []string{"t-pending", "t-orphan"} {
		task, err := o.Wait(context.Background(), id, 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, task.State)
	}
	assert.Equal(t, int32(2), runs.Load())
}

func TestOrchestrator_ExpiredLeaseRevertsToRetrying(t *testing.T) {
	log := NewMemoryLog()
	now := time.Now()

	// One attempt already finished, so the reclaim goes through RETRYING.
	orphan := &Task{
		ID: "t-lease", Kind: "noop", State: StateRunning,
		Attempts: 1, MaxAttempts: 3, ClaimToken: "stale",
		LeaseUntil: now.Add(-time.Minute), CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, log.Append(context.Background(), orphan))

	o := New(testConfig(), log, nil)
	o.revertExpiredLease(context.Background(), orphan.Clone(), now)

	task, err := log.Get(context.Background(), "t-lease")
	require.NoError(t, err)
	assert.Equal(t, StateRetrying, task.State)
	assert.Empty(t, task.ClaimToken)
	assert.Equal(t, 1, task.Attempts)
}

func TestOrchestrator_RevertedClaimRejectsStaleOutcome(t *testing.T) {
	log := NewMemoryLog()
	now := time.Now()

	task := &Task{
		ID: "t-race", Kind: "noop", State: StatePending,
		MaxAttempts: 3, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, log.Append(context.Background(), task))

	// First worker claims, then stalls past its lease.
	first, ok, err := log.Claim(context.Background(), "t-race", "worker-a", now.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	// The sweeper reclaims the expired lease and a second worker takes over.
	o := New(testConfig(), log, nil)
	o.revertExpiredLease(context.Background(), first.Clone(), time.Now())
	second, ok, err := log.Claim(context.Background(), "t-race", "worker-b", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	// The stalled worker wakes up and tries to settle under its old token.
	stale := first.Clone()
	stale.State = StateCompleted
	stale.Attempts = 1
	stale.ClaimToken = ""
	stale.FinishedAt = time.Now()
	ok, err = log.UpdateClaimed(context.Background(), stale, "worker-a")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := log.Get(context.Background(), "t-race")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, got.State)
	assert.Equal(t, "worker-b", got.ClaimToken)

	// The current owner's outcome still lands.
	settled := second.Clone()
	settled.State = StateCompleted
	settled.Attempts = 1
	settled.ClaimToken = ""
	settled.FinishedAt = time.Now()
	ok, err = log.UpdateClaimed(context.Background(), settled, "worker-b")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = log.Get(context.Background(), "t-race")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
}

// staleViewLog reports a terminal task as RUNNING exactly once, modeling a
// task that settles between a state read and the follow-up action.
type staleViewLog struct {
	*MemoryLog
	flipped atomic.Bool
}

func (l *staleViewLog) Get(ctx context.Context, id string) (*Task, error) {
	task, err := l.MemoryLog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.State.IsTerminal() && !l.flipped.Swap(true) {
		task.State = StateRunning
	}
	return task, nil
}

func TestOrchestrator_CancelRaceWithSettleLeavesNoFlag(t *testing.T) {
	log := &staleViewLog{MemoryLog: NewMemoryLog()}
	now := time.Now()

	done := &Task{
		ID: "t-done", Kind: "noop", State: StateCompleted,
		Attempts: 1, MaxAttempts: 3, CreatedAt: now, UpdatedAt: now, FinishedAt: now,
	}
	require.NoError(t, log.Append(context.Background(), done))

	o := New(testConfig(), log, nil)
	ok, err := o.Cancel(context.Background(), "t-done")
	require.NoError(t, err)
	assert.False(t, ok)

	o.mu.Lock()
	defer o.mu.Unlock()
	assert.Empty(t, o.cancelled)
}

func TestOrchestrator_PeriodicCleanupHandler(t *testing.T) {
	cfg := testConfig()
	cfg.Retention = time.Minute
	log := NewMemoryLog()

	old := &Task{
		ID: "t-old", Kind: "noop", State: StateCompleted,
		MaxAttempts: 1, CreatedAt: time.Now().Add(-time.Hour),
		UpdatedAt: time.Now().Add(-time.Hour), FinishedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, log.Append(context.Background(), old))

	o := startOrchestrator(t, cfg, log)
	id, err := o.Submit(context.Background(), KindPeriodicCleanup, nil, nil)
	require.NoError(t, err)

	task, err := o.Wait(context.Background(), id, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, task.State)

	_, err = log.Get(context.Background(), "t-old")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestOrchestrator_WaitTimeout(t *testing.T) {
	log := NewMemoryLog()
	o := New(testConfig(), log, nil)
	o.RegisterHandler("noop", func(ctx context.Context, task *Task) (any, error) { return nil, nil })

	// Never started, so the task stays PENDING.
	id, err := o.Submit(context.Background(), "noop", nil, nil)
	require.NoError(t, err)

	_, err = o.Wait(context.Background(), id, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

func TestOrchestrator_WaitUnknownTask(t *testing.T) {
	o := New(testConfig(), NewMemoryLog(), nil)
	_, err := o.Wait(context.Background(), "missing", 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func unmarshalPayload(task *Task, v any) error {
	if len(task.Payload) == 0 {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(task.Payload, v)
}
