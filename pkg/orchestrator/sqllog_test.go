package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandkit/strand/pkg/config"
)

func newSQLiteLog(t *testing.T) *SQLLog {
	t.Helper()
	cfg := config.StoreConfig{
		Backend: "sqlite",
		DSN:     filepath.Join(t.TempDir(), "tasks.db"),
	}
	cfg.SetDefaults()

	log, err := NewSQLLog(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func TestSQLLog_AppendGetUpdate(t *testing.T) {
	log := newSQLiteLog(t)
	ctx := context.Background()

	task := newTestTask("t1", StatePending)
	task.Payload = []byte(`{"input":"x"}`)
	require.NoError(t, log.Append(ctx, task))

	got, err := log.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatePending, got.State)
	assert.JSONEq(t, `{"input":"x"}`, string(got.Payload))
	assert.True(t, got.LeaseUntil.IsZero())
	assert.True(t, got.FinishedAt.IsZero())

	got.State = StateCompleted
	got.Attempts = 1
	got.Result = []byte(`"done"`)
	got.FinishedAt = time.Now()
	require.NoError(t, log.Update(ctx, got))

	final, err := log.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, final.State)
	assert.Equal(t, 1, final.Attempts)
	assert.Equal(t, `"done"`, string(final.Result))
	assert.False(t, final.FinishedAt.IsZero())
}

func TestSQLLog_GetMissing(t *testing.T) {
	log := newSQLiteLog(t)
	_, err := log.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestSQLLog_UpdateMissing(t *testing.T) {
	log := newSQLiteLog(t)
	err := log.Update(context.Background(), newTestTask("absent", StatePending))
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestSQLLog_ClaimTransitions(t *testing.T) {
	log := newSQLiteLog(t)
	ctx := context.Background()
	require.NoError(t, log.Append(ctx, newTestTask("t1", StatePending)))

	task, ok, err := log.Claim(ctx, "t1", "tok", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateRunning, task.State)
	assert.Equal(t, "tok", task.ClaimToken)

	// Second claim loses the race.
	_, ok, err = log.Claim(ctx, "t1", "tok2", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLLog_ClaimRespectsBackoff(t *testing.T) {
	log := newSQLiteLog(t)
	ctx := context.Background()

	task := newTestTask("t1", StateRetrying)
	task.Attempts = 1
	task.NextAttemptAt = time.Now().Add(time.Hour)
	require.NoError(t, log.Append(ctx, task))

	_, ok, err := log.Claim(ctx, "t1", "tok", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	task.NextAttemptAt = time.Now().Add(-time.Second)
	require.NoError(t, log.Update(ctx, task))

	got, ok, err := log.Claim(ctx, "t1", "tok", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateRunning, got.State)
}

func TestSQLLog_RenewLeaseRequiresToken(t *testing.T) {
	log := newSQLiteLog(t)
	ctx := context.Background()
	require.NoError(t, log.Append(ctx, newTestTask("t1", StatePending)))
	_, ok, err := log.Claim(ctx, "t1", "tok", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = log.RenewLease(ctx, "t1", "wrong", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = log.RenewLease(ctx, "t1", "tok", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLLog_UpdateClaimedRequiresToken(t *testing.T) {
	log := newSQLiteLog(t)
	ctx := context.Background()
	require.NoError(t, log.Append(ctx, newTestTask("t1", StatePending)))

	task, ok, err := log.Claim(ctx, "t1", "worker-a", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	// Lease expires, the record goes back to the pool, and another worker
	// claims it under a fresh token.
	reverted := task.Clone()
	reverted.State = StatePending
	reverted.ClaimToken = ""
	reverted.LeaseUntil = time.Time{}
	ok, err = log.UpdateClaimed(ctx, reverted, "worker-a")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = log.Claim(ctx, "t1", "worker-b", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	// The original worker's late outcome is rejected.
	stale := task.Clone()
	stale.State = StateFailed
	stale.Attempts = 1
	stale.ClaimToken = ""
	stale.FinishedAt = time.Now()
	ok, err = log.UpdateClaimed(ctx, stale, "worker-a")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := log.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, got.State)
	assert.Equal(t, "worker-b", got.ClaimToken)
}

func TestSQLLog_CancelIfIdle(t *testing.T) {
	log := newSQLiteLog(t)
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, newTestTask("idle", StatePending)))
	ok, err := log.CancelIfIdle(ctx, "idle")
	require.NoError(t, err)
	assert.True(t, ok)

	task, err := log.Get(ctx, "idle")
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, task.State)
	assert.Equal(t, "cancelled", task.LastError)

	require.NoError(t, log.Append(ctx, newTestTask("busy", StatePending)))
	_, claimed, err := log.Claim(ctx, "busy", "tok", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, claimed)

	ok, err = log.CancelIfIdle(ctx, "busy")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLLog_ListNonTerminalAndRetention(t *testing.T) {
	log := newSQLiteLog(t)
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, newTestTask("p", StatePending)))

	old := newTestTask("old", StateFailed)
	old.FinishedAt = time.Now().Add(-time.Hour)
	require.NoError(t, log.Append(ctx, old))

	fresh := newTestTask("fresh", StateCompleted)
	fresh.FinishedAt = time.Now()
	require.NoError(t, log.Append(ctx, fresh))

	tasks, err := log.ListNonTerminal(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "p", tasks[0].ID)

	removed, err := log.DeleteTerminalBefore(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = log.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = log.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestSQLLog_DeleteRollsBackSubmission(t *testing.T) {
	log := newSQLiteLog(t)
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, newTestTask("t1", StatePending)))
	require.NoError(t, log.Delete(ctx, "t1"))

	_, err := log.Get(ctx, "t1")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}
