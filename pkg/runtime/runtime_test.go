package runtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandkit/strand/pkg/config"
	"github.com/strandkit/strand/pkg/orchestrator"
)

func fastZeroConfig() *config.Config {
	cfg := config.ZeroConfig()
	cfg.Orchestrator.Workers = 2
	cfg.Orchestrator.BaseBackoff = 10 * time.Millisecond
	cfg.Orchestrator.CapBackoff = 100 * time.Millisecond
	cfg.Orchestrator.SweepInterval = 20 * time.Millisecond
	return cfg
}

func TestNew_ZeroConfig(t *testing.T) {
	r, err := New(fastZeroConfig())
	require.NoError(t, err)

	assert.NotNil(t, r.Orchestrator())
	assert.NotNil(t, r.Workflows())
	assert.NotNil(t, r.Ingester())
	assert.Contains(t, r.Workflows().Names(), "simple_research")
}

func TestRuntime_RunWorkflowTaskEndToEnd(t *testing.T) {
	r, err := New(fastZeroConfig())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, r.Start(ctx))
	t.Cleanup(func() { r.Stop(ctx) })

	// No providers configured, so generation takes the deterministic
	// fallback path and the workflow still completes.
	id, err := r.Orchestrator().Submit(ctx, orchestrator.KindRunWorkflow, orchestrator.RunWorkflowPayload{
		Workflow: "simple_research",
		Input:    "what is a lease sweep",
	}, nil)
	require.NoError(t, err)

	task, err := r.Orchestrator().Wait(ctx, id, 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, orchestrator.StateCompleted, task.State)
	assert.Equal(t, 1, task.Attempts)

	var result struct {
		FinalAnswer string `json:"final_answer"`
		Success     bool   `json:"success"`
	}
	require.NoError(t, json.Unmarshal(task.Result, &result))
	assert.True(t, result.Success)
	assert.Contains(t, result.FinalAnswer, "fallback")
}

func TestRuntime_UnknownWorkflowTaskFails(t *testing.T) {
	cfg := fastZeroConfig()
	cfg.Orchestrator.MaxAttempts = 2
	r, err := New(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, r.Start(ctx))
	t.Cleanup(func() { r.Stop(ctx) })

	id, err := r.Orchestrator().Submit(ctx, orchestrator.KindRunWorkflow, orchestrator.RunWorkflowPayload{
		Workflow: "no_such_workflow",
		Input:    "x",
	}, nil)
	require.NoError(t, err)

	task, err := r.Orchestrator().Wait(ctx, id, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StateFailed, task.State)
	assert.Equal(t, 2, task.Attempts)
	assert.Contains(t, task.LastError, "no_such_workflow")
}

func TestRuntime_ExecuteAgentTask(t *testing.T) {
	r, err := New(fastZeroConfig())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, r.Start(ctx))
	t.Cleanup(func() { r.Stop(ctx) })

	id, err := r.Orchestrator().Submit(ctx, orchestrator.KindExecuteAgent, orchestrator.ExecuteAgentPayload{
		Agent: "researcher",
		Input: "summarize the retry policy",
	}, nil)
	require.NoError(t, err)

	task, err := r.Orchestrator().Wait(ctx, id, 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, orchestrator.StateCompleted, task.State)

	var result struct {
		Answer   string `json:"answer"`
		Fallback bool   `json:"fallback"`
	}
	require.NoError(t, json.Unmarshal(task.Result, &result))
	assert.True(t, result.Fallback)
	assert.NotEmpty(t, result.Answer)
}

func TestRuntime_SubmitUnknownAgent(t *testing.T) {
	cfg := fastZeroConfig()
	cfg.Orchestrator.MaxAttempts = 1
	r, err := New(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, r.Start(ctx))
	t.Cleanup(func() { r.Stop(ctx) })

	id, err := r.Orchestrator().Submit(ctx, orchestrator.KindExecuteAgent, orchestrator.ExecuteAgentPayload{
		Agent: "nobody",
		Input: "x",
	}, nil)
	require.NoError(t, err)

	task, err := r.Orchestrator().Wait(ctx, id, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StateFailed, task.State)
	assert.Contains(t, task.LastError, "nobody")
}
