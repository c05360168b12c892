// Package orchestrator schedules durable background tasks over a bounded
// worker pool. Tasks survive restarts through an append-first log; claims
// are atomic, retries back off exponentially, and cancellation is
// cooperative.
package orchestrator

import (
	"encoding/json"
	"errors"
	"time"
)

// TaskState is the task lifecycle state.
type TaskState string

const (
	StatePending   TaskState = "PENDING"
	StateRunning   TaskState = "RUNNING"
	StateCompleted TaskState = "COMPLETED"
	StateFailed    TaskState = "FAILED"
	StateCancelled TaskState = "CANCELLED"
	StateRetrying  TaskState = "RETRYING"
)

// IsTerminal reports whether the state admits no further transitions.
func (s TaskState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Standard task kinds.
const (
	KindRunWorkflow        = "run_workflow"
	KindExecuteAgent       = "execute_agent"
	KindIngestDocument     = "ingest_document"
	KindMultiModalAnalysis = "multi_modal_analysis"
	KindPeriodicCleanup    = "periodic_cleanup"
)

var (
	ErrQueueFull    = errors.New("dispatch queue is full")
	ErrTaskNotFound = errors.New("task not found")
	ErrWaitTimeout  = errors.New("timed out waiting for task")
	ErrUnknownKind  = errors.New("no handler registered for task kind")
)

// Task is the durable record of one unit of work. Attempts counts
// finished executions; a claim does not increment it.
type Task struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`

	State       TaskState `json:"state"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`

	// ClaimToken identifies the worker holding the task; single-writer
	// wins on claim.
	ClaimToken string    `json:"claim_token,omitempty"`
	LeaseUntil time.Time `json:"lease_until,omitempty"`

	// NextAttemptAt gates re-dispatch of RETRYING tasks.
	NextAttemptAt time.Time `json:"next_attempt_at,omitempty"`

	LastError string          `json:"last_error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Clone returns a deep enough copy for handing across goroutines.
func (t *Task) Clone() *Task {
	copied := *t
	if t.Payload != nil {
		copied.Payload = append(json.RawMessage(nil), t.Payload...)
	}
	if t.Result != nil {
		copied.Result = append(json.RawMessage(nil), t.Result...)
	}
	return &copied
}

// Payloads of the standard task kinds.

type RunWorkflowPayload struct {
	Workflow       string         `json:"workflow"`
	Input          string         `json:"input"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Options        map[string]any `json:"options,omitempty"`
}

type ExecuteAgentPayload struct {
	Agent string `json:"agent"`
	Input string `json:"input"`
}

type IngestDocumentPayload struct {
	Path     string         `json:"path"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type MultiModalAnalysisPayload struct {
	MediaRef string         `json:"media_ref"`
	Options  map[string]any `json:"options,omitempty"`
}
