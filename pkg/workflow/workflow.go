// Package workflow runs named linear agent chains. The runner is the only
// component that persists conversation turns, and it does so exactly once
// per successful run.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/strandkit/strand/pkg/agent"
)

// ErrUnknownWorkflow matches WorkflowError via errors.Is. It is the only
// hard failure of Run; step-level failures surface in the result.
var ErrUnknownWorkflow = errors.New("unknown workflow")

// WorkflowError reports a run that could not start.
type WorkflowError struct {
	Workflow string
	Message  string
	Err      error
}

func (e *WorkflowError) Error() string {
	msg := fmt.Sprintf("[workflow:%s] %s", e.Workflow, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *WorkflowError) Unwrap() error { return e.Err }

func (e *WorkflowError) Is(target error) bool { return target == ErrUnknownWorkflow }

// StepResult pairs a step's agent with its execution result.
type StepResult struct {
	Agent  string        `json:"agent"`
	Result *agent.Result `json:"result,omitempty"`

	// Error is set when the step failed catastrophically.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of one workflow run.
type Result struct {
	WorkflowName string        `json:"workflow_name"`
	FinalAnswer  string        `json:"final_answer"`
	Steps        []StepResult  `json:"steps"`
	AgentsUsed   []string      `json:"agents_used"`
	Duration     time.Duration `json:"duration"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`

	// ContextUsed reports whether retrieved chunks or conversation history
	// reached the agents on this run.
	ContextUsed bool `json:"context_used"`

	// ConversationID is set when the run persisted a turn.
	ConversationID string `json:"conversation_id,omitempty"`
}

// ToolsUsed aggregates tool names across steps, preserving step order.
func (r *Result) ToolsUsed() []string {
	seen := make(map[string]bool)
	var all []string
	for _, step := range r.Steps {
		if step.Result == nil {
			continue
		}
		for _, tool := range step.Result.ToolsUsed {
			if !seen[tool] {
				seen[tool] = true
				all = append(all, tool)
			}
		}
	}
	return all
}
