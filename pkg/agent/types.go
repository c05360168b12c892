// Package agent runs one agent definition over one input with a budgeted
// reason/act loop. Tool failures become observations the model can react
// to; only dispatcher failures abort an execution.
package agent

import "time"

// StepStatus labels the outcome of one reasoning step.
type StepStatus string

const (
	StepStatusOK    StepStatus = "ok"
	StepStatusError StepStatus = "error"
)

// Step is one entry in the reasoning trace.
type Step struct {
	// Thought is the free text the model produced before its directive.
	Thought string `json:"thought,omitempty"`

	// Action is the tool invocation, empty for the final step.
	Action string `json:"action,omitempty"`

	// Observation is the tool output or failure description.
	Observation string `json:"observation,omitempty"`

	Status StepStatus `json:"status"`
}

// Message is one turn of prior conversation included in the prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result is the outcome of one agent execution.
type Result struct {
	Answer    string   `json:"answer"`
	Role      string   `json:"role"`
	Steps     []Step   `json:"steps,omitempty"`
	ToolsUsed []string `json:"tools_used,omitempty"`

	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`

	// Truncated is set when the loop ran out of steps before a final
	// answer.
	Truncated bool `json:"truncated,omitempty"`

	// Fallback is set on the deterministic no-provider path.
	Fallback bool `json:"fallback,omitempty"`

	// ParseRecovery is set when an unparseable completion was promoted
	// to a final answer.
	ParseRecovery bool `json:"parse_recovery,omitempty"`
}

// Options tunes one execution without mutating the definition.
type Options struct {
	// MaxSteps overrides the definition's loop cap when non-nil. Zero
	// means a single provider call returned verbatim.
	MaxSteps *int

	Temperature *float64
	MaxTokens   int

	// PermitTools restricts the definition's tool set further. Nil
	// means no restriction.
	PermitTools []string
}
