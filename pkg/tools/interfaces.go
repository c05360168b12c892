// Package tools holds the tool registry and the builtin tools agents can
// call during reasoning. Every invocation goes through the registry, which
// validates arguments against the tool's declared schema before the tool
// runs.
package tools

import (
	"context"
	"time"
)

// ToolInfo describes a tool to callers and to the prompting layer.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`

	// InputSchema is the JSON Schema document for the tool's arguments.
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// ToolResult is the outcome of one invocation.
type ToolResult struct {
	Success       bool           `json:"success"`
	Content       string         `json:"content,omitempty"`
	Error         string         `json:"error,omitempty"`
	ToolName      string         `json:"tool_name"`
	ExecutionTime time.Duration  `json:"execution_time,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type Tool interface {
	GetInfo() ToolInfo

	Execute(ctx context.Context, args map[string]any) (ToolResult, error)

	GetName() string

	GetDescription() string
}
