package tools

import (
	"errors"
	"fmt"
)

// Sentinel kinds for tool failures. Callers branch with errors.Is; the
// reasoning loop absorbs all of them as observations rather than aborting.
var (
	ErrToolNotFound        = errors.New("tool not found")
	ErrToolInputInvalid    = errors.New("tool input invalid")
	ErrToolExecutionFailed = errors.New("tool execution failed")
	ErrToolTimeout         = errors.New("tool timed out")
)

// ToolError carries the failing tool and the failure kind.
type ToolError struct {
	Tool    string
	Kind    error
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Tool, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

func (e *ToolError) Is(target error) bool { return target == e.Kind }

func newToolError(tool string, kind error, message string, err error) *ToolError {
	return &ToolError{Tool: tool, Kind: kind, Message: message, Err: err}
}
