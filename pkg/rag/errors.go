package rag

import (
	"errors"
	"fmt"
)

// ErrVectorBackendUnavailable matches RetrievalError via errors.Is.
// Callers proceed with empty context rather than aborting.
var ErrVectorBackendUnavailable = errors.New("vector backend unavailable")

// RetrievalError represents a failure in the retrieval pipeline.
type RetrievalError struct {
	Component string
	Operation string
	Message   string
	Query     string
	Err       error
}

func (e *RetrievalError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Component, e.Operation, e.Message)
	if e.Query != "" {
		query := e.Query
		if len(query) > 50 {
			query = query[:50] + "..."
		}
		msg += fmt.Sprintf(" (query: %q)", query)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

func (e *RetrievalError) Is(target error) bool {
	return target == ErrVectorBackendUnavailable
}

func newRetrievalError(component, operation, message, query string, err error) *RetrievalError {
	return &RetrievalError{
		Component: component,
		Operation: operation,
		Message:   message,
		Query:     query,
		Err:       err,
	}
}
