package llms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/strandkit/strand/pkg/httpclient"
)

var (
	// ErrAllProvidersExhausted matches ExhaustedError via errors.Is.
	ErrAllProvidersExhausted = errors.New("all providers exhausted")

	// ErrNoProviders is returned when the chain is empty. The agent
	// executor converts it into the deterministic fallback answer.
	ErrNoProviders = errors.New("no providers configured")
)

// FailureKind classifies a provider failure for fallback policy.
type FailureKind string

const (
	FailureTransient   FailureKind = "transient"
	FailureAuth        FailureKind = "auth"
	FailureRateLimited FailureKind = "rate_limited"
	FailureDeadline    FailureKind = "deadline"
)

// ProviderAttempt records one failed provider in an exhausted chain.
type ProviderAttempt struct {
	Provider string
	Kind     FailureKind
	Reason   string
	Err      error
}

// ExhaustedError carries the per-provider failure reasons after the whole
// chain has been tried.
type ExhaustedError struct {
	Attempts []ProviderAttempt
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	b.WriteString("all providers exhausted:")
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, " [%s: %s (%s)]", a.Provider, a.Reason, a.Kind)
	}
	return b.String()
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAllProvidersExhausted
}

// APIError is a non-2xx response from a provider API that the transport
// layer did not retry.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (HTTP %d): %s", e.Provider, e.StatusCode, e.Message)
}

// classifyFailure maps an error to its fallback policy kind and extracts
// any back-off hint from rate-limit responses.
func classifyFailure(err error) (FailureKind, time.Duration) {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureDeadline, 0
	}

	var retryable *httpclient.RetryableError
	if errors.As(err, &retryable) {
		switch retryable.StatusCode {
		case 401, 403:
			return FailureAuth, 0
		case 429, 503:
			return FailureRateLimited, retryable.RetryAfter
		}
		return FailureTransient, 0
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return FailureAuth, 0
		case 429, 503:
			return FailureRateLimited, 0
		}
	}

	return FailureTransient, 0
}
