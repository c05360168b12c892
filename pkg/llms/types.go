// Package llms provides the LLM provider contract and a dispatcher that
// routes generation requests through an ordered fallback chain.
package llms

import (
	"context"
	"time"
)

// GenerateParams are the sampling parameters for one generation request.
// Nil or zero fields fall back to the provider's configured defaults.
type GenerateParams struct {
	Temperature *float64
	MaxTokens   int
}

// Generation is the result of one successful generation.
type Generation struct {
	Text             string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Latency          time.Duration

	// Fallback marks output produced by the deterministic stub path
	// rather than a real model. Callers may treat it as untrusted.
	Fallback bool
}

// LLMProvider is a single backend in the fallback chain. Implementations
// must be safe for concurrent use.
type LLMProvider interface {
	// Name identifies this provider in traces and exhaustion errors.
	Name() string

	Model() string

	// Generate performs one completion. Partial output on transport
	// failure is discarded; streaming backends assemble the full text
	// before returning.
	Generate(ctx context.Context, prompt string, params GenerateParams) (*Generation, error)

	Close() error
}
