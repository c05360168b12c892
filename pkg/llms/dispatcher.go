package llms

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/strandkit/strand/pkg/observability"
)

// defaultBackoffWindow is used when a rate-limited provider gives no
// retry-after hint.
const defaultBackoffWindow = 30 * time.Second

// providerState pairs a provider with its ephemeral back-off state.
// Providers are independent; each state has its own short-held lock.
type providerState struct {
	provider LLMProvider

	mu           sync.Mutex
	backoffUntil time.Time
}

func (s *providerState) backingOff(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Before(s.backoffUntil)
}

func (s *providerState) setBackoff(until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until.After(s.backoffUntil) {
		s.backoffUntil = until
	}
}

// Dispatcher routes a generation request through an ordered provider
// chain, skipping providers that are backing off and falling through on
// failure. Safe for concurrent use; Reload swaps the chain atomically.
type Dispatcher struct {
	mu     sync.RWMutex
	chain  []*providerState
	logger *slog.Logger
	tracer trace.Tracer
}

func NewDispatcher(providers []LLMProvider, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		chain:  wrapProviders(providers),
		logger: logger,
		tracer: observability.GetTracer("strand.llms"),
	}
}

func wrapProviders(providers []LLMProvider) []*providerState {
	chain := make([]*providerState, 0, len(providers))
	for _, p := range providers {
		chain = append(chain, &providerState{provider: p})
	}
	return chain
}

// Reload replaces the provider chain. In-flight calls finish against the
// chain they started with.
func (d *Dispatcher) Reload(providers []LLMProvider) {
	d.mu.Lock()
	old := d.chain
	d.chain = wrapProviders(providers)
	d.mu.Unlock()

	for _, s := range old {
		if err := s.provider.Close(); err != nil {
			d.logger.Warn("failed to close provider", "provider", s.provider.Name(), "error", err)
		}
	}
	d.logger.Info("provider chain reloaded", "providers", len(providers))
}

// HasProviders reports whether the chain is non-empty.
func (d *Dispatcher) HasProviders() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.chain) > 0
}

// Generate tries each provider in order. Auth failures skip the provider,
// rate limits record a back-off window so calls inside it skip the
// provider, and any other failure falls through to the next entry. When
// every provider fails the error is an ExhaustedError.
func (d *Dispatcher) Generate(ctx context.Context, prompt string, params GenerateParams) (*Generation, error) {
	d.mu.RLock()
	chain := d.chain
	d.mu.RUnlock()

	if len(chain) == 0 {
		return nil, ErrNoProviders
	}

	ctx, span := d.tracer.Start(ctx, observability.SpanGeneration,
		trace.WithAttributes(attribute.Int("chain.length", len(chain))),
	)
	defer span.End()

	var attempts []ProviderAttempt
	now := time.Now()

	for _, state := range chain {
		name := state.provider.Name()

		if state.backingOff(now) {
			attempts = append(attempts, ProviderAttempt{
				Provider: name,
				Kind:     FailureRateLimited,
				Reason:   "backing-off",
			})
			d.logger.Debug("skipping backing-off provider", "provider", name)
			continue
		}

		gen, err := d.generateOne(ctx, state, prompt, params)
		if err == nil {
			span.SetAttributes(attribute.String(observability.AttrProviderName, name))
			return gen, nil
		}

		kind, hint := classifyFailure(err)
		attempts = append(attempts, ProviderAttempt{
			Provider: name,
			Kind:     kind,
			Reason:   err.Error(),
			Err:      err,
		})

		switch kind {
		case FailureAuth:
			d.logger.Warn("provider authentication failed, skipping", "provider", name)
		case FailureRateLimited:
			window := hint
			if window <= 0 {
				window = defaultBackoffWindow
			}
			state.setBackoff(time.Now().Add(window))
			d.logger.Warn("provider rate limited, backing off",
				"provider", name, "window", window)
		default:
			d.logger.Warn("provider failed, trying next",
				"provider", name, "kind", kind, "error", err)
		}

		if ctx.Err() != nil {
			break
		}
	}

	exhausted := &ExhaustedError{Attempts: attempts}
	span.RecordError(exhausted)
	span.SetStatus(codes.Error, "all providers exhausted")
	return nil, exhausted
}

func (d *Dispatcher) generateOne(ctx context.Context, state *providerState, prompt string, params GenerateParams) (*Generation, error) {
	start := time.Now()
	gen, err := state.provider.Generate(ctx, prompt, params)
	duration := time.Since(start)

	metrics := observability.GetGlobalMetrics()
	if err != nil {
		metrics.RecordLLMCall(ctx, state.provider.Name(), state.provider.Model(), duration, 0, 0, err)
		return nil, fmt.Errorf("provider %s: %w", state.provider.Name(), err)
	}

	gen.Provider = state.provider.Name()
	gen.Latency = duration
	metrics.RecordLLMCall(ctx, gen.Provider, gen.Model, duration, gen.PromptTokens, gen.CompletionTokens, nil)
	return gen, nil
}

// BackingOff reports whether the named provider is currently in a
// back-off window. Used by tests and the ops surface.
func (d *Dispatcher) BackingOff(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range d.chain {
		if s.provider.Name() == name {
			return s.backingOff(time.Now())
		}
	}
	return false
}

// Close shuts down every provider in the chain.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for _, s := range d.chain {
		if err := s.provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.chain = nil
	return firstErr
}
