package llms

import (
	"context"
	"fmt"
)

// StubProvider produces a deterministic canned completion. It backs the
// "stub" provider kind used in local setups and integration tests.
type StubProvider struct {
	name string
}

func NewStubProvider(name string) *StubProvider {
	if name == "" {
		name = "stub"
	}
	return &StubProvider{name: name}
}

func (p *StubProvider) Name() string  { return p.name }
func (p *StubProvider) Model() string { return "stub" }
func (p *StubProvider) Close() error  { return nil }

func (p *StubProvider) Generate(ctx context.Context, prompt string, params GenerateParams) (*Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := fmt.Sprintf("FINAL: Deterministic stub completion for a %d-character prompt.", len(prompt))
	return &Generation{
		Text:     text,
		Model:    "stub",
		Fallback: true,
	}, nil
}
