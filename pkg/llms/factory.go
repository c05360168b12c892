package llms

import (
	"fmt"

	"github.com/strandkit/strand/pkg/config"
)

// NewProvider builds one provider from its descriptor.
func NewProvider(cfg *config.ProviderConfig) (LLMProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("provider config cannot be nil")
	}

	switch cfg.Kind {
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg), nil
	case config.ProviderAnthropic:
		return NewAnthropicProvider(cfg), nil
	case config.ProviderGemini:
		return NewGeminiProvider(cfg), nil
	case config.ProviderOllama:
		return NewOllamaProvider(cfg), nil
	case config.ProviderStub:
		return NewStubProvider(cfg.Name), nil
	default:
		return nil, fmt.Errorf("unsupported provider kind: %s (supported: openai, anthropic, gemini, ollama, stub)", cfg.Kind)
	}
}

// NewProviderChain builds the ordered fallback chain from config.
func NewProviderChain(cfgs []*config.ProviderConfig) ([]LLMProvider, error) {
	providers := make([]LLMProvider, 0, len(cfgs))
	for i, cfg := range cfgs {
		provider, err := NewProvider(cfg)
		if err != nil {
			return nil, fmt.Errorf("providers[%d]: %w", i, err)
		}
		providers = append(providers, provider)
	}
	return providers, nil
}
