// Package embedders provides text embedding providers for the retrieval
// and ingestion paths.
package embedders

import (
	"context"
	"fmt"

	"github.com/strandkit/strand/pkg/config"
)

// EmbedderProvider turns text into a dense vector.
type EmbedderProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Close() error
}

// NewEmbedder builds an embedder from config.
func NewEmbedder(cfg *config.EmbedderConfig) (EmbedderProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embedder config cannot be nil")
	}
	switch cfg.Kind {
	case "openai":
		return NewOpenAIEmbedder(cfg)
	case "ollama":
		return NewOllamaEmbedder(cfg), nil
	case "hash":
		return NewHashEmbedder(), nil
	default:
		return nil, fmt.Errorf("unsupported embedder kind: %s (supported: openai, ollama, hash)", cfg.Kind)
	}
}
