package vector

import (
	"fmt"

	"github.com/strandkit/strand/pkg/config"
)

// NewProvider builds the configured vector backend.
func NewProvider(cfg *config.VectorConfig) (Provider, error) {
	if cfg == nil {
		return NewMemoryProvider(), nil
	}

	switch cfg.Kind {
	case "memory":
		return NewMemoryProvider(), nil
	case "chromem":
		return NewChromemProvider(cfg.Path)
	case "qdrant":
		return NewQdrantProvider(cfg.Host, cfg.Port, cfg.APIKey)
	default:
		return nil, fmt.Errorf("unknown vector provider kind: %q (valid: memory, chromem, qdrant)", cfg.Kind)
	}
}
