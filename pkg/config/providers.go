package config

import (
	"fmt"
	"os"
	"time"
)

// ProviderKind identifies an LLM provider implementation.
type ProviderKind string

const (
	ProviderOpenAI    ProviderKind = "openai"
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderGemini    ProviderKind = "gemini"
	ProviderOllama    ProviderKind = "ollama"
	ProviderStub      ProviderKind = "stub"
)

// ProviderConfig describes one entry of the fallback chain. The list order
// in Config.Providers is the dispatch order. Descriptors are immutable at
// runtime; changes arrive only through a reload.
type ProviderConfig struct {
	// Name identifies the provider in traces and fallback errors.
	// Defaults to the kind when only one provider of that kind exists.
	Name string `yaml:"name"`

	Kind  ProviderKind `yaml:"kind"`
	Model string       `yaml:"model"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey supports ${VAR} expansion; resolved from the environment
	// per kind when empty.
	APIKey string `yaml:"api_key"`

	// Timeout bounds a single generation attempt against this provider.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the local transport retry budget before falling
	// through to the next provider.
	MaxRetries int `yaml:"max_retries"`

	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

func (c *ProviderConfig) SetDefaults() {
	if c.Kind == "" {
		c.Kind = ProviderOpenAI
	}
	if c.Name == "" {
		c.Name = string(c.Kind)
	}
	if c.Model == "" {
		switch c.Kind {
		case ProviderOpenAI:
			c.Model = "gpt-4o"
		case ProviderAnthropic:
			c.Model = "claude-sonnet-4-20250514"
		case ProviderGemini:
			c.Model = "gemini-2.0-flash"
		case ProviderOllama:
			c.Model = "llama3.2"
		case ProviderStub:
			c.Model = "stub"
		}
	}
	if c.APIKey == "" {
		c.APIKey = apiKeyFromEnv(c.Kind)
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.Temperature == nil {
		temp := 0.7
		c.Temperature = &temp
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
}

func (c *ProviderConfig) Validate() error {
	switch c.Kind {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOllama, ProviderStub:
	default:
		return fmt.Errorf("invalid kind %q (valid: openai, anthropic, gemini, ollama, stub)", c.Kind)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

func apiKeyFromEnv(kind ProviderKind) string {
	switch kind {
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case ProviderGemini:
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return ""
	}
}

// EmbedderConfig configures the embedding provider used by ingestion and
// retrieval.
type EmbedderConfig struct {
	Kind    string        `yaml:"kind"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

func (c *EmbedderConfig) SetDefaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Kind == "" {
		// Without credentials the zero config stays runnable on the
		// deterministic local embedder.
		if c.APIKey == "" {
			c.Kind = "hash"
		} else {
			c.Kind = "openai"
		}
	}
	if c.Model == "" {
		switch c.Kind {
		case "openai":
			c.Model = "text-embedding-3-small"
		case "ollama":
			c.Model = "nomic-embed-text"
		}
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// VectorConfig selects the vector backend.
type VectorConfig struct {
	// Kind is one of qdrant, chromem, memory.
	Kind       string `yaml:"kind"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	APIKey     string `yaml:"api_key"`

	// Path is the on-disk location for the embedded backend.
	Path string `yaml:"path"`
}

func (c *VectorConfig) SetDefaults() {
	if c.Kind == "" {
		c.Kind = "memory"
	}
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "strand"
	}
}
