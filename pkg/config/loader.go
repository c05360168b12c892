package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads, expands, defaults, and validates a YAML config.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML config data. Env expansion runs on the decoded
// tree before it is bound to the typed structs, so ${VAR} works in any
// string field.
func LoadFromBytes(data []byte) (*Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	expanded := ExpandEnvVarsInData(raw)

	rebound, err := yaml.Marshal(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode expanded config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(rebound, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return ProcessConfigPipeline(&cfg)
}

// ZeroConfig returns a runnable configuration with no file present:
// in-memory stores, no providers, and the standard agent and workflow
// library. Generation degrades to the deterministic fallback path.
func ZeroConfig() *Config {
	cfg := &Config{}
	processed, err := ProcessConfigPipeline(cfg)
	if err != nil {
		// The empty config always validates; reaching here is a bug.
		panic(fmt.Sprintf("zero config failed validation: %v", err))
	}
	return processed
}
