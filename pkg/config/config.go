// Package config defines the startup configuration object for the
// orchestration core and the pipeline that prepares it for use:
// PreProcess -> SetDefaults -> Validate.
package config

import (
	"fmt"

	"github.com/strandkit/strand/pkg/observability"
)

// Config is the single startup configuration object. It declares the
// provider fallback chain, agents, workflows, the conversation store,
// and the orchestrator's pool and retry parameters.
type Config struct {
	Logger        LoggerConfig               `yaml:"logger"`
	Providers     []*ProviderConfig          `yaml:"providers"`
	Embedder      EmbedderConfig             `yaml:"embedder"`
	Vector        VectorConfig               `yaml:"vector"`
	Retriever     RetrieverConfig            `yaml:"retriever"`
	Tools         map[string]*ToolConfig     `yaml:"tools"`
	Agents        map[string]*AgentConfig    `yaml:"agents"`
	Workflows     map[string]*WorkflowConfig `yaml:"workflows"`
	Conversation  StoreConfig                `yaml:"conversation"`
	Orchestrator  OrchestratorConfig         `yaml:"orchestrator"`
	Observability observability.Config       `yaml:"observability"`
	Server        ServerConfig               `yaml:"server"`
}

// ProcessConfigPipeline prepares a raw config for use.
func ProcessConfigPipeline(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ProcessConfigPipeline: config cannot be nil")
	}

	cfg.PreProcess()
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ProcessConfigPipeline: validation failed: %w", err)
	}

	return cfg, nil
}

// PreProcess normalizes shorthand forms before defaulting. An empty agent
// and workflow set expands to the standard library so a zero config still
// runs the research workflows.
func (c *Config) PreProcess() {
	c.initializeMaps()

	if len(c.Agents) == 0 {
		for name, agent := range DefaultAgentConfigs() {
			c.Agents[name] = agent
		}
	}
	if len(c.Workflows) == 0 {
		for name, wf := range DefaultWorkflowConfigs() {
			c.Workflows[name] = wf
		}
	}
}

func (c *Config) initializeMaps() {
	if c.Tools == nil {
		c.Tools = make(map[string]*ToolConfig)
	}
	if c.Agents == nil {
		c.Agents = make(map[string]*AgentConfig)
	}
	if c.Workflows == nil {
		c.Workflows = make(map[string]*WorkflowConfig)
	}
}

// SetDefaults applies defaults recursively. An empty provider list is
// allowed: generation then degrades to the deterministic fallback path.
func (c *Config) SetDefaults() {
	c.Logger.SetDefaults()
	for _, p := range c.Providers {
		p.SetDefaults()
	}
	c.Embedder.SetDefaults()
	c.Vector.SetDefaults()
	c.Retriever.SetDefaults()
	for _, t := range c.Tools {
		t.SetDefaults()
	}
	for name, a := range c.Agents {
		a.SetDefaults(name)
	}
	for name, w := range c.Workflows {
		w.SetDefaults(name)
	}
	c.Conversation.SetDefaults()
	c.Orchestrator.SetDefaults()
	c.Server.SetDefaults()
}

// Validate checks the configuration after defaulting.
func (c *Config) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	for i, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("providers[%d]: %w", i, err)
		}
	}
	if err := c.Retriever.Validate(); err != nil {
		return fmt.Errorf("retriever: %w", err)
	}
	for name, a := range c.Agents {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("agent %q: %w", name, err)
		}
	}
	for name, w := range c.Workflows {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("workflow %q: %w", name, err)
		}
		for _, step := range w.Steps {
			if _, ok := c.Agents[step.Agent]; !ok {
				return fmt.Errorf("workflow %q: step references unknown agent %q", name, step.Agent)
			}
		}
	}
	if err := c.Conversation.Validate(); err != nil {
		return fmt.Errorf("conversation: %w", err)
	}
	if err := c.Orchestrator.Validate(); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	return nil
}

// LoggerConfig configures the process-wide slog setup.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
}

func (c *LoggerConfig) Validate() error {
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid format %q (valid: text, json)", c.Format)
	}
	return nil
}

// ServerConfig configures the ops listener.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8090
	}
}
