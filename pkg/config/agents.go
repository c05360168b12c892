package config

import "fmt"

// AgentConfig defines a named agent role. Definitions are immutable at
// runtime; the executor reads them, never writes.
type AgentConfig struct {
	// Role labels the agent in results and traces. Defaults to the map
	// key in Config.Agents.
	Role string `yaml:"role"`

	// Goal is a one-line statement folded into the system prompt.
	Goal string `yaml:"goal"`

	SystemPrompt string `yaml:"system_prompt"`

	// Tools lists the permitted subset of the tool registry. Empty
	// means no tool access.
	Tools []string `yaml:"tools"`

	// MaxSteps caps the reason/act loop.
	MaxSteps int `yaml:"max_steps"`

	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

func (c *AgentConfig) SetDefaults(name string) {
	if c.Role == "" {
		c.Role = name
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = 6
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
}

func (c *AgentConfig) Validate() error {
	if c.Role == "" {
		return fmt.Errorf("role cannot be empty")
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("max_steps cannot be negative")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}

// DefaultAgentConfigs returns the researcher/analyst/writer roles used by
// the standard workflows.
func DefaultAgentConfigs() map[string]*AgentConfig {
	return map[string]*AgentConfig{
		"researcher": {
			Role: "researcher",
			Goal: "Gather accurate, relevant information for the query",
			SystemPrompt: "You are a thorough researcher. Collect the facts needed to " +
				"answer the query, citing retrieved context where available.",
			Tools: []string{"search"},
		},
		"analyst": {
			Role: "analyst",
			Goal: "Interpret research findings and extract insights",
			SystemPrompt: "You are a careful analyst. Examine the research provided and " +
				"identify the patterns, implications, and caveats that matter.",
		},
		"writer": {
			Role: "writer",
			Goal: "Compose a clear, well-structured final answer",
			SystemPrompt: "You are a skilled writer. Turn the analysis provided into a " +
				"coherent, readable answer for the user.",
		},
	}
}
