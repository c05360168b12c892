package config

import "time"

// ToolConfig configures one registered tool. The map key in Config.Tools
// is the tool name.
type ToolConfig struct {
	// Type selects the builtin implementation (search, calculator,
	// current_time, web_request).
	Type string `yaml:"type"`

	// Timeout bounds one invocation.
	Timeout time.Duration `yaml:"timeout"`

	// AllowedHosts restricts web_request targets. Empty means deny all.
	AllowedHosts []string `yaml:"allowed_hosts"`
}

func (c *ToolConfig) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

// DefaultToolConfigs returns the builtin tool set.
func DefaultToolConfigs() map[string]*ToolConfig {
	return map[string]*ToolConfig{
		"search":       {Type: "search"},
		"calculator":   {Type: "calculator"},
		"current_time": {Type: "current_time"},
	}
}
