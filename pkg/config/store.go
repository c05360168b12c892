package config

import "fmt"

// StoreConfig selects the conversation store backend. The same shape is
// reused for the orchestrator's task log.
type StoreConfig struct {
	// Backend is one of memory, sqlite, postgres, mysql.
	Backend string `yaml:"backend"`

	// DSN is the driver connection string for SQL backends.
	DSN string `yaml:"dsn"`

	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Backend == "sqlite" && c.DSN == "" {
		c.DSN = "strand.db"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 2
	}
}

func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case "memory", "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("invalid backend %q (valid: memory, sqlite, postgres, mysql)", c.Backend)
	}
	if c.Backend != "memory" && c.Backend != "sqlite" && c.DSN == "" {
		return fmt.Errorf("dsn is required for backend %q", c.Backend)
	}
	return nil
}

// DriverName maps the backend to its database/sql driver.
func (c *StoreConfig) DriverName() string {
	switch c.Backend {
	case "postgres":
		return "postgres"
	case "mysql":
		return "mysql"
	default:
		return "sqlite3"
	}
}
