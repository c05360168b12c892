package config

import (
	"fmt"
	"time"
)

// OrchestratorConfig declares the worker pool, dispatch queue, retry, and
// lease parameters of the task orchestrator.
type OrchestratorConfig struct {
	// Workers is the pool size W.
	Workers int `yaml:"workers"`

	// QueueSize bounds the in-memory dispatch queue Q. Submissions
	// beyond it fail with QueueFull after the durable write.
	QueueSize int `yaml:"queue_size"`

	// MaxAttempts is the default retry budget per task.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseBackoff is the first retry delay; subsequent delays double,
	// jittered by +-20%, capped at CapBackoff.
	BaseBackoff time.Duration `yaml:"base_backoff"`
	CapBackoff  time.Duration `yaml:"cap_backoff"`

	// LeaseDuration bounds a worker's claim before the task becomes
	// eligible for reclaim.
	LeaseDuration time.Duration `yaml:"lease_duration"`

	// SweepInterval is how often expired leases and elapsed backoffs
	// are re-dispatched.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Retention is how long terminal tasks are kept before cleanup.
	Retention time.Duration `yaml:"retention"`

	// WorkflowTimeout bounds one workflow execution inside a task.
	WorkflowTimeout time.Duration `yaml:"workflow_timeout"`

	Log StoreConfig `yaml:"log"`
}

func (c *OrchestratorConfig) SetDefaults() {
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.QueueSize == 0 {
		c.QueueSize = 128
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff == 0 {
		c.BaseBackoff = time.Second
	}
	if c.CapBackoff == 0 {
		c.CapBackoff = 5 * time.Minute
	}
	if c.LeaseDuration == 0 {
		c.LeaseDuration = 2 * time.Minute
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 5 * time.Second
	}
	if c.Retention == 0 {
		c.Retention = 24 * time.Hour
	}
	if c.WorkflowTimeout == 0 {
		c.WorkflowTimeout = 5 * time.Minute
	}
	c.Log.SetDefaults()
}

func (c *OrchestratorConfig) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if c.BaseBackoff <= 0 {
		return fmt.Errorf("base_backoff must be positive")
	}
	if c.CapBackoff < c.BaseBackoff {
		return fmt.Errorf("cap_backoff cannot be smaller than base_backoff")
	}
	if c.LeaseDuration <= 0 {
		return fmt.Errorf("lease_duration must be positive")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}
