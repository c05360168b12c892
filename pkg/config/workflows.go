package config

import "fmt"

// StepInputMode declares how a workflow step constructs its input.
type StepInputMode string

const (
	// StepInputInitial passes the workflow's initial input unchanged.
	StepInputInitial StepInputMode = "initial"

	// StepInputPrevious passes the previous step's output.
	StepInputPrevious StepInputMode = "previous"

	// StepInputTemplate renders a template over the initial input and
	// all prior step outputs.
	StepInputTemplate StepInputMode = "template"
)

// WorkflowStepConfig names an agent and how to build its input.
type WorkflowStepConfig struct {
	Agent string        `yaml:"agent"`
	Input StepInputMode `yaml:"input"`

	// Template is used when Input is "template". Placeholders:
	// {{initial}} and {{step.N}} for zero-based prior outputs.
	Template string `yaml:"template"`
}

// WorkflowConfig defines a named linear chain of agent steps.
type WorkflowConfig struct {
	// Name defaults to the map key in Config.Workflows.
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	Steps       []WorkflowStepConfig `yaml:"steps"`
}

func (c *WorkflowConfig) SetDefaults(name string) {
	if c.Name == "" {
		c.Name = name
	}
	for i := range c.Steps {
		if c.Steps[i].Input == "" {
			if i == 0 {
				c.Steps[i].Input = StepInputInitial
			} else {
				c.Steps[i].Input = StepInputPrevious
			}
		}
	}
}

func (c *WorkflowConfig) Validate() error {
	if len(c.Steps) == 0 {
		return fmt.Errorf("workflow must have at least one step")
	}
	for i, step := range c.Steps {
		if step.Agent == "" {
			return fmt.Errorf("step %d: agent cannot be empty", i)
		}
		switch step.Input {
		case StepInputInitial, StepInputPrevious, StepInputTemplate:
		default:
			return fmt.Errorf("step %d: invalid input mode %q", i, step.Input)
		}
		if step.Input == StepInputTemplate && step.Template == "" {
			return fmt.Errorf("step %d: template input mode requires a template", i)
		}
		if i == 0 && step.Input == StepInputPrevious {
			return fmt.Errorf("step 0 cannot use previous input mode")
		}
	}
	return nil
}

// DefaultWorkflowConfigs returns the standard workflow library.
func DefaultWorkflowConfigs() map[string]*WorkflowConfig {
	return map[string]*WorkflowConfig{
		"simple_research": {
			Name:        "simple_research",
			Description: "Single researcher pass over the query",
			Steps: []WorkflowStepConfig{
				{Agent: "researcher", Input: StepInputInitial},
			},
		},
		"research_analyze_write": {
			Name:        "research_analyze_write",
			Description: "Researcher, analyst, and writer in sequence",
			Steps: []WorkflowStepConfig{
				{Agent: "researcher", Input: StepInputInitial},
				{Agent: "analyst", Input: StepInputPrevious},
				{Agent: "writer", Input: StepInputPrevious},
			},
		},
		"fallback": {
			Name:        "fallback",
			Description: "Single researcher pass; deterministic stub output when the provider chain is empty",
			Steps: []WorkflowStepConfig{
				{Agent: "researcher", Input: StepInputInitial},
			},
		},
	}
}
