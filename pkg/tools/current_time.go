package tools

import (
	"context"
	"fmt"
	"time"
)

type currentTimeInput struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone name such as Europe/Berlin. Defaults to UTC"`
}

// CurrentTimeTool reports the current time, optionally in a timezone.
type CurrentTimeTool struct {
	name string

	// now is swappable for tests.
	now func() time.Time
}

func NewCurrentTimeTool(name string) *CurrentTimeTool {
	return &CurrentTimeTool{name: name, now: time.Now}
}

func (t *CurrentTimeTool) GetName() string { return t.name }

func (t *CurrentTimeTool) GetDescription() string {
	return "Get the current date and time"
}

func (t *CurrentTimeTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.name,
		Description: t.GetDescription(),
		InputSchema: GenerateSchema(&currentTimeInput{}),
	}
}

func (t *CurrentTimeTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	var in currentTimeInput
	if err := decodeArgs(args, &in); err != nil {
		return ToolResult{}, err
	}

	loc := time.UTC
	if in.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(in.Timezone)
		if err != nil {
			wrapped := fmt.Errorf("unknown timezone %q", in.Timezone)
			return ToolResult{Success: false, Error: wrapped.Error()}, wrapped
		}
	}

	return ToolResult{
		Success: true,
		Content: t.now().In(loc).Format(time.RFC3339),
	}, nil
}
