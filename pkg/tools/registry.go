package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	jsval "github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/strandkit/strand/pkg/config"
	"github.com/strandkit/strand/pkg/observability"
	"github.com/strandkit/strand/pkg/registry"
)

type toolEntry struct {
	tool      Tool
	validator *jsval.Schema
	timeout   time.Duration
}

// Registry holds the named tool set. Registering under an existing name
// replaces the previous tool; callers resolving by name always see the
// latest registration.
type Registry struct {
	entries *registry.BaseRegistry[*toolEntry]
	logger  *slog.Logger
	tracer  trace.Tracer
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: registry.NewBaseRegistry[*toolEntry](),
		logger:  logger,
		tracer:  observability.GetTracer("strand.tools"),
	}
}

// Register adds or replaces a tool. The tool's input schema is compiled
// once here so every Execute validates against it.
func (r *Registry) Register(tool Tool, timeout time.Duration) error {
	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	name := tool.GetName()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	validator, err := compileSchema(name, tool.GetInfo().InputSchema)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	if _, exists := r.entries.Get(name); exists {
		r.logger.Debug("replacing registered tool", "tool", name)
	}
	r.entries.Put(name, &toolEntry{tool: tool, validator: validator, timeout: timeout})
	return nil
}

// Resolve returns the tool registered under name.
func (r *Registry) Resolve(name string) (Tool, error) {
	entry, exists := r.entries.Get(name)
	if !exists {
		return nil, newToolError(name, ErrToolNotFound,
			fmt.Sprintf("no tool registered under %q", name), nil)
	}
	return entry.tool, nil
}

// List returns tool descriptors sorted by name.
func (r *Registry) List() []ToolInfo {
	infos := make([]ToolInfo, 0, r.entries.Count())
	for _, entry := range r.entries.List() {
		infos = append(infos, entry.tool.GetInfo())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Execute validates args against the tool's schema and runs it under the
// tool's timeout. Failures come back as ToolError with the matching kind;
// the ToolResult always carries something useful for an observation.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (ToolResult, error) {
	start := time.Now()

	ctx, span := r.tracer.Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(attribute.String(observability.AttrToolName, name)),
	)
	defer span.End()

	entry, exists := r.entries.Get(name)
	if !exists {
		err := newToolError(name, ErrToolNotFound, fmt.Sprintf("no tool registered under %q", name), nil)
		return r.fail(ctx, span, name, start, err)
	}

	if err := validateArgs(entry.validator, args); err != nil {
		wrapped := newToolError(name, ErrToolInputInvalid, "arguments do not match schema", err)
		return r.fail(ctx, span, name, start, wrapped)
	}

	execCtx, cancel := context.WithTimeout(ctx, entry.timeout)
	defer cancel()

	result, err := entry.tool.Execute(execCtx, args)
	duration := time.Since(start)
	result.ToolName = name
	result.ExecutionTime = duration

	if err != nil {
		kind := ErrToolExecutionFailed
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			kind = ErrToolTimeout
		}
		wrapped := newToolError(name, kind, "execution failed", err)
		result.Success = false
		if result.Error == "" {
			result.Error = wrapped.Error()
		}
		span.RecordError(wrapped)
		span.SetStatus(codes.Error, wrapped.Message)
		observability.GetGlobalMetrics().RecordToolExecution(ctx, name, duration, wrapped)
		return result, wrapped
	}

	var recordErr error
	if !result.Success {
		recordErr = fmt.Errorf("%s", result.Error)
		span.RecordError(recordErr)
		span.SetStatus(codes.Error, result.Error)
	} else {
		span.SetStatus(codes.Ok, "success")
	}
	span.SetAttributes(
		attribute.Bool("tool.success", result.Success),
		attribute.Int64("tool.duration_ms", duration.Milliseconds()),
	)
	observability.GetGlobalMetrics().RecordToolExecution(ctx, name, duration, recordErr)
	return result, nil
}

func (r *Registry) fail(ctx context.Context, span trace.Span, name string, start time.Time, err *ToolError) (ToolResult, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Message)
	observability.GetGlobalMetrics().RecordToolExecution(ctx, name, time.Since(start), err)
	return ToolResult{Success: false, Error: err.Error(), ToolName: name}, err
}

// SearchProvider is what the search tool needs from the retrieval layer.
type SearchProvider interface {
	Search(ctx context.Context, query string, k int) (string, error)
}

// BuildRegistry constructs the registry from config, wiring builtins by
// their configured type.
func BuildRegistry(cfgs map[string]*config.ToolConfig, search SearchProvider, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	for name, cfg := range cfgs {
		if cfg == nil {
			continue
		}
		var tool Tool
		switch cfg.Type {
		case "search":
			if search == nil {
				continue
			}
			tool = NewSearchTool(name, search)
		case "calculator":
			tool = NewCalculatorTool(name)
		case "current_time":
			tool = NewCurrentTimeTool(name)
		case "web_request":
			tool = NewWebRequestTool(name, cfg.AllowedHosts)
		default:
			return nil, fmt.Errorf("unknown tool type %q for tool %s", cfg.Type, name)
		}
		if err := r.Register(tool, cfg.Timeout); err != nil {
			return nil, fmt.Errorf("failed to register tool %s: %w", name, err)
		}
	}
	return r, nil
}
