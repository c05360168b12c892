package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/strandkit/strand/pkg/config"
	"github.com/strandkit/strand/pkg/llms"
	"github.com/strandkit/strand/pkg/observability"
	"github.com/strandkit/strand/pkg/rag"
	"github.com/strandkit/strand/pkg/tools"
)

// Generator is what the executor needs from the provider layer.
type Generator interface {
	Generate(ctx context.Context, prompt string, params llms.GenerateParams) (*llms.Generation, error)
	HasProviders() bool
}

// ToolExecutor is what the executor needs from the tool layer.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any) (tools.ToolResult, error)
	List() []tools.ToolInfo
}

// Executor runs agent definitions. One Executor serves all agents; the
// definition travels with each call.
type Executor struct {
	generator Generator
	tools     ToolExecutor
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewExecutor(generator Generator, toolExec ToolExecutor, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		generator: generator,
		tools:     toolExec,
		logger:    logger,
		tracer:    observability.GetTracer("strand.agent"),
	}
}

// Execute runs the reason/act loop for one definition and input. Tool
// failures are absorbed as observations; only provider-layer failures
// (other than the no-provider case) return an error.
func (e *Executor) Execute(ctx context.Context, def *config.AgentConfig, input string, chunks []rag.Chunk, history []Message, opts Options) (*Result, error) {
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, observability.SpanAgentRun,
		trace.WithAttributes(attribute.String(observability.AttrAgentRole, def.Role)),
	)
	defer span.End()

	finish := func(result *Result, err error) (*Result, error) {
		result.Role = def.Role
		result.Duration = time.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.GetGlobalMetrics().RecordAgentRun(ctx, def.Role, result.Duration, result.TotalTokens, err)
		return result, err
	}

	if isBlankInput(input) {
		return finish(&Result{
			Answer:  "I did not receive a question. Could you tell me what you would like help with?",
			Success: true,
		}, nil)
	}

	if !e.generator.HasProviders() {
		return finish(e.stubResult(def, input), nil)
	}

	maxSteps := def.MaxSteps
	if opts.MaxSteps != nil {
		maxSteps = *opts.MaxSteps
	}
	// max_steps of zero means one provider call returned verbatim, with
	// no tool execution.
	verbatim := maxSteps <= 0
	callBudget := maxSteps
	if verbatim {
		callBudget = 1
	}

	params := llms.GenerateParams{Temperature: def.Temperature, MaxTokens: def.MaxTokens}
	if opts.Temperature != nil {
		params.Temperature = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = opts.MaxTokens
	}

	permitted := permittedSet(def, opts)
	toolInfos := e.permittedTools(permitted)

	result := &Result{}
	var steps []Step
	var lastObservation string
	toolsUsed := make(map[string]bool)

	for call := 0; call < callBudget; call++ {
		prompt := buildPrompt(def, input, chunks, history, steps, toolInfos)

		gen, err := e.generator.Generate(ctx, prompt, params)
		if err != nil {
			if errors.Is(err, llms.ErrNoProviders) {
				return finish(e.stubResult(def, input), nil)
			}
			result.Steps = steps
			return finish(result, fmt.Errorf("generation failed for agent %s: %w", def.Role, err))
		}

		result.Provider = gen.Provider
		result.Model = gen.Model
		result.Fallback = result.Fallback || gen.Fallback
		promptTokens := gen.PromptTokens
		if promptTokens == 0 {
			promptTokens = estimateTokens(prompt)
		}
		completionTokens := gen.CompletionTokens
		if completionTokens == 0 {
			completionTokens = estimateTokens(gen.Text)
		}
		result.PromptTokens += promptTokens
		result.CompletionTokens += completionTokens
		result.TotalTokens = result.PromptTokens + result.CompletionTokens

		outcome := parseCompletion(gen.Text)

		if verbatim {
			if outcome.kind == outcomeFinal {
				result.Answer = outcome.answer
			} else {
				result.Answer = gen.Text
				result.Truncated = true
			}
			result.Success = true
			result.Steps = steps
			return finish(result, nil)
		}

		switch outcome.kind {
		case outcomeFinal:
			steps = append(steps, Step{Thought: outcome.thought, Observation: outcome.answer, Status: StepStatusOK})
			result.Answer = outcome.answer
			result.Success = true
			result.Steps = steps
			result.ToolsUsed = setToList(toolsUsed)
			return finish(result, nil)

		case outcomeUnparseable:
			result.Answer = outcome.answer
			result.Success = true
			result.ParseRecovery = true
			result.Steps = steps
			result.ToolsUsed = setToList(toolsUsed)
			return finish(result, nil)

		case outcomeToolCall:
			step := e.runTool(ctx, def, outcome, permitted, toolsUsed)
			steps = append(steps, step)
			lastObservation = step.Observation
		}
	}

	// Loop exhausted without a final answer.
	if lastObservation == "" {
		lastObservation = "no observations were collected"
	}
	result.Answer = fmt.Sprintf("Reached the reasoning step limit before a final answer. Last observation: %s", lastObservation)
	result.Success = true
	result.Truncated = true
	result.Steps = steps
	result.ToolsUsed = setToList(toolsUsed)
	return finish(result, nil)
}

// runTool invokes one tool call and folds the outcome into an
// observation step. Invalid input gets a schema hint so the model can
// correct itself on the next iteration.
func (e *Executor) runTool(ctx context.Context, def *config.AgentConfig, outcome completionOutcome, permitted map[string]bool, toolsUsed map[string]bool) Step {
	argsJSON, _ := json.Marshal(outcome.args)
	step := Step{
		Thought: outcome.thought,
		Action:  fmt.Sprintf("%s %s", outcome.tool, argsJSON),
	}

	if e.tools == nil || !permitted[outcome.tool] {
		step.Status = StepStatusError
		step.Observation = fmt.Sprintf("tool %q is not permitted for this agent", outcome.tool)
		return step
	}

	toolsUsed[outcome.tool] = true
	result, err := e.tools.Execute(ctx, outcome.tool, outcome.args)
	switch {
	case errors.Is(err, tools.ErrToolInputInvalid):
		step.Status = StepStatusError
		step.Observation = fmt.Sprintf("tool %s rejected the arguments, check them against its schema: %v", outcome.tool, err)
	case err != nil:
		step.Status = StepStatusError
		step.Observation = fmt.Sprintf("tool %s failed: %v", outcome.tool, err)
	case !result.Success:
		step.Status = StepStatusError
		step.Observation = fmt.Sprintf("tool %s reported an error: %s", outcome.tool, result.Error)
	default:
		step.Status = StepStatusOK
		step.Observation = result.Content
	}

	e.logger.Debug("tool step", "agent", def.Role, "tool", outcome.tool, "status", step.Status)
	return step
}

// stubResult is the deterministic answer used when no provider is
// configured. Keeps workflows runnable end to end without credentials.
func (e *Executor) stubResult(def *config.AgentConfig, input string) *Result {
	answer := fmt.Sprintf(
		"No language model provider is available. This is a deterministic fallback answer from the %s agent for the input: %q",
		def.Role, input)
	return &Result{
		Answer:           answer,
		Success:          true,
		Fallback:         true,
		PromptTokens:     estimateTokens(input),
		CompletionTokens: estimateTokens(answer),
		TotalTokens:      estimateTokens(input) + estimateTokens(answer),
	}
}

// permittedSet is the definition's tool list, optionally narrowed by the
// per-request PermitTools option.
func permittedSet(def *config.AgentConfig, opts Options) map[string]bool {
	permitted := make(map[string]bool, len(def.Tools))
	for _, name := range def.Tools {
		permitted[name] = true
	}
	if opts.PermitTools != nil {
		narrowed := make(map[string]bool, len(opts.PermitTools))
		for _, name := range opts.PermitTools {
			if permitted[name] {
				narrowed[name] = true
			}
		}
		permitted = narrowed
	}
	return permitted
}

func (e *Executor) permittedTools(permitted map[string]bool) []tools.ToolInfo {
	if e.tools == nil || len(permitted) == 0 {
		return nil
	}
	var infos []tools.ToolInfo
	for _, info := range e.tools.List() {
		if permitted[info.Name] {
			infos = append(infos, info)
		}
	}
	return infos
}

func isBlankInput(input string) bool {
	for _, r := range input {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

func setToList(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	list := make([]string, 0, len(set))
	for name := range set {
		list = append(list, name)
	}
	return list
}
