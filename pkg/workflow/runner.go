package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/strandkit/strand/pkg/agent"
	"github.com/strandkit/strand/pkg/config"
	"github.com/strandkit/strand/pkg/conversation"
	"github.com/strandkit/strand/pkg/observability"
	"github.com/strandkit/strand/pkg/rag"
)

// AgentRunner is what the runner needs from the agent layer.
type AgentRunner interface {
	Execute(ctx context.Context, def *config.AgentConfig, input string, chunks []rag.Chunk, history []agent.Message, opts agent.Options) (*agent.Result, error)
}

// ContextRetriever is the optional retrieval hook. A nil retriever or a
// backend failure both mean running with empty context.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, opts rag.Options) ([]rag.Chunk, error)
}

// Runner executes named workflows over the configured agent set.
type Runner struct {
	workflows map[string]*config.WorkflowConfig
	agents    map[string]*config.AgentConfig
	executor  AgentRunner
	retriever ContextRetriever
	store     conversation.Store
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewRunner(
	workflows map[string]*config.WorkflowConfig,
	agents map[string]*config.AgentConfig,
	executor AgentRunner,
	retriever ContextRetriever,
	store conversation.Store,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		workflows: workflows,
		agents:    agents,
		executor:  executor,
		retriever: retriever,
		store:     store,
		logger:    logger,
		tracer:    observability.GetTracer("strand.workflow"),
	}
}

// Names lists the registered workflows.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		names = append(names, name)
	}
	return names
}

// Run executes the named workflow. It errors only for an unknown
// workflow name; any step failure is reported through the result.
func (r *Runner) Run(ctx context.Context, name, initialInput string, opts *config.RequestOptions) (*Result, error) {
	start := time.Now()
	if opts == nil {
		opts = &config.RequestOptions{}
	}

	wf, ok := r.workflows[name]
	if !ok {
		return nil, &WorkflowError{Workflow: name, Message: "no workflow registered under this name"}
	}

	ctx, span := r.tracer.Start(ctx, observability.SpanWorkflowRun,
		trace.WithAttributes(attribute.String(observability.AttrWorkflowName, name)),
	)
	defer span.End()

	result := &Result{WorkflowName: name}
	chunks := r.retrieveContext(ctx, initialInput, opts)
	history := r.loadHistory(ctx, opts)
	result.ContextUsed = len(chunks) > 0 || len(history) > 0

	outputs := make([]string, 0, len(wf.Steps))
	for i, step := range wf.Steps {
		def, ok := r.agents[step.Agent]
		if !ok {
			result.Error = fmt.Sprintf("step %d references unknown agent %q", i, step.Agent)
			result.Steps = append(result.Steps, StepResult{Agent: step.Agent, Error: result.Error})
			result.Duration = time.Since(start)
			span.SetStatus(codes.Error, result.Error)
			return result, nil
		}

		input := r.stepInput(wf, i, initialInput, outputs)

		agentOpts := agent.Options{
			MaxSteps:    opts.MaxSteps,
			Temperature: opts.Temperature,
			PermitTools: opts.PermitTools,
		}
		stepChunks := chunks
		if i > 0 {
			// Retrieved context feeds the first agent; later steps work
			// from what earlier steps produced.
			stepChunks = nil
		}

		stepResult, err := r.executor.Execute(ctx, def, input, stepChunks, history, agentOpts)
		if err != nil {
			result.Error = fmt.Sprintf("step %d (%s) failed: %v", i, step.Agent, err)
			result.Steps = append(result.Steps, StepResult{Agent: step.Agent, Error: err.Error()})
			result.Duration = time.Since(start)
			span.RecordError(err)
			span.SetStatus(codes.Error, result.Error)
			r.logger.Error("workflow aborted", "workflow", name, "step", i, "agent", step.Agent, "error", err)
			return result, nil
		}

		result.Steps = append(result.Steps, StepResult{Agent: step.Agent, Result: stepResult})
		result.AgentsUsed = append(result.AgentsUsed, def.Role)
		outputs = append(outputs, stepResult.Answer)
	}

	result.FinalAnswer = outputs[len(outputs)-1]
	result.Success = true
	result.Duration = time.Since(start)
	span.SetStatus(codes.Ok, "success")

	if opts.SaveConversation {
		r.persistTurn(ctx, result, initialInput, opts.ConversationID)
	}

	r.logger.Info("workflow complete",
		"workflow", name, "steps", len(result.Steps), "duration", result.Duration)
	return result, nil
}

// stepInput applies the step's declared input rule and, past the first
// step, the structured prior-output block.
func (r *Runner) stepInput(wf *config.WorkflowConfig, i int, initialInput string, outputs []string) string {
	step := wf.Steps[i]

	if i == 0 {
		return initialInput
	}
	prevAgent := wf.Steps[i-1].Agent
	priorBlock := fmt.Sprintf("Output from the previous step (%s):\n%s", prevAgent, outputs[i-1])

	switch step.Input {
	case config.StepInputPrevious:
		return priorBlock
	case config.StepInputTemplate:
		return renderTemplate(step.Template, initialInput, outputs)
	default:
		return fmt.Sprintf("%s\n\n%s", initialInput, priorBlock)
	}
}

// renderTemplate substitutes {{initial}} and {{step.N}} placeholders.
func renderTemplate(template, initialInput string, outputs []string) string {
	rendered := strings.ReplaceAll(template, "{{initial}}", initialInput)
	for i, output := range outputs {
		rendered = strings.ReplaceAll(rendered, fmt.Sprintf("{{step.%d}}", i), output)
	}
	return rendered
}

func (r *Runner) retrieveContext(ctx context.Context, input string, opts *config.RequestOptions) []rag.Chunk {
	if r.retriever == nil || strings.TrimSpace(input) == "" {
		return nil
	}

	ragOpts := rag.Options{MinScore: -1}
	if opts.RetrievalK != nil {
		ragOpts.K = *opts.RetrievalK
	}
	if opts.RetrievalMinScore != nil {
		ragOpts.MinScore = *opts.RetrievalMinScore
	}

	chunks, err := r.retriever.Retrieve(ctx, input, ragOpts)
	if err != nil {
		// Retrieval is an enrichment, not a dependency.
		if errors.Is(err, rag.ErrVectorBackendUnavailable) {
			r.logger.Warn("vector backend unavailable, continuing without context", "error", err)
		} else {
			r.logger.Warn("retrieval failed, continuing without context", "error", err)
		}
		return nil
	}
	return chunks
}

func (r *Runner) loadHistory(ctx context.Context, opts *config.RequestOptions) []agent.Message {
	if r.store == nil || opts.ConversationID == "" {
		return nil
	}

	stored, err := r.store.LoadConversation(ctx, opts.ConversationID, 20)
	if err != nil {
		if !errors.Is(err, conversation.ErrConversationNotFound) {
			r.logger.Warn("failed to load conversation history", "conversation_id", opts.ConversationID, "error", err)
		}
		return nil
	}

	history := make([]agent.Message, 0, len(stored))
	for _, msg := range stored {
		history = append(history, agent.Message{Role: msg.Role, Content: msg.Content})
	}
	return history
}

// persistTurn appends the user input and final answer as one atomic
// batch. Runs that aborted never reach here.
func (r *Runner) persistTurn(ctx context.Context, result *Result, input, conversationID string) {
	if r.store == nil {
		return
	}

	if conversationID == "" {
		conv, err := r.store.CreateConversation(ctx, "", map[string]any{"workflow": result.WorkflowName})
		if err != nil {
			r.logger.Error("failed to create conversation", "error", err)
			return
		}
		conversationID = conv.ID
	}

	err := r.store.AppendMessages(ctx, conversationID, []conversation.Message{
		{Role: conversation.RoleUser, Content: input},
		{
			Role:    conversation.RoleAssistant,
			Content: result.FinalAnswer,
			Metadata: map[string]any{
				"workflow":    result.WorkflowName,
				"agents_used": result.AgentsUsed,
			},
		},
	})
	if err != nil {
		r.logger.Error("failed to persist conversation turn", "conversation_id", conversationID, "error", err)
		return
	}
	result.ConversationID = conversationID
}
