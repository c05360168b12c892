package observability

// Span names used across the core.
const (
	SpanGeneration    = "strand.llm.generate"
	SpanToolExecution = "strand.tool.execute"
	SpanRetrieval     = "strand.rag.retrieve"
	SpanAgentRun      = "strand.agent.execute"
	SpanWorkflowRun   = "strand.workflow.run"
	SpanTaskExecution = "strand.task.execute"
)

// Attribute keys shared by spans and metrics.
const (
	AttrProviderName = "llm.provider"
	AttrModelName    = "llm.model"
	AttrToolName     = "tool.name"
	AttrAgentRole    = "agent.role"
	AttrWorkflowName = "workflow.name"
	AttrTaskKind     = "task.kind"
	AttrTaskID       = "task.id"
)
