package runtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/strandkit/strand/pkg/agent"
	"github.com/strandkit/strand/pkg/config"
	"github.com/strandkit/strand/pkg/orchestrator"
	"github.com/strandkit/strand/pkg/rag"
)

// registerHandlers binds the task kinds to the component graph. Bodies
// honor context cancellation, so a cancelled task settles at the next
// provider, tool, or step boundary.
func (r *Runtime) registerHandlers() {
	r.orchestrator.RegisterHandler(orchestrator.KindRunWorkflow, r.handleRunWorkflow)
	r.orchestrator.RegisterHandler(orchestrator.KindExecuteAgent, r.handleExecuteAgent)
	r.orchestrator.RegisterHandler(orchestrator.KindIngestDocument, r.handleIngestDocument)
	r.orchestrator.RegisterHandler(orchestrator.KindMultiModalAnalysis, r.handleMultiModalAnalysis)
}

func (r *Runtime) handleRunWorkflow(ctx context.Context, task *orchestrator.Task) (any, error) {
	var p orchestrator.RunWorkflowPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return nil, fmt.Errorf("invalid run_workflow payload: %w", err)
	}

	opts, err := config.DecodeRequestOptions(p.Options, r.logger)
	if err != nil {
		return nil, fmt.Errorf("invalid request options: %w", err)
	}
	if p.ConversationID != "" {
		opts.ConversationID = p.ConversationID
	}

	if r.cfg.Orchestrator.WorkflowTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Orchestrator.WorkflowTimeout)
		defer cancel()
	}

	res, err := r.workflows.Run(ctx, p.Workflow, p.Input, opts)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("workflow %s failed: %s", p.Workflow, res.Error)
	}
	return res, nil
}

func (r *Runtime) handleExecuteAgent(ctx context.Context, task *orchestrator.Task) (any, error) {
	var p orchestrator.ExecuteAgentPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return nil, fmt.Errorf("invalid execute_agent payload: %w", err)
	}

	def, ok := r.cfg.Agents[p.Agent]
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", p.Agent)
	}

	chunks, err := r.retriever.Retrieve(ctx, p.Input, rag.Options{MinScore: -1})
	if err != nil {
		r.logger.Warn("retrieval failed, running without context", "agent", p.Agent, "error", err)
		chunks = nil
	}

	return r.executor.Execute(ctx, def, p.Input, chunks, nil, agent.Options{})
}

func (r *Runtime) handleIngestDocument(ctx context.Context, task *orchestrator.Task) (any, error) {
	var p orchestrator.IngestDocumentPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return nil, fmt.Errorf("invalid ingest_document payload: %w", err)
	}
	return r.ingester.IngestFile(ctx, p.Path, p.Metadata)
}

// handleMultiModalAnalysis extracts text from the referenced media and
// feeds it through the ingest pipeline so later retrieval sees it. The
// heavy lifting lives in the extractor layer.
func (r *Runtime) handleMultiModalAnalysis(ctx context.Context, task *orchestrator.Task) (any, error) {
	var p orchestrator.MultiModalAnalysisPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return nil, fmt.Errorf("invalid multi_modal_analysis payload: %w", err)
	}

	extractor, err := rag.FindExtractor(rag.DefaultExtractors(), p.MediaRef)
	if err != nil {
		return nil, err
	}
	text, err := extractor.Extract(p.MediaRef)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", p.MediaRef, err)
	}

	res, err := r.ingester.IngestText(ctx, text, map[string]any{"media_ref": p.MediaRef})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"media_ref":   p.MediaRef,
		"document_id": res.DocumentID,
		"chunks":      res.Chunks,
		"characters":  len(text),
	}, nil
}
