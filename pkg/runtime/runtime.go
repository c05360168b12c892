// Package runtime assembles the orchestration core from configuration.
// Construction is explicit and top-down; nothing reaches for globals
// except the process-wide observability handle.
package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/strandkit/strand/pkg/agent"
	"github.com/strandkit/strand/pkg/config"
	"github.com/strandkit/strand/pkg/conversation"
	"github.com/strandkit/strand/pkg/embedders"
	"github.com/strandkit/strand/pkg/llms"
	"github.com/strandkit/strand/pkg/logger"
	"github.com/strandkit/strand/pkg/observability"
	"github.com/strandkit/strand/pkg/orchestrator"
	"github.com/strandkit/strand/pkg/rag"
	"github.com/strandkit/strand/pkg/server"
	"github.com/strandkit/strand/pkg/tools"
	"github.com/strandkit/strand/pkg/vector"
	"github.com/strandkit/strand/pkg/workflow"
)

// Runtime owns every long-lived component and their teardown order.
type Runtime struct {
	cfg    *config.Config
	logger *slog.Logger

	obs           *observability.Manager
	dispatcher    *llms.Dispatcher
	toolRegistry  *tools.Registry
	retriever     *rag.Retriever
	ingester      *rag.Ingester
	executor      *agent.Executor
	workflows     *workflow.Runner
	conversations conversation.Store
	taskLog       orchestrator.TaskLog
	orchestrator  *orchestrator.Orchestrator
	server        *server.Server
	watcher       *config.Watcher
}

// New wires the full component graph from an already processed config.
// Nothing starts running until Start.
func New(cfg *config.Config) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	log := logger.Setup(logger.Options{
		Level:  logger.ParseLevel(cfg.Logger.Level),
		Format: cfg.Logger.Format,
	})

	obs := observability.NewManager(cfg.Observability)

	embedder, err := embedders.NewEmbedder(&cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to build embedder: %w", err)
	}
	backend, err := vector.NewProvider(&cfg.Vector)
	if err != nil {
		return nil, fmt.Errorf("failed to build vector backend: %w", err)
	}

	retriever := rag.NewRetriever(backend, embedder, cfg.Vector.Collection, cfg.Retriever, log)
	ingester := rag.NewIngester(backend, embedder, cfg.Vector.Collection, cfg.Retriever.Ingest, log)

	providers, err := llms.NewProviderChain(cfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider chain: %w", err)
	}
	dispatcher := llms.NewDispatcher(providers, log)

	toolRegistry, err := tools.BuildRegistry(cfg.Tools, &retrieverSearch{retriever: retriever}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool registry: %w", err)
	}

	executor := agent.NewExecutor(dispatcher, toolRegistry, log)

	store, err := conversation.NewStore(cfg.Conversation, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build conversation store: %w", err)
	}

	workflows := workflow.NewRunner(cfg.Workflows, cfg.Agents, executor, retriever, store, log)

	taskLog, err := orchestrator.NewTaskLog(cfg.Orchestrator.Log, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to build task log: %w", err)
	}
	orch := orchestrator.New(cfg.Orchestrator, taskLog, log)

	r := &Runtime{
		cfg:           cfg,
		logger:        log,
		obs:           obs,
		dispatcher:    dispatcher,
		toolRegistry:  toolRegistry,
		retriever:     retriever,
		ingester:      ingester,
		executor:      executor,
		workflows:     workflows,
		conversations: store,
		taskLog:       taskLog,
		orchestrator:  orch,
	}
	r.registerHandlers()

	if cfg.Server.Enabled {
		r.server = server.New(cfg.Server, orch, workflows, log)
	}
	return r, nil
}

// Start brings up observability, replays the task log, and launches the
// worker pool and the ops listener.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.obs.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	if err := r.orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}
	if r.server != nil {
		r.server.Start()
	}
	return nil
}

// WatchConfig hot-reloads the provider chain when the config file
// changes. Everything else keeps the startup configuration.
func (r *Runtime) WatchConfig(ctx context.Context, path string) error {
	w, err := config.NewWatcher(path, func(cfg *config.Config) {
		providers, err := llms.NewProviderChain(cfg.Providers)
		if err != nil {
			r.logger.Warn("provider reload rejected", "error", err)
			return
		}
		r.dispatcher.Reload(providers)
	}, r.logger)
	if err != nil {
		return fmt.Errorf("failed to watch config %s: %w", path, err)
	}
	r.watcher = w
	go w.Run(ctx)
	return nil
}

// Stop tears down in reverse construction order.
func (r *Runtime) Stop(ctx context.Context) {
	if r.watcher != nil {
		if err := r.watcher.Close(); err != nil {
			r.logger.Warn("failed to close config watcher", "error", err)
		}
	}
	if r.server != nil {
		r.server.Shutdown(ctx)
	}
	r.orchestrator.Stop()
	if err := r.taskLog.Close(); err != nil {
		r.logger.Warn("failed to close task log", "error", err)
	}
	if err := r.conversations.Close(); err != nil {
		r.logger.Warn("failed to close conversation store", "error", err)
	}
	if err := r.dispatcher.Close(); err != nil {
		r.logger.Warn("failed to close provider chain", "error", err)
	}
	if err := r.obs.Shutdown(ctx); err != nil {
		r.logger.Warn("failed to shut down observability", "error", err)
	}
}

// Orchestrator exposes the task surface to callers (CLI, ops server).
func (r *Runtime) Orchestrator() *orchestrator.Orchestrator { return r.orchestrator }

// Workflows exposes the synchronous workflow surface.
func (r *Runtime) Workflows() *workflow.Runner { return r.workflows }

// Ingester exposes the document ingestion pipeline.
func (r *Runtime) Ingester() *rag.Ingester { return r.ingester }
