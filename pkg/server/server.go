// Package server exposes the operational surface of the core: health,
// metrics, and task inspection. It is deliberately thin; submission and
// generation traffic go through the library API, not HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/strandkit/strand/pkg/config"
	"github.com/strandkit/strand/pkg/orchestrator"
)

// TaskService is what the listener needs from the orchestrator.
type TaskService interface {
	Status(ctx context.Context, id string) (*orchestrator.Task, error)
	Cancel(ctx context.Context, id string) (bool, error)
}

// WorkflowLister names the registered workflows.
type WorkflowLister interface {
	Names() []string
}

type Server struct {
	srv       *http.Server
	tasks     TaskService
	workflows WorkflowLister
	logger    *slog.Logger
}

func New(cfg config.ServerConfig, tasks TaskService, workflows WorkflowLister, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{tasks: tasks, workflows: workflows, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/workflows", s.handleListWorkflows)
		r.Get("/tasks/{id}", s.handleTaskStatus)
		r.Post("/tasks/{id}/cancel", s.handleTaskCancel)
	})

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start launches the listener in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("ops server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server failed", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("ops server shutdown failed", "error", err)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	names := s.workflows.Names()
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string]any{"workflows": names})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.tasks.Status(r.Context(), id)
	if errors.Is(err, orchestrator.ErrTaskNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	if err != nil {
		s.logger.Error("task status lookup failed", "task_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleTaskCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := s.tasks.Cancel(r.Context(), id)
	if errors.Is(err, orchestrator.ErrTaskNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	if err != nil {
		s.logger.Error("task cancel failed", "task_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": ok})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
