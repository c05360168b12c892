package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

// Metrics records the core's operational measurements. All methods are safe
// for concurrent use and must tolerate a nil error.
type Metrics interface {
	RecordAgentRun(ctx context.Context, role string, duration time.Duration, tokens int, err error)
	RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error)
	RecordLLMCall(ctx context.Context, provider, model string, duration time.Duration, promptTokens, completionTokens int, err error)
	RecordRetrieval(ctx context.Context, duration time.Duration, results int, err error)
	RecordTaskTransition(ctx context.Context, kind, state string)
	RecordTaskDuration(ctx context.Context, kind string, duration time.Duration, err error)
	SetQueueDepth(ctx context.Context, depth int64)
}

func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	if globalMetrics == nil {
		return NoopMetrics{}
	}
	return globalMetrics
}

// PrometheusMetrics implements Metrics over an otel meter backed by the
// Prometheus exporter.
type PrometheusMetrics struct {
	agentDuration metric.Float64Histogram
	agentRuns     metric.Int64Counter
	agentErrors   metric.Int64Counter
	agentTokens   metric.Int64Counter

	toolDuration metric.Float64Histogram
	toolCalls    metric.Int64Counter
	toolErrors   metric.Int64Counter

	llmDuration         metric.Float64Histogram
	llmPromptTokens     metric.Int64Counter
	llmCompletionTokens metric.Int64Counter
	llmErrors           metric.Int64Counter

	retrievalDuration metric.Float64Histogram
	retrievalResults  metric.Int64Counter

	taskTransitions metric.Int64Counter
	taskDuration    metric.Float64Histogram
	queueDepth      metric.Int64Gauge
}

func InitMetrics(cfg MetricsConfig) (Metrics, error) {
	if !cfg.Enabled {
		return NoopMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	meter := meterProvider.Meter("strand")

	m := &PrometheusMetrics{}

	if m.agentDuration, err = meter.Float64Histogram(
		"strand_agent_run_duration_seconds",
		metric.WithDescription("Agent run duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create agent duration histogram: %w", err)
	}

	if m.agentRuns, err = meter.Int64Counter(
		"strand_agent_runs_total",
		metric.WithDescription("Total agent runs"),
	); err != nil {
		return nil, fmt.Errorf("failed to create agent runs counter: %w", err)
	}

	if m.agentErrors, err = meter.Int64Counter(
		"strand_agent_errors_total",
		metric.WithDescription("Total agent run errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create agent errors counter: %w", err)
	}

	if m.agentTokens, err = meter.Int64Counter(
		"strand_agent_tokens_used_total",
		metric.WithDescription("Total tokens used by agent runs"),
	); err != nil {
		return nil, fmt.Errorf("failed to create agent tokens counter: %w", err)
	}

	if m.toolDuration, err = meter.Float64Histogram(
		"strand_tool_execution_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}

	if m.toolCalls, err = meter.Int64Counter(
		"strand_tool_calls_total",
		metric.WithDescription("Total tool calls"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool calls counter: %w", err)
	}

	if m.toolErrors, err = meter.Int64Counter(
		"strand_tool_errors_total",
		metric.WithDescription("Total tool errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool errors counter: %w", err)
	}

	if m.llmDuration, err = meter.Float64Histogram(
		"strand_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	if m.llmPromptTokens, err = meter.Int64Counter(
		"strand_llm_prompt_tokens_total",
		metric.WithDescription("Total prompt tokens sent to providers"),
	); err != nil {
		return nil, fmt.Errorf("failed to create prompt tokens counter: %w", err)
	}

	if m.llmCompletionTokens, err = meter.Int64Counter(
		"strand_llm_completion_tokens_total",
		metric.WithDescription("Total completion tokens returned by providers"),
	); err != nil {
		return nil, fmt.Errorf("failed to create completion tokens counter: %w", err)
	}

	if m.llmErrors, err = meter.Int64Counter(
		"strand_llm_errors_total",
		metric.WithDescription("Total LLM call errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	if m.retrievalDuration, err = meter.Float64Histogram(
		"strand_retrieval_duration_seconds",
		metric.WithDescription("Vector retrieval duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create retrieval duration histogram: %w", err)
	}

	if m.retrievalResults, err = meter.Int64Counter(
		"strand_retrieval_results_total",
		metric.WithDescription("Total chunks returned by retrieval"),
	); err != nil {
		return nil, fmt.Errorf("failed to create retrieval results counter: %w", err)
	}

	if m.taskTransitions, err = meter.Int64Counter(
		"strand_task_transitions_total",
		metric.WithDescription("Total task state transitions"),
	); err != nil {
		return nil, fmt.Errorf("failed to create task transitions counter: %w", err)
	}

	if m.taskDuration, err = meter.Float64Histogram(
		"strand_task_duration_seconds",
		metric.WithDescription("Task execution duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create task duration histogram: %w", err)
	}

	if m.queueDepth, err = meter.Int64Gauge(
		"strand_dispatch_queue_depth",
		metric.WithDescription("Current dispatch queue depth"),
	); err != nil {
		return nil, fmt.Errorf("failed to create queue depth gauge: %w", err)
	}

	return m, nil
}

func (m *PrometheusMetrics) RecordAgentRun(ctx context.Context, role string, duration time.Duration, tokens int, err error) {
	attrs := metric.WithAttributes(attribute.String(AttrAgentRole, role))
	m.agentRuns.Add(ctx, 1, attrs)
	m.agentDuration.Record(ctx, duration.Seconds(), attrs)
	m.agentTokens.Add(ctx, int64(tokens), attrs)
	if err != nil {
		m.agentErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String(AttrToolName, tool))
	m.toolCalls.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.toolErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, provider, model string, duration time.Duration, promptTokens, completionTokens int, err error) {
	attrs := metric.WithAttributes(
		attribute.String(AttrProviderName, provider),
		attribute.String(AttrModelName, model),
	)
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	m.llmPromptTokens.Add(ctx, int64(promptTokens), attrs)
	m.llmCompletionTokens.Add(ctx, int64(completionTokens), attrs)
	if err != nil {
		m.llmErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordRetrieval(ctx context.Context, duration time.Duration, results int, err error) {
	m.retrievalDuration.Record(ctx, duration.Seconds())
	if err == nil {
		m.retrievalResults.Add(ctx, int64(results))
	}
}

func (m *PrometheusMetrics) RecordTaskTransition(ctx context.Context, kind, state string) {
	m.taskTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrTaskKind, kind),
		attribute.String("task.state", state),
	))
}

func (m *PrometheusMetrics) RecordTaskDuration(ctx context.Context, kind string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String(AttrTaskKind, kind))
	m.taskDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *PrometheusMetrics) SetQueueDepth(ctx context.Context, depth int64) {
	m.queueDepth.Record(ctx, depth)
}
