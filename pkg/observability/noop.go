package observability

import (
	"context"
	"time"
)

// NoopMetrics discards all measurements.
type NoopMetrics struct{}

func (NoopMetrics) RecordAgentRun(_ context.Context, _ string, _ time.Duration, _ int, _ error) {}
func (NoopMetrics) RecordToolExecution(_ context.Context, _ string, _ time.Duration, _ error)  {}
func (NoopMetrics) RecordLLMCall(_ context.Context, _, _ string, _ time.Duration, _, _ int, _ error) {
}
func (NoopMetrics) RecordRetrieval(_ context.Context, _ time.Duration, _ int, _ error) {}
func (NoopMetrics) RecordTaskTransition(_ context.Context, _, _ string)                {}
func (NoopMetrics) RecordTaskDuration(_ context.Context, _ string, _ time.Duration, _ error) {
}
func (NoopMetrics) SetQueueDepth(_ context.Context, _ int64) {}

var _ Metrics = NoopMetrics{}
