package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ToolExecution is emitted once per tool call, whatever its outcome.
type ToolExecution struct {
	ToolName       string
	TenantID       string
	ConversationID string
	Success        bool
	Duration       time.Duration
	ErrorType      string
}

// ReasoningPass is emitted once per backend invocation.
type ReasoningPass struct {
	TenantID       string
	ConversationID string
	MessageCount   int
	ToolCallCount  int
	Duration       time.Duration
	Success        bool
	Provider       string
}

// Sink is a write-only collaborator; the engine never reads metrics back.
type Sink interface {
	RecordToolExecution(e ToolExecution)
	RecordReasoningPass(p ReasoningPass)
}

var _ Sink = (*PromSink)(nil)

// PromSink publishes execution metrics to a Prometheus registry. Tenant is a
// label; conversation is deliberately not, to keep cardinality bounded.
type PromSink struct {
	toolExecutions *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
	reasoningPass  *prometheus.CounterVec
	reasonDuration *prometheus.HistogramVec
}

func NewPromSink(reg prometheus.Registerer) *PromSink {
	s := &PromSink{
		toolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pawdesk",
			Name:      "tool_executions_total",
			Help:      "Tool executions by tool, tenant, outcome and error type.",
		}, []string{"tool", "tenant", "outcome", "error_type"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pawdesk",
			Name:      "tool_execution_seconds",
			Help:      "Tool execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool", "tenant"}),
		reasoningPass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pawdesk",
			Name:      "reasoning_passes_total",
			Help:      "Reasoning backend invocations by provider and outcome.",
		}, []string{"provider", "tenant", "outcome"}),
		reasonDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pawdesk",
			Name:      "reasoning_pass_seconds",
			Help:      "Reasoning pass latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"provider", "tenant"}),
	}

	reg.MustRegister(s.toolExecutions, s.toolDuration, s.reasoningPass, s.reasonDuration)

	return s
}

func (s *PromSink) RecordToolExecution(e ToolExecution) {
	outcome := "success"
	if !e.Success {
		outcome = "failure"
	}
	s.toolExecutions.WithLabelValues(e.ToolName, e.TenantID, outcome, e.ErrorType).Inc()
	s.toolDuration.WithLabelValues(e.ToolName, e.TenantID).Observe(e.Duration.Seconds())
}

func (s *PromSink) RecordReasoningPass(p ReasoningPass) {
	outcome := "success"
	if !p.Success {
		outcome = "failure"
	}
	s.reasoningPass.WithLabelValues(p.Provider, p.TenantID, outcome).Inc()
	s.reasonDuration.WithLabelValues(p.Provider, p.TenantID).Observe(p.Duration.Seconds())
}

var _ Sink = (*NoopSink)(nil)

// NoopSink discards everything. Used in tests.
type NoopSink struct{}

func (NoopSink) RecordToolExecution(ToolExecution) {}
func (NoopSink) RecordReasoningPass(ReasoningPass) {}
