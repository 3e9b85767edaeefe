package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrTool   = "tool"
	attrStatus = "status"
)

// Metrics provides methods for recording observability metrics. The zero
// value records nothing.
type Metrics struct {
	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// Fetch pipeline metrics
	fetchesTotal      metric.Int64Counter
	fetchDuration     metric.Float64Histogram
	messagesAssembled metric.Int64Counter
	messagesDiscarded metric.Int64Counter

	// Send metrics
	sendsTotal metric.Int64Counter
}

var durationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	m.fetchesTotal, err = meter.Int64Counter(
		"mail_fetches_total",
		metric.WithDescription("Total number of mailbox fetch operations"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail_fetches_total counter: %w", err)
	}

	m.fetchDuration, err = meter.Float64Histogram(
		"mail_fetch_duration_seconds",
		metric.WithDescription("Mailbox fetch duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail_fetch_duration_seconds histogram: %w", err)
	}

	m.messagesAssembled, err = meter.Int64Counter(
		"mail_messages_assembled_total",
		metric.WithDescription("Messages assembled and returned by fetch operations"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail_messages_assembled_total counter: %w", err)
	}

	m.messagesDiscarded, err = meter.Int64Counter(
		"mail_messages_discarded_total",
		metric.WithDescription("Messages dropped as incomplete or invalid"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail_messages_discarded_total counter: %w", err)
	}

	m.sendsTotal, err = meter.Int64Counter(
		"mail_sends_total",
		metric.WithDescription("Total number of send attempts"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail_sends_total counter: %w", err)
	}

	return m, nil
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordFetch records one fetch operation and the messages it assembled
// and discarded.
func (m *Metrics) RecordFetch(ctx context.Context, status string, assembled, discarded int, duration time.Duration) {
	if m == nil || m.fetchesTotal == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrStatus, status))
	m.fetchesTotal.Add(ctx, 1, attrs)
	m.fetchDuration.Record(ctx, duration.Seconds(), attrs)
	if assembled > 0 {
		m.messagesAssembled.Add(ctx, int64(assembled))
	}
	if discarded > 0 {
		m.messagesDiscarded.Add(ctx, int64(discarded))
	}
}

// RecordSend records one send attempt.
func (m *Metrics) RecordSend(ctx context.Context, status string) {
	if m == nil || m.sendsTotal == nil {
		return
	}
	m.sendsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}
