package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/briefcase-hq/briefcase/engine/infra/monitoring/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MonitorMetrics exposes instruments for the task execution monitor.
// A nil *MonitorMetrics is valid and records nothing.
type MonitorMetrics struct {
	streamConnects   metric.Int64Counter
	streamReconnects metric.Int64Counter
	reconnectDelay   metric.Float64Histogram
	streamExhausted  metric.Int64Counter
	streamMessages   metric.Int64Counter
	pollErrors       metric.Int64Counter
	pollDuration     metric.Float64Histogram
	stalls           metric.Int64Counter
	finalized        metric.Int64Counter
	activeSessions   metric.Int64UpDownCounter
}

// NewMonitorMetrics registers the monitor instruments on meter.
func NewMonitorMetrics(meter metric.Meter) (*MonitorMetrics, error) {
	if meter == nil {
		return nil, nil
	}
	m := &MonitorMetrics{}
	var err error
	if m.streamConnects, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("stream", "connects_total"),
		metric.WithDescription("Successful stream connections"),
	); err != nil {
		return nil, fmt.Errorf("create stream connects counter: %w", err)
	}
	if m.streamReconnects, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("stream", "reconnects_total"),
		metric.WithDescription("Scheduled stream reconnect attempts"),
	); err != nil {
		return nil, fmt.Errorf("create stream reconnects counter: %w", err)
	}
	if m.reconnectDelay, err = meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("stream", "reconnect_delay_seconds"),
		metric.WithDescription("Backoff delay before a stream reconnect"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.ReconnectDelayBuckets...),
	); err != nil {
		return nil, fmt.Errorf("create reconnect delay histogram: %w", err)
	}
	if m.streamExhausted, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("stream", "exhausted_total"),
		metric.WithDescription("Streams that fell back to poll-only mode"),
	); err != nil {
		return nil, fmt.Errorf("create stream exhausted counter: %w", err)
	}
	if m.streamMessages, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("stream", "messages_total"),
		metric.WithDescription("Stream messages received by type"),
	); err != nil {
		return nil, fmt.Errorf("create stream messages counter: %w", err)
	}
	if m.pollErrors, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("poll", "errors_total"),
		metric.WithDescription("Failed poll requests"),
	); err != nil {
		return nil, fmt.Errorf("create poll errors counter: %w", err)
	}
	if m.pollDuration, err = meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("poll", "duration_seconds"),
		metric.WithDescription("Duration of one poll round"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.PollDurationBuckets...),
	); err != nil {
		return nil, fmt.Errorf("create poll duration histogram: %w", err)
	}
	if m.stalls, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("monitor", "stalls_total"),
		metric.WithDescription("Running tasks flagged as stalled"),
	); err != nil {
		return nil, fmt.Errorf("create stalls counter: %w", err)
	}
	if m.finalized, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("monitor", "finalized_total"),
		metric.WithDescription("Tasks finalized by source and status"),
	); err != nil {
		return nil, fmt.Errorf("create finalized counter: %w", err)
	}
	if m.activeSessions, err = meter.Int64UpDownCounter(
		metrics.MetricNameWithSubsystem("monitor", "active_sessions"),
		metric.WithDescription("Monitor sessions currently bound to a task"),
	); err != nil {
		return nil, fmt.Errorf("create active sessions counter: %w", err)
	}
	return m, nil
}

func (m *MonitorMetrics) StreamConnected(ctx context.Context) {
	if m == nil {
		return
	}
	m.streamConnects.Add(ctx, 1)
}

func (m *MonitorMetrics) ReconnectScheduled(ctx context.Context, attempt int, delay time.Duration) {
	if m == nil {
		return
	}
	m.streamReconnects.Add(ctx, 1, metric.WithAttributes(attribute.Int("attempt", attempt)))
	m.reconnectDelay.Record(ctx, delay.Seconds())
}

func (m *MonitorMetrics) StreamExhausted(ctx context.Context) {
	if m == nil {
		return
	}
	m.streamExhausted.Add(ctx, 1)
}

func (m *MonitorMetrics) MessageReceived(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.streamMessages.Add(ctx, 1, metric.WithAttributes(attribute.String("type", kind)))
}

func (m *MonitorMetrics) PollCompleted(ctx context.Context, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.pollDuration.Record(ctx, took.Seconds())
	if err != nil {
		m.pollErrors.Add(ctx, 1)
	}
}

func (m *MonitorMetrics) StallDetected(ctx context.Context) {
	if m == nil {
		return
	}
	m.stalls.Add(ctx, 1)
}

func (m *MonitorMetrics) TaskFinalized(ctx context.Context, source, status string) {
	if m == nil {
		return
	}
	m.finalized.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("status", status),
	))
}

func (m *MonitorMetrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeSessions.Add(ctx, 1)
}

func (m *MonitorMetrics) SessionStopped(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeSessions.Add(ctx, -1)
}
