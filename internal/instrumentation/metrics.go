package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency.
const (
	attrOperation = "operation"
	attrResult    = "result"
	attrStage     = "stage"
)

// Result values recorded on the attachment counter.
const (
	ResultWritten    = "written"
	ResultExcluded   = "excluded"
	ResultUnsafePath = "unsafe_path"
	ResultWriteError = "write_error"
)

// Result values recorded on the message counter.
const (
	ResultProcessed  = "processed"
	ResultVanished   = "vanished"
	ResultBadDate    = "unparsable_date"
)

// Metrics provides methods for recording pipeline observability metrics.
// The zero value is a no-op recorder, so callers never need nil checks.
type Metrics struct {
	messagesTotal    metric.Int64Counter
	attachmentsTotal metric.Int64Counter
	apiDuration      metric.Float64Histogram
	stageDuration    metric.Float64Histogram
}

// NewMetrics creates a Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.messagesTotal, err = meter.Int64Counter(
		"mailharvest_messages_total",
		metric.WithDescription("Total number of messages seen by the extraction pipeline"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailharvest_messages_total counter: %w", err)
	}

	m.attachmentsTotal, err = meter.Int64Counter(
		"mailharvest_attachments_total",
		metric.WithDescription("Total number of attachments handled, by result"),
		metric.WithUnit("{attachment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailharvest_attachments_total counter: %w", err)
	}

	m.apiDuration, err = meter.Float64Histogram(
		"gmail_api_operation_duration_seconds",
		metric.WithDescription("Gmail API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail_api_operation_duration_seconds histogram: %w", err)
	}

	m.stageDuration, err = meter.Float64Histogram(
		"mailharvest_stage_duration_seconds",
		metric.WithDescription("Pipeline stage duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 5.0, 15.0, 60.0, 300.0, 900.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailharvest_stage_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordMessage records one listed message and how it ended up.
func (m *Metrics) RecordMessage(ctx context.Context, result string) {
	if m == nil || m.messagesTotal == nil {
		return
	}
	m.messagesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}

// RecordAttachment records one attachment and how it ended up.
func (m *Metrics) RecordAttachment(ctx context.Context, result string) {
	if m == nil || m.attachmentsTotal == nil {
		return
	}
	m.attachmentsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}

// RecordAPIOperation records the duration of one Gmail API call.
func (m *Metrics) RecordAPIOperation(ctx context.Context, operation string, duration time.Duration) {
	if m == nil || m.apiDuration == nil {
		return
	}
	m.apiDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrOperation, operation),
	))
}

// RecordStage records the duration of one pipeline stage run.
func (m *Metrics) RecordStage(ctx context.Context, stage string, duration time.Duration) {
	if m == nil || m.stageDuration == nil {
		return
	}
	m.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrStage, stage),
	))
}
