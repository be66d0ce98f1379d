package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrResult    = "result"
	attrTool      = "tool"
	attrCalendar  = "calendar_id"
	attrLayer     = "layer"
	attrAction    = "action"
	attrFound     = "found"
)

// Admission results for RecordAppointmentScheduled.
const (
	ResultAdmitted = "admitted"
	ResultRefused  = "refused"
)

// Metrics provides methods for recording observability metrics.
// The zero value and a nil *Metrics record nothing.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Store metrics
	storeOperationsTotal   metric.Int64Counter
	storeOperationDuration metric.Float64Histogram

	// Scheduling metrics
	appointmentsScheduledTotal metric.Int64Counter
	conflictsResolvedTotal     metric.Int64Counter
	conflictsUnresolvedTotal   metric.Int64Counter
	slotSearchDuration         metric.Float64Histogram

	// Digest metrics
	digestRunsTotal   metric.Int64Counter
	underutilizedDays metric.Int64Gauge

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// HTTP Metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	// Store Metrics
	m.storeOperationsTotal, err = meter.Int64Counter(
		"slotkeeper_store_operations_total",
		metric.WithDescription("Total number of appointment store operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create slotkeeper_store_operations_total counter: %w", err)
	}

	m.storeOperationDuration, err = meter.Float64Histogram(
		"slotkeeper_store_operation_duration_seconds",
		metric.WithDescription("Appointment store operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create slotkeeper_store_operation_duration_seconds histogram: %w", err)
	}

	// Scheduling Metrics
	m.appointmentsScheduledTotal, err = meter.Int64Counter(
		"slotkeeper_appointments_scheduled_total",
		metric.WithDescription("Total number of scheduling attempts by requested status and admission result"),
		metric.WithUnit("{appointment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create slotkeeper_appointments_scheduled_total counter: %w", err)
	}

	m.conflictsResolvedTotal, err = meter.Int64Counter(
		"slotkeeper_conflicts_resolved_total",
		metric.WithDescription("Total number of resolved conflicts by strategy layer and action"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create slotkeeper_conflicts_resolved_total counter: %w", err)
	}

	m.conflictsUnresolvedTotal, err = meter.Int64Counter(
		"slotkeeper_conflicts_unresolved_total",
		metric.WithDescription("Total number of conflicts no strategy layer could resolve"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create slotkeeper_conflicts_unresolved_total counter: %w", err)
	}

	m.slotSearchDuration, err = meter.Float64Histogram(
		"slotkeeper_slot_search_duration_seconds",
		metric.WithDescription("Duration of free slot searches in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create slotkeeper_slot_search_duration_seconds histogram: %w", err)
	}

	// Digest Metrics
	m.digestRunsTotal, err = meter.Int64Counter(
		"slotkeeper_digest_runs_total",
		metric.WithDescription("Total number of utilization digest runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create slotkeeper_digest_runs_total counter: %w", err)
	}

	m.underutilizedDays, err = meter.Int64Gauge(
		"slotkeeper_underutilized_days",
		metric.WithDescription("Underutilized days found by the last digest run per calendar"),
		metric.WithUnit("{day}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create slotkeeper_underutilized_days gauge: %w", err)
	}

	// MCP Tool Metrics
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
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordStoreOperation records an appointment store call.
//
// Parameters:
//   - operation: store method (get_calendar, query_appointments, update, ...)
//   - status: StatusSuccess or StatusError
//   - duration: time taken by the call
func (m *Metrics) RecordStoreOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil || m.storeOperationsTotal == nil || m.storeOperationDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.storeOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.storeOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordAppointmentScheduled records a scheduling attempt. status is the
// requested appointment status, result is ResultAdmitted or ResultRefused.
func (m *Metrics) RecordAppointmentScheduled(ctx context.Context, status, result string) {
	if m == nil || m.appointmentsScheduledTotal == nil {
		return
	}

	m.appointmentsScheduledTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrStatus, status),
		attribute.String(attrResult, result),
	))
}

// RecordConflictResolved records one resolved conflict.
func (m *Metrics) RecordConflictResolved(ctx context.Context, layer, action string) {
	if m == nil || m.conflictsResolvedTotal == nil {
		return
	}

	m.conflictsResolvedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrLayer, layer),
		attribute.String(attrAction, action),
	))
}

// RecordConflictUnresolved records one conflict left unresolved.
func (m *Metrics) RecordConflictUnresolved(ctx context.Context) {
	if m == nil || m.conflictsUnresolvedTotal == nil {
		return
	}

	m.conflictsUnresolvedTotal.Add(ctx, 1)
}

// RecordSlotSearch records the duration of a free slot search and whether
// it found anything.
func (m *Metrics) RecordSlotSearch(ctx context.Context, found bool, duration time.Duration) {
	if m == nil || m.slotSearchDuration == nil {
		return
	}

	m.slotSearchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.Bool(attrFound, found),
	))
}

// RecordDigestRun records one utilization digest run.
func (m *Metrics) RecordDigestRun(ctx context.Context, status string) {
	if m == nil || m.digestRunsTotal == nil {
		return
	}

	m.digestRunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}

// RecordUnderutilizedDays sets the number of underutilized days found for a
// calendar. The calendar label is only attached when detailed labels are enabled.
func (m *Metrics) RecordUnderutilizedDays(ctx context.Context, calendarID int64, days int) {
	if m == nil || m.underutilizedDays == nil {
		return
	}

	var attrs []attribute.KeyValue
	if m.detailedLabels {
		attrs = append(attrs, attribute.Int64(attrCalendar, calendarID))
	}
	m.underutilizedDays.Record(ctx, int64(days), metric.WithAttributes(attrs...))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
//
// Parameters:
//   - toolName: Name of the MCP tool (e.g., "calendar_schedule_appointment")
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the tool execution
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	m.RecordToolInvocationWithCalendar(ctx, toolName, status, 0, duration)
}

// RecordToolInvocationWithCalendar records an MCP tool invocation with the
// calendar it acted on. The calendar is only included when detailedLabels is true.
func (m *Metrics) RecordToolInvocationWithCalendar(ctx context.Context, toolName, status string, calendarID int64, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	// Only add high-cardinality labels if explicitly enabled
	if m.detailedLabels && calendarID != 0 {
		attrs = append(attrs, attribute.Int64(attrCalendar, calendarID))
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
