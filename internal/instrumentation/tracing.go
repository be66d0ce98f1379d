package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer every slotkeeper span comes from.
const TracerName = "github.com/teemow/slotkeeper"

// Span attribute keys.
const (
	SpanAttrTool          = "mcp.tool"
	SpanAttrOperation     = "slotkeeper.operation"
	SpanAttrCalendarID    = "slotkeeper.calendar_id"
	SpanAttrAppointmentID = "slotkeeper.appointment_id"
	SpanAttrConflicts     = "slotkeeper.conflicts"
	SpanAttrRunID         = "slotkeeper.run_id"
)

// SpanAttributeBuilder collects span attributes, skipping empty values.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{}
}

func (b *SpanAttributeBuilder) WithTool(tool string) *SpanAttributeBuilder {
	return b.str(SpanAttrTool, tool)
}

func (b *SpanAttributeBuilder) WithOperation(operation string) *SpanAttributeBuilder {
	return b.str(SpanAttrOperation, operation)
}

func (b *SpanAttributeBuilder) WithCalendar(calendarID int64) *SpanAttributeBuilder {
	return b.id(SpanAttrCalendarID, calendarID)
}

func (b *SpanAttributeBuilder) WithAppointment(appointmentID int64) *SpanAttributeBuilder {
	return b.id(SpanAttrAppointmentID, appointmentID)
}

func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

func (b *SpanAttributeBuilder) str(key, v string) *SpanAttributeBuilder {
	if v != "" {
		b.attrs = append(b.attrs, attribute.String(key, v))
	}
	return b
}

func (b *SpanAttributeBuilder) id(key string, v int64) *SpanAttributeBuilder {
	if v != 0 {
		b.attrs = append(b.attrs, attribute.Int64(key, v))
	}
	return b
}

func start(ctx context.Context, name string, kind trace.SpanKind, attrs []attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

// StartSpan starts an internal span. The caller ends it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return start(ctx, name, trace.SpanKindInternal, attrs)
}

// StartToolSpan starts the server span "tool.<name>" for an MCP tool call.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{attribute.String(SpanAttrTool, toolName)}, attrs...)
	return start(ctx, "tool."+toolName, trace.SpanKindServer, attrs)
}

// StartStoreSpan starts the client span "store.<operation>".
func StartStoreSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{attribute.String(SpanAttrOperation, operation)}, attrs...)
	return start(ctx, "store."+operation, trace.SpanKindClient, attrs)
}

// SetSpanError marks span failed. A nil err leaves the status alone.
func SetSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
