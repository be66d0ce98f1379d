package common

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/slotkeeper/internal/instrumentation"
	"github.com/teemow/slotkeeper/internal/server"
)

// ToolHandler is the signature of an MCP tool handler.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InstrumentedToolHandler wraps a tool handler with a tool span, metrics
// and audit logging.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		calendarID := CalendarIDFromArgs(args)

		ctx, span := instrumentation.StartToolSpan(ctx, toolName,
			instrumentation.NewSpanAttributeBuilder().WithCalendar(calendarID).Build()...)
		defer span.End()

		metrics := sc.Metrics()
		auditLogger := sc.AuditLogger()

		if metrics == nil && auditLogger == nil {
			result, err := handler(ctx, request)
			finishSpan(span, result, err)
			return result, err
		}

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx).
			WithAgent(AgentFromArgs(ctx, sc, args)).
			WithCalendar(calendarID)
		if id, ok, err := GetInt64Arg(args, ArgAppointmentID); err == nil && ok {
			invocation.WithAppointment(id)
		}

		result, err := handler(ctx, request)
		duration := time.Since(start)
		finishSpan(span, result, err)

		status := instrumentation.StatusSuccess
		if err != nil || (result != nil && result.IsError) {
			status = instrumentation.StatusError
			if err != nil {
				invocation.CompleteWithError(err)
			} else {
				invocation.Complete(false, nil)
			}
		} else {
			invocation.CompleteSuccess()
		}

		metrics.RecordToolInvocationWithCalendar(ctx, toolName, status, calendarID, duration)
		auditLogger.LogToolInvocation(invocation)

		return result, err
	}
}

func finishSpan(span trace.Span, result *mcp.CallToolResult, err error) {
	switch {
	case err != nil:
		instrumentation.SetSpanError(span, err)
	case result != nil && result.IsError:
		instrumentation.SetSpanError(span, errToolResult)
	default:
		instrumentation.SetSpanSuccess(span)
	}
}

var errToolResult = errors.New("tool returned an error result")
