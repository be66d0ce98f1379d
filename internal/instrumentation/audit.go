package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// ToolInvocation is the audit record of one MCP tool call. AgentID and
// SpanID only reach the log when the AuditLogger includes PII.
type ToolInvocation struct {
	Tool          string
	AgentID       string
	CalendarID    int64
	AppointmentID int64
	Operation     string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewToolInvocation starts the clock for a call to tool.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{Tool: tool, StartTime: time.Now()}
}

func (ti *ToolInvocation) WithAgent(agentID string) *ToolInvocation {
	ti.AgentID = agentID
	return ti
}

func (ti *ToolInvocation) WithCalendar(calendarID int64) *ToolInvocation {
	ti.CalendarID = calendarID
	return ti
}

func (ti *ToolInvocation) WithAppointment(appointmentID int64) *ToolInvocation {
	ti.AppointmentID = appointmentID
	return ti
}

func (ti *ToolInvocation) WithOperation(operation string) *ToolInvocation {
	ti.Operation = operation
	return ti
}

// WithSpanContext copies trace and span IDs from the span in ctx, if any.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		ti.TraceID = sc.TraceID().String()
		ti.SpanID = sc.SpanID().String()
	}
	return ti
}

// Complete stops the clock and records the outcome.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

func (ti *ToolInvocation) CompleteWithError(err error) *ToolInvocation {
	return ti.Complete(false, err)
}

func (ti *ToolInvocation) CompleteSuccess() *ToolInvocation { return ti.Complete(true, nil) }

// Status maps Success onto StatusSuccess or StatusError.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns the record without agent or span identifiers.
func (ti *ToolInvocation) LogAttrs() []slog.Attr { return ti.attrs(false) }

// LogAuditAttrs returns the record including agent and span identifiers.
func (ti *ToolInvocation) LogAuditAttrs() []slog.Attr { return ti.attrs(true) }

func (ti *ToolInvocation) attrs(identifying bool) []slog.Attr {
	out := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	addString := func(key, v string) {
		if v != "" {
			out = append(out, slog.String(key, v))
		}
	}
	addID := func(key string, v int64) {
		if v != 0 {
			out = append(out, slog.Int64(key, v))
		}
	}

	if identifying {
		addString("agent_id", ti.AgentID)
	}
	addID("calendar_id", ti.CalendarID)
	addID("appointment_id", ti.AppointmentID)
	addString("operation", ti.Operation)
	addString("trace_id", ti.TraceID)
	if identifying {
		addString("span_id", ti.SpanID)
	}
	addString("error", ti.Error)
	return out
}

// AuditLogger writes one structured line per tool call. A nil
// *AuditLogger is valid and logs nothing.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger returns an enabled logger that omits agent identifiers.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

func NewAuditLoggerWithConfig(logger *slog.Logger, cfg AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger, includePII: cfg.IncludePII, enabled: cfg.Enabled}
}

func (al *AuditLogger) SetIncludePII(include bool) { al.includePII = include }

func (al *AuditLogger) SetEnabled(enabled bool) { al.enabled = enabled }

// LogToolInvocation logs successful calls at info and failed calls at warn.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}

	level, msg := slog.LevelInfo, "tool_executed"
	if !ti.Success {
		level, msg = slog.LevelWarn, "tool_failed"
	}
	al.logger.LogAttrs(context.Background(), level, msg, ti.attrs(al.includePII)...)
}
