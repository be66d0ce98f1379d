// Package instrumentation provides OpenTelemetry metrics, tracing and audit
// logging for the slotkeeper MCP server.
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// Store Metrics:
//   - slotkeeper_store_operations_total: Counter of store operations by operation and status
//   - slotkeeper_store_operation_duration_seconds: Histogram of store operation durations
//
// Scheduling Metrics:
//   - slotkeeper_appointments_scheduled_total: Scheduling attempts by status and result (admitted, refused)
//   - slotkeeper_conflicts_resolved_total: Resolved conflicts by layer (type, priority, fallback) and action
//   - slotkeeper_conflicts_unresolved_total: Conflicts no layer could resolve
//   - slotkeeper_slot_search_duration_seconds: Free slot search durations
//
// Digest Metrics:
//   - slotkeeper_digest_runs_total: Utilization digest runs by status
//   - slotkeeper_underutilized_days: Underutilized days found by the last run
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//
// # Tracing
//
// Spans are created for MCP tool invocations (tool.<name>), scheduler
// operations (scheduler.<operation>) and store calls (store.<operation>).
//
// # Configuration
//
// NewConfig derives the provider configuration from the observability
// section of config.Config. That section is read from YAML and from the
// usual OpenTelemetry variables (OTEL_SERVICE_NAME,
// OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_TRACES_SAMPLER_ARG) plus
// INSTRUMENTATION_ENABLED, METRICS_EXPORTER, TRACING_EXPORTER and
// METRICS_DETAILED_LABELS.
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.NewConfig(cfg.Observability, version))
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordAppointmentScheduled(ctx, "CONFIRMED", instrumentation.ResultAdmitted)
package instrumentation
