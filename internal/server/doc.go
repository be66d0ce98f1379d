// Package server provides the shared MCP server context and the HTTP
// plumbing around the MCP server.
//
// # Key Components
//
// ServerContext carries the scheduler, the store, the loaded configuration
// and the optional metrics and audit logger to the tool handlers.
//
// HTTPServer serves the streamable HTTP transport on /mcp together with the
// health endpoints. The X-Agent-ID request header selects the agent whose
// calendar a tool call acts on when the call does not name one.
//
// HealthChecker implements the Kubernetes health endpoints:
//   - /healthz: liveness
//   - /readyz: readiness, including a store ping
//   - /healthz/detailed: uptime and store status
//
// MetricsServer exposes /metrics for Prometheus on a dedicated port.
package server
