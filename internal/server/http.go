package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/slotkeeper/internal/instrumentation"
)

// MCPPath is the endpoint of the streamable HTTP transport.
const MCPPath = "/mcp"

// HTTPServer serves the MCP streamable HTTP transport next to the health
// endpoints.
type HTTPServer struct {
	mcpServer        *mcpserver.MCPServer
	health           *HealthChecker
	metrics          *instrumentation.Metrics
	disableStreaming bool
	logger           *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	boundAddr  string
}

// HTTPOption configures an HTTPServer.
type HTTPOption func(*HTTPServer)

// WithHealthChecker serves /healthz, /readyz and /healthz/detailed.
func WithHealthChecker(h *HealthChecker) HTTPOption {
	return func(s *HTTPServer) { s.health = h }
}

// WithHTTPMetrics records http_requests_total for every request.
func WithHTTPMetrics(m *instrumentation.Metrics) HTTPOption {
	return func(s *HTTPServer) { s.metrics = m }
}

// WithoutStreaming answers MCP requests with plain JSON instead of SSE.
func WithoutStreaming() HTTPOption {
	return func(s *HTTPServer) { s.disableStreaming = true }
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(s *HTTPServer) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewHTTPServer creates the streamable HTTP server for mcpServer.
func NewHTTPServer(mcpServer *mcpserver.MCPServer, opts ...HTTPOption) *HTTPServer {
	s := &HTTPServer{
		mcpServer: mcpServer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed and instrumented handler.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mcpOpts := []mcpserver.StreamableHTTPOption{
		mcpserver.WithEndpointPath(MCPPath),
		mcpserver.WithHTTPContextFunc(AgentContextFunc),
	}
	if s.disableStreaming {
		mcpOpts = append(mcpOpts, mcpserver.WithDisableStreaming(true))
	}
	mux.Handle(MCPPath, mcpserver.NewStreamableHTTPServer(s.mcpServer, mcpOpts...))

	if s.health != nil {
		s.health.RegisterHealthEndpoints(mux)
	}
	return s.instrument(mux)
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *HTTPServer) instrument(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

// Start listens on addr and serves until Shutdown. ready, when not nil, is
// closed once the listener is bound.
func (s *HTTPServer) Start(addr string, ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.boundAddr = ln.Addr().String()
	s.mu.Unlock()

	s.logger.Info("starting MCP HTTP server", "addr", s.boundAddr, "endpoint", MCPPath)
	if ready != nil {
		close(ready)
	}
	return srv.Serve(ln)
}

// BoundAddr returns the listening address once started.
func (s *HTTPServer) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

// Shutdown marks the server not ready and drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.health != nil {
		s.health.SetReady(false)
	}

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
