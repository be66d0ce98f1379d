package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teemow/slotkeeper/internal/config"
	"github.com/teemow/slotkeeper/internal/instrumentation"
	"github.com/teemow/slotkeeper/internal/scheduler"
	"github.com/teemow/slotkeeper/internal/store"
)

// ServerContext holds the dependencies shared by the MCP tool handlers.
type ServerContext struct {
	ctx       context.Context
	cancel    context.CancelFunc
	scheduler *scheduler.Service
	store     store.Store
	cfg       config.Config
	logger    *slog.Logger

	mu          sync.RWMutex
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	shutdown    bool
}

// NewServerContext creates a new server context. The store is only used
// for health checks; all scheduling goes through svc.
func NewServerContext(ctx context.Context, svc *scheduler.Service, st store.Store, cfg config.Config, logger *slog.Logger) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	if logger == nil {
		logger = slog.Default()
	}
	return &ServerContext{
		ctx:       shutdownCtx,
		cancel:    cancel,
		scheduler: svc,
		store:     st,
		cfg:       cfg,
		logger:    logger,
	}
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Scheduler returns the scheduling engine.
func (sc *ServerContext) Scheduler() *scheduler.Service {
	return sc.scheduler
}

// Store returns the appointment store.
func (sc *ServerContext) Store() store.Store {
	return sc.store
}

// Config returns the loaded configuration.
func (sc *ServerContext) Config() config.Config {
	return sc.cfg
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// DefaultAgent returns the agent used when a request names none.
func (sc *ServerContext) DefaultAgent() string {
	return sc.cfg.Agent.ID
}

// Metrics returns the metrics recorder, or nil when instrumentation is off.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetMetrics sets the metrics recorder used by the tool handlers.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// AuditLogger returns the audit logger, or nil when auditing is off.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// SetAuditLogger sets the audit logger used by the tool handlers.
func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = al
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context. The store is owned by the caller.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
