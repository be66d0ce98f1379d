package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	healthOK           = "ok"
	healthNotReady     = "not ready"
	healthShuttingDown = "shutting down"
	healthUnreachable  = "unreachable"
)

const storePingTimeout = 2 * time.Second

// Pinger is satisfied by store.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker answers liveness and readiness checks. Readiness requires
// the ready flag, a server context that is not shutting down and a store
// that answers a ping.
type HealthChecker struct {
	ready   atomic.Bool
	sc      *ServerContext
	store   Pinger
	started time.Time
}

// NewHealthChecker accepts a nil sc, in which case only the ready flag counts.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{sc: sc, started: time.Now()}
	if sc != nil && sc.Store() != nil {
		h.store = sc.Store()
	}
	h.ready.Store(true)
	return h
}

func (h *HealthChecker) SetReady(ready bool) { h.ready.Store(ready) }

func (h *HealthChecker) IsReady() bool { return h.ready.Load() }

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	Store  string `json:"store"`
}

type healthState struct {
	ready, shutdown, store string
}

func (h *HealthChecker) check(ctx context.Context) healthState {
	p := healthState{ready: healthOK, shutdown: healthOK, store: healthOK}
	if !h.ready.Load() {
		p.ready = healthNotReady
	}
	if h.sc != nil && h.sc.IsShutdown() {
		p.shutdown = healthShuttingDown
	}
	if h.store != nil {
		ctx, cancel := context.WithTimeout(ctx, storePingTimeout)
		defer cancel()
		if h.store.Ping(ctx) != nil {
			p.store = healthUnreachable
		}
	}
	return p
}

// LivenessHandler reports 200 while the process serves requests.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthOK})
	})
}

// ReadinessHandler reports 503 unless every check passes.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := h.check(r.Context())
		resp := HealthResponse{
			Status: healthOK,
			Checks: map[string]string{"ready": p.ready, "shutdown": p.shutdown, "store": p.store},
		}
		code := http.StatusOK
		for _, v := range resp.Checks {
			if v != healthOK {
				resp.Status, code = healthNotReady, http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, code, resp)
	})
}

// DetailedHealthHandler adds uptime and store state. An unreachable store
// is reported but does not fail the response.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := h.check(r.Context())
		resp := DetailedHealthResponse{
			Status: healthOK,
			Uptime: time.Since(h.started).Truncate(time.Second).String(),
			Store:  p.store,
		}
		code := http.StatusOK
		switch {
		case p.ready != healthOK:
			resp.Status, code = p.ready, http.StatusServiceUnavailable
		case p.shutdown != healthOK:
			resp.Status, code = p.shutdown, http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})
}

// RegisterHealthEndpoints mounts /healthz, /readyz and /healthz/detailed.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
