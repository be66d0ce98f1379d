package server

import (
	"context"
	"net/http"
	"strings"
)

// AgentHeader names the HTTP header that selects the agent whose calendar
// a streamable-http request acts on.
const AgentHeader = "X-Agent-ID"

type agentKey struct{}

// WithAgent returns a context carrying agentID.
func WithAgent(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, agentKey{}, agentID)
}

// AgentFromContext returns the agent stored by WithAgent, if any.
func AgentFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(agentKey{}).(string)
	return id, ok && id != ""
}

// AgentContextFunc copies the agent header into the request context. It is
// installed as the streamable HTTP server's context function.
func AgentContextFunc(ctx context.Context, r *http.Request) context.Context {
	if id := strings.TrimSpace(r.Header.Get(AgentHeader)); id != "" {
		return WithAgent(ctx, id)
	}
	return ctx
}
