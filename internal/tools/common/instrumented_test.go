package common

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/teemow/slotkeeper/internal/config"
	"github.com/teemow/slotkeeper/internal/instrumentation"
	"github.com/teemow/slotkeeper/internal/scheduler"
	"github.com/teemow/slotkeeper/internal/server"
	"github.com/teemow/slotkeeper/internal/store"
)

func newTestServerContext(t *testing.T) *server.ServerContext {
	t.Helper()
	st := store.NewMemoryStore()
	cfg := config.Default()
	svc := scheduler.New(st, cfg.Scheduling)
	sc := server.NewServerContext(context.Background(), svc, st, cfg, nil)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestInstrumentedToolHandler_WithoutInstrumentation(t *testing.T) {
	sc := newTestServerContext(t)

	called := false
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("success"), nil
	}

	result, err := InstrumentedToolHandler("test_tool", sc, handler)(context.Background(), callRequest(nil))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, called)
	assert.False(t, result.IsError)
}

func TestInstrumentedToolHandler_PassesErrorsThrough(t *testing.T) {
	sc := newTestServerContext(t)
	metrics, err := instrumentation.NewMetrics(noop.NewMeterProvider().Meter("test"), false)
	require.NoError(t, err)
	sc.SetMetrics(metrics)

	expectedErr := errors.New("test error")
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, expectedErr
	}

	_, err = InstrumentedToolHandler("test_tool", sc, handler)(context.Background(), callRequest(nil))
	assert.Same(t, expectedErr, err)
}

func TestInstrumentedToolHandler_AuditLog(t *testing.T) {
	tests := []struct {
		name        string
		args        map[string]interface{}
		result      *mcp.CallToolResult
		includePII  bool
		wantMessage string
		want        []string
		notWant     []string
	}{
		{
			name:        "success with calendar and appointment",
			args:        map[string]interface{}{"calendarId": float64(7), "appointmentId": "12", "agentId": "agent-9"},
			result:      mcp.NewToolResultText("ok"),
			wantMessage: "tool_executed",
			want:        []string{"tool=calendar_get_appointment", "calendar_id=7", "appointment_id=12"},
			notWant:     []string{"agent-9"},
		},
		{
			name:        "error result",
			args:        map[string]interface{}{},
			result:      mcp.NewToolResultError("boom"),
			wantMessage: "tool_failed",
			want:        []string{"success=false"},
		},
		{
			name:        "agent logged with PII enabled",
			args:        map[string]interface{}{"agentId": "agent-9"},
			result:      mcp.NewToolResultText("ok"),
			includePII:  true,
			wantMessage: "tool_executed",
			want:        []string{"agent_id=agent-9"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := newTestServerContext(t)

			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			al := instrumentation.NewAuditLogger(logger)
			al.SetIncludePII(tt.includePII)
			sc.SetAuditLogger(al)

			handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return tt.result, nil
			}
			_, err := InstrumentedToolHandler("calendar_get_appointment", sc, handler)(context.Background(), callRequest(tt.args))
			require.NoError(t, err)

			out := buf.String()
			assert.Contains(t, out, tt.wantMessage)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, out, w)
			}
		})
	}
}
