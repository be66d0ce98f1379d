package common

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/slotkeeper/internal/calendar"
	"github.com/teemow/slotkeeper/internal/server"
)

func TestAgentFromArgs(t *testing.T) {
	sc := newTestServerContext(t)

	tests := []struct {
		name string
		ctx  context.Context
		args map[string]interface{}
		want string
	}{
		{name: "default agent", ctx: context.Background(), want: "default"},
		{name: "argument", ctx: context.Background(), args: map[string]interface{}{"agentId": " agent-2 "}, want: "agent-2"},
		{name: "context wins", ctx: server.WithAgent(context.Background(), "agent-3"), args: map[string]interface{}{"agentId": "agent-2"}, want: "agent-3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AgentFromArgs(tt.ctx, sc, tt.args))
		})
	}
}

func TestResolveCalendar(t *testing.T) {
	ctx := context.Background()
	sc := newTestServerContext(t)

	// First call creates the default agent's calendar, the second reuses it.
	first, err := ResolveCalendar(ctx, sc, nil)
	require.NoError(t, err)
	assert.Equal(t, "default", first.AgentID)
	assert.Equal(t, "Default", first.Name)

	again, err := ResolveCalendar(ctx, sc, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	other, err := ResolveCalendar(ctx, sc, map[string]interface{}{"agentId": "agent-2"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	byID, err := ResolveCalendar(ctx, sc, map[string]interface{}{"calendarId": float64(other.ID)})
	require.NoError(t, err)
	assert.Equal(t, other.ID, byID.ID)

	_, err = ResolveCalendar(ctx, sc, map[string]interface{}{"calendarId": float64(999)})
	assert.True(t, calendar.IsNotFound(err))

	_, err = ResolveCalendar(ctx, sc, map[string]interface{}{"calendarId": "abc"})
	assert.True(t, calendar.IsValidation(err))

	// A calendar of another agent is hidden from a bound agent.
	bound := server.WithAgent(ctx, "default")
	_, err = ResolveCalendar(bound, sc, map[string]interface{}{"calendarId": float64(other.ID)})
	assert.True(t, calendar.IsNotFound(err))
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "validation", err: calendar.Validationf("title is required"), want: "Invalid request: title is required"},
		{name: "not found", err: calendar.NotFoundf("appointment 4"), want: "Not found: appointment 4"},
		{name: "other", err: calendar.Persistence(assert.AnError), want: "Failed to schedule appointment: persistence error: " + assert.AnError.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorMessage("schedule appointment", tt.err))
		})
	}
}
