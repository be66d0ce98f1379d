package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/teemow/slotkeeper/internal/calendar"
	"github.com/teemow/slotkeeper/internal/server"
)

// Argument names shared by the calendar tools.
const (
	ArgCalendarID    = "calendarId"
	ArgAgentID       = "agentId"
	ArgAppointmentID = "appointmentId"
)

// AgentFromArgs returns the agent a tool call acts for.
//
// Priority order:
//  1. Agent set on the request context (X-Agent-ID header in HTTP mode)
//  2. Explicit "agentId" argument
//  3. The configured default agent
func AgentFromArgs(ctx context.Context, sc *server.ServerContext, args map[string]interface{}) string {
	if agent, ok := server.AgentFromContext(ctx); ok {
		return agent
	}
	if agent := GetStringArg(args, ArgAgentID); agent != "" {
		return agent
	}
	return sc.DefaultAgent()
}

// ResolveCalendar returns the calendar a tool call acts on. An explicit
// calendarId wins; otherwise the agent's first calendar is used and created
// on demand. A calendar owned by another agent than the one bound to the
// request context is reported as not found.
func ResolveCalendar(ctx context.Context, sc *server.ServerContext, args map[string]interface{}) (calendar.Calendar, error) {
	svc := sc.Scheduler()

	id, ok, err := GetInt64Arg(args, ArgCalendarID)
	if err != nil {
		return calendar.Calendar{}, err
	}
	if ok {
		cal, err := svc.GetCalendar(ctx, id)
		if err != nil {
			return calendar.Calendar{}, err
		}
		if agent, bound := server.AgentFromContext(ctx); bound && cal.AgentID != agent {
			return calendar.Calendar{}, calendar.NotFoundf("calendar %d", id)
		}
		return cal, nil
	}

	agent := AgentFromArgs(ctx, sc, args)
	return svc.EnsureCalendar(ctx, agent, sc.Config().Agent.CalendarName, "")
}

// CalendarIDFromArgs returns the calendarId argument when present. It is
// used for instrumentation only and ignores malformed values.
func CalendarIDFromArgs(args map[string]interface{}) int64 {
	id, _, err := GetInt64Arg(args, ArgCalendarID)
	if err != nil {
		return 0
	}
	return id
}

// ErrorMessage renders a domain error for a tool result.
func ErrorMessage(action string, err error) string {
	switch {
	case calendar.IsValidation(err):
		return fmt.Sprintf("Invalid request: %s", strings.TrimPrefix(err.Error(), calendar.ErrValidation.Error()+": "))
	case calendar.IsNotFound(err):
		return fmt.Sprintf("Not found: %s", strings.TrimPrefix(err.Error(), calendar.ErrNotFound.Error()+": "))
	default:
		return fmt.Sprintf("Failed to %s: %v", action, err)
	}
}
