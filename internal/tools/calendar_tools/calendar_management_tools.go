package calendar_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/slotkeeper/internal/server"
	"github.com/teemow/slotkeeper/internal/tools/common"
)

// RegisterCalendarManagementTools registers the calendar provisioning tools.
func RegisterCalendarManagementTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	listCalendarsTool := mcp.NewTool("calendar_list_calendars",
		mcp.WithDescription("List the calendars owned by an agent"),
		mcp.WithString(common.ArgAgentID,
			mcp.Description("Agent whose calendars are listed (default: the configured agent)"),
		),
	)
	addTool(s, sc, listCalendarsTool, handleListCalendars)

	if !readOnly {
		createCalendarTool := mcp.NewTool("calendar_create_calendar",
			mcp.WithDescription("Create a new calendar for an agent"),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Calendar name"),
			),
			mcp.WithString(common.ArgAgentID,
				mcp.Description("Agent that owns the calendar (default: the configured agent)"),
			),
			mcp.WithString("timeZone",
				mcp.Description("IANA time zone used for business hours, e.g. 'Europe/Berlin' (default: the configured time zone)"),
			),
		)
		addTool(s, sc, createCalendarTool, handleCreateCalendar)
	}

	return nil
}

func handleListCalendars(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	agent := common.AgentFromArgs(ctx, sc, args)

	cals, err := sc.Scheduler().ListCalendars(ctx, agent)
	if err != nil {
		return errorResult("list calendars", err)
	}

	return common.JSONResult(map[string]any{
		"agent_id":  agent,
		"count":     len(cals),
		"calendars": cals,
	})
}

func handleCreateCalendar(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	name := common.GetStringArg(args, "name")
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	cal, err := sc.Scheduler().CreateCalendar(ctx,
		common.AgentFromArgs(ctx, sc, args), name, common.GetStringArg(args, "timeZone"))
	if err != nil {
		return errorResult("create calendar", err)
	}

	return common.JSONResult(cal)
}
