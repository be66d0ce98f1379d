package calendar_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/slotkeeper/internal/server"
	"github.com/teemow/slotkeeper/internal/tools/common"
)

// RegisterCalendarTools registers all calendar tools with the MCP server.
// Tools that modify appointments are skipped when readOnly is set.
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := RegisterCalendarManagementTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register calendar management tools: %w", err)
	}

	if err := RegisterAppointmentTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register appointment tools: %w", err)
	}

	if err := RegisterSchedulingTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register scheduling tools: %w", err)
	}

	return nil
}

// calendarOptions adds the arguments that select the calendar of a call.
func calendarOptions(opts ...mcp.ToolOption) []mcp.ToolOption {
	return append([]mcp.ToolOption{
		mcp.WithNumber(common.ArgCalendarID,
			mcp.Description("Calendar ID. Defaults to the agent's calendar, which is created on first use."),
		),
		mcp.WithString(common.ArgAgentID,
			mcp.Description("Agent whose default calendar is used when calendarId is omitted (default: the configured agent)"),
		),
	}, opts...)
}

// addTool registers an instrumented handler under the tool's name.
func addTool(s *mcpserver.MCPServer, sc *server.ServerContext, tool mcp.Tool,
	handler func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error)) {
	s.AddTool(tool, common.InstrumentedToolHandler(tool.Name, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handler(ctx, request, sc)
		}))
}

// errorResult turns a domain error into a tool error result.
func errorResult(action string, err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(common.ErrorMessage(action, err)), nil
}
