package calendar_tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/slotkeeper/internal/calendar"
	"github.com/teemow/slotkeeper/internal/scheduler"
	"github.com/teemow/slotkeeper/internal/server"
	"github.com/teemow/slotkeeper/internal/tools/common"
)

// Defaults of the availability tools.
const (
	defaultCheckPriority   = calendar.LowestPriority
	defaultDurationMinutes = 60
	defaultMaxSlots        = 5
)

// RegisterSchedulingTools registers availability, conflict resolution and
// utilization tools.
func RegisterSchedulingTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	checkAvailabilityTool := mcp.NewTool("calendar_check_availability",
		calendarOptions(
			mcp.WithDescription("Check whether a time slot is free. Only CONFIRMED appointments at least as important as the given priority block it."),
			mcp.WithString("start",
				mcp.Required(),
				mcp.Description("Slot start (ISO-8601, e.g. '2025-03-10T09:00:00Z'; no offset means UTC)"),
			),
			mcp.WithString("end",
				mcp.Required(),
				mcp.Description("Slot end (ISO-8601)"),
			),
			mcp.WithNumber("priority",
				mcp.Description("Priority of the planned appointment, 1-5 (default: 5, every confirmed appointment blocks)"),
			),
		)...,
	)
	addTool(s, sc, checkAvailabilityTool, handleCheckAvailability)

	findSlotsTool := mcp.NewTool("calendar_find_available_slots",
		calendarOptions(
			mcp.WithDescription("Find free slots of a given length inside business hours. Slots start on the half-hour grid of the calendar's time zone."),
			mcp.WithString("start",
				mcp.Required(),
				mcp.Description("Start of the search window (ISO-8601)"),
			),
			mcp.WithString("end",
				mcp.Required(),
				mcp.Description("End of the search window (ISO-8601)"),
			),
			mcp.WithNumber("durationMinutes",
				mcp.Description("Slot length in minutes (default: 60)"),
			),
			mcp.WithNumber("maxSlots",
				mcp.Description("Maximum number of slots to return (default: 5)"),
			),
			mcp.WithNumber("priority",
				mcp.Description("Priority of the planned appointment, 1-5 (default: 5)"),
			),
		)...,
	)
	addTool(s, sc, findSlotsTool, handleFindAvailableSlots)

	underutilizedTool := mcp.NewTool("calendar_is_day_underutilized",
		calendarOptions(
			mcp.WithDescription("Report the busy hours of a day and whether they stay below the configured minimum"),
			mcp.WithString("date",
				mcp.Required(),
				mcp.Description("Day to check (YYYY-MM-DD, in the calendar's time zone)"),
			),
			mcp.WithNumber("priority",
				mcp.Description("Only count appointments with a priority number up to this value (default: 5)"),
			),
		)...,
	)
	addTool(s, sc, underutilizedTool, handleIsDayUnderutilized)

	analyzeRangeTool := mcp.NewTool("calendar_analyze_range",
		calendarOptions(
			mcp.WithDescription("Summarize business hour utilization per day and name the least busy day"),
			mcp.WithString("startDate",
				mcp.Required(),
				mcp.Description("First day (YYYY-MM-DD, in the calendar's time zone)"),
			),
			mcp.WithString("endDate",
				mcp.Required(),
				mcp.Description("Last day, inclusive (YYYY-MM-DD)"),
			),
			mcp.WithBoolean("weekdaysOnly",
				mcp.Description("Skip Saturdays and Sundays (default: true)"),
			),
		)...,
	)
	addTool(s, sc, analyzeRangeTool, handleAnalyzeRange)

	if !readOnly {
		resolveTool := mcp.NewTool("calendar_resolve_conflicts",
			calendarOptions(
				mcp.WithDescription(`Resolve the appointments overlapping a target appointment by cancelling or rescheduling them. Strategies are tried per conflict in this order: by_type, by_priority, fallback. Example strategy: {"by_type": {"personal": {"action": "cancel"}, "internal": {"action": "reschedule", "window_days": 2}}, "by_priority": true, "fallback": {"action": "reschedule", "window_days": 7, "avoid_lunch_hour": true}}`),
				mcp.WithNumber(common.ArgAppointmentID,
					mcp.Required(),
					mcp.Description("The ID of the target appointment that must keep its time"),
				),
				mcp.WithString("strategy",
					mcp.Description("Strategy document as JSON (default: the configured strategy)"),
				),
			)...,
		)
		addTool(s, sc, resolveTool, handleResolveConflicts)
	}

	return nil
}

func handleCheckAvailability(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	start, err := common.RequireTimeArg(args, "start")
	if err != nil {
		return errorResult("check availability", err)
	}
	end, err := common.RequireTimeArg(args, "end")
	if err != nil {
		return errorResult("check availability", err)
	}
	priority, err := common.GetIntArg(args, "priority", defaultCheckPriority)
	if err != nil {
		return errorResult("check availability", err)
	}
	cal, err := common.ResolveCalendar(ctx, sc, args)
	if err != nil {
		return errorResult("resolve calendar", err)
	}

	available, err := sc.Scheduler().CheckAvailability(ctx, cal.ID, start, end, priority)
	if err != nil {
		return errorResult("check availability", err)
	}
	return common.JSONResult(map[string]any{
		"calendar_id": cal.ID,
		"start":       start,
		"end":         end,
		"priority":    priority,
		"available":   available,
	})
}

func handleFindAvailableSlots(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	start, err := common.RequireTimeArg(args, "start")
	if err != nil {
		return errorResult("find available slots", err)
	}
	end, err := common.RequireTimeArg(args, "end")
	if err != nil {
		return errorResult("find available slots", err)
	}
	minutes, err := common.GetIntArg(args, "durationMinutes", defaultDurationMinutes)
	if err != nil {
		return errorResult("find available slots", err)
	}
	maxSlots, err := common.GetIntArg(args, "maxSlots", defaultMaxSlots)
	if err != nil {
		return errorResult("find available slots", err)
	}
	priority, err := common.GetIntArg(args, "priority", defaultCheckPriority)
	if err != nil {
		return errorResult("find available slots", err)
	}
	cal, err := common.ResolveCalendar(ctx, sc, args)
	if err != nil {
		return errorResult("resolve calendar", err)
	}

	slots, err := sc.Scheduler().FindAvailableSlots(ctx, cal.ID, start, end,
		time.Duration(minutes)*time.Minute, maxSlots, priority)
	if err != nil {
		return errorResult("find available slots", err)
	}
	if slots == nil {
		slots = []calendar.TimeRange{}
	}
	return common.JSONResult(map[string]any{
		"calendar_id":      cal.ID,
		"duration_minutes": minutes,
		"count":            len(slots),
		"slots":            slots,
	})
}

func handleIsDayUnderutilized(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	priority, err := common.GetIntArg(args, "priority", defaultCheckPriority)
	if err != nil {
		return errorResult("check utilization", err)
	}
	cal, err := common.ResolveCalendar(ctx, sc, args)
	if err != nil {
		return errorResult("resolve calendar", err)
	}
	date, err := common.RequireDateArg(args, "date", cal.Location(sc.Config().Scheduling.Location()))
	if err != nil {
		return errorResult("check utilization", err)
	}

	underutilized, hours, err := sc.Scheduler().IsDayUnderutilized(ctx, cal.ID, date, priority)
	if err != nil {
		return errorResult("check utilization", err)
	}
	return common.JSONResult(map[string]any{
		"calendar_id":    cal.ID,
		"date":           date.Format(time.DateOnly),
		"busy_hours":     hours,
		"min_busy_hours": sc.Config().Scheduling.MinBusyHours,
		"underutilized":  underutilized,
	})
}

func handleAnalyzeRange(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	cal, err := common.ResolveCalendar(ctx, sc, args)
	if err != nil {
		return errorResult("resolve calendar", err)
	}
	loc := cal.Location(sc.Config().Scheduling.Location())
	startDate, err := common.RequireDateArg(args, "startDate", loc)
	if err != nil {
		return errorResult("analyze range", err)
	}
	endDate, err := common.RequireDateArg(args, "endDate", loc)
	if err != nil {
		return errorResult("analyze range", err)
	}

	analysis, err := sc.Scheduler().AnalyzeRange(ctx, cal.ID, startDate, endDate,
		common.GetBoolArg(args, "weekdaysOnly", true))
	if err != nil {
		return errorResult("analyze range", err)
	}
	return common.JSONResult(analysis)
}

// strategyFromArgs reads the strategy argument, given as JSON text or as an
// object. A missing strategy uses the service default.
func strategyFromArgs(args map[string]interface{}, fallback scheduler.Strategies) (scheduler.Strategies, error) {
	switch v := args["strategy"].(type) {
	case nil:
		return fallback, nil
	case string:
		if v == "" {
			return fallback, nil
		}
		return scheduler.ParseStrategies([]byte(v))
	case map[string]interface{}:
		return scheduler.ParseStrategyMap(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return scheduler.Strategies{}, calendar.Validationf("strategy must be a JSON object")
		}
		return scheduler.ParseStrategies(data)
	}
}

func handleResolveConflicts(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	svc := sc.Scheduler()

	id, err := common.RequireInt64Arg(args, common.ArgAppointmentID)
	if err != nil {
		return errorResult("resolve conflicts", err)
	}
	strategies, err := strategyFromArgs(args, svc.DefaultStrategy())
	if err != nil {
		return errorResult("resolve conflicts", err)
	}
	cal, err := common.ResolveCalendar(ctx, sc, args)
	if err != nil {
		return errorResult("resolve calendar", err)
	}
	// The target must belong to the resolved calendar.
	if _, err := svc.GetAppointment(ctx, cal.ID, id); err != nil {
		return errorResult("resolve conflicts", err)
	}

	res, err := svc.ResolveConflicts(ctx, id, strategies)
	if err != nil {
		return errorResult("resolve conflicts", err)
	}
	return common.JSONResult(res)
}
