package calendar_tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/slotkeeper/internal/calendar"
	"github.com/teemow/slotkeeper/internal/scheduler"
	"github.com/teemow/slotkeeper/internal/server"
	"github.com/teemow/slotkeeper/internal/tools/batch"
	"github.com/teemow/slotkeeper/internal/tools/common"
)

// maxBatchUpdates limits calendar_batch_update_appointments.
const maxBatchUpdates = 50

// appointmentView is an appointment together with its derived type.
type appointmentView struct {
	calendar.Appointment
	Type calendar.TypeTag `json:"type"`
}

func viewOf(a calendar.Appointment) appointmentView {
	return appointmentView{Appointment: a, Type: a.Type()}
}

func viewsOf(appts []calendar.Appointment) []appointmentView {
	out := make([]appointmentView, len(appts))
	for i, a := range appts {
		out[i] = viewOf(a)
	}
	return out
}

// RegisterAppointmentTools registers the appointment tools.
func RegisterAppointmentTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	getAppointmentTool := mcp.NewTool("calendar_get_appointment",
		calendarOptions(
			mcp.WithDescription("Get an appointment of the calendar, including its derived type"),
			mcp.WithNumber(common.ArgAppointmentID,
				mcp.Required(),
				mcp.Description("The ID of the appointment"),
			),
		)...,
	)
	addTool(s, sc, getAppointmentTool, handleGetAppointment)

	getInRangeTool := mcp.NewTool("calendar_get_appointments_in_range",
		calendarOptions(
			mcp.WithDescription("List the CONFIRMED appointments overlapping a time range"),
			mcp.WithString("start",
				mcp.Required(),
				mcp.Description("Start of the range (ISO-8601, e.g. '2025-03-10T09:00:00Z'; no offset means UTC)"),
			),
			mcp.WithString("end",
				mcp.Required(),
				mcp.Description("End of the range (ISO-8601)"),
			),
		)...,
	)
	addTool(s, sc, getInRangeTool, handleGetAppointmentsInRange)

	listAppointmentsTool := mcp.NewTool("calendar_list_appointments",
		calendarOptions(
			mcp.WithDescription("List appointments with optional filters. Cancelled appointments are omitted unless requested."),
			mcp.WithString("start",
				mcp.Description("Only appointments ending after this time (ISO-8601)"),
			),
			mcp.WithString("end",
				mcp.Description("Only appointments starting before this time (ISO-8601)"),
			),
			mcp.WithString("titleContains",
				mcp.Description("Case-insensitive title substring"),
			),
			mcp.WithNumber("priority",
				mcp.Description("Only appointments with exactly this priority (1-5)"),
			),
			mcp.WithString("statuses",
				mcp.Description("Comma-separated statuses to include: TENTATIVE, CONFIRMED, CANCELLED (default: TENTATIVE,CONFIRMED)"),
			),
		)...,
	)
	addTool(s, sc, listAppointmentsTool, handleListAppointments)

	classifyTool := mcp.NewTool("calendar_classify_appointment",
		calendarOptions(
			mcp.WithDescription("Classify an appointment as client_meeting, internal, personal, administrative or other. Pass appointmentId, or a title and optional description."),
			mcp.WithNumber(common.ArgAppointmentID,
				mcp.Description("The ID of a stored appointment to classify"),
			),
			mcp.WithString("title",
				mcp.Description("Title to classify when no appointmentId is given"),
			),
			mcp.WithString("description",
				mcp.Description("Description to classify together with the title"),
			),
		)...,
	)
	addTool(s, sc, classifyTool, handleClassifyAppointment)

	if readOnly {
		return nil
	}

	scheduleTool := mcp.NewTool("calendar_schedule_appointment",
		calendarOptions(
			mcp.WithDescription("Schedule a new appointment. The request is refused when it overlaps a more important (lower priority number) appointment; other overlaps are reported as conflicts and can be fixed with calendar_resolve_conflicts."),
			mcp.WithString("title",
				mcp.Required(),
				mcp.Description("Appointment title (at most 255 characters)"),
			),
			mcp.WithString("start",
				mcp.Required(),
				mcp.Description("Start time (ISO-8601, e.g. '2025-03-10T09:00:00Z'; no offset means UTC)"),
			),
			mcp.WithString("end",
				mcp.Required(),
				mcp.Description("End time (ISO-8601)"),
			),
			mcp.WithNumber("priority",
				mcp.Description("Priority from 1 (most important) to 5 (default: 3)"),
			),
			mcp.WithString("status",
				mcp.Description("TENTATIVE or CONFIRMED (default: CONFIRMED)"),
			),
			mcp.WithString("description",
				mcp.Description("Appointment description"),
			),
			mcp.WithString("location",
				mcp.Description("Appointment location"),
			),
		)...,
	)
	addTool(s, sc, scheduleTool, handleScheduleAppointment)

	updateTool := mcp.NewTool("calendar_update_appointment",
		calendarOptions(
			mcp.WithDescription("Update fields of an appointment. Omitted fields are left unchanged. Overlaps caused by new times are reported but do not block the update."),
			mcp.WithNumber(common.ArgAppointmentID,
				mcp.Required(),
				mcp.Description("The ID of the appointment"),
			),
			mcp.WithString("title", mcp.Description("New title")),
			mcp.WithString("start", mcp.Description("New start time (ISO-8601)")),
			mcp.WithString("end", mcp.Description("New end time (ISO-8601)")),
			mcp.WithNumber("priority", mcp.Description("New priority (1-5)")),
			mcp.WithString("status", mcp.Description("New status: TENTATIVE, CONFIRMED or CANCELLED")),
			mcp.WithString("description", mcp.Description("New description")),
			mcp.WithString("location", mcp.Description("New location")),
		)...,
	)
	addTool(s, sc, updateTool, handleUpdateAppointment)

	batchUpdateTool := mcp.NewTool("calendar_batch_update_appointments",
		calendarOptions(
			mcp.WithDescription(fmt.Sprintf("Update up to %d appointments of the calendar. Each item takes the fields of calendar_update_appointment; failures are reported per item.", maxBatchUpdates)),
			mcp.WithString("updates",
				mcp.Required(),
				mcp.Description(`JSON array of updates, e.g. [{"appointmentId": 12, "start": "2025-03-10T14:00:00Z", "end": "2025-03-10T15:00:00Z"}]`),
			),
		)...,
	)
	addTool(s, sc, batchUpdateTool, handleBatchUpdateAppointments)

	cancelTool := mcp.NewTool("calendar_cancel_appointment",
		calendarOptions(
			mcp.WithDescription("Cancel an appointment. Cancelled appointments stay on the calendar but no longer block anything."),
			mcp.WithNumber(common.ArgAppointmentID,
				mcp.Required(),
				mcp.Description("The ID of the appointment"),
			),
		)...,
	)
	addTool(s, sc, cancelTool, handleCancelAppointment)

	return nil
}

func handleGetAppointment(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	id, err := common.RequireInt64Arg(args, common.ArgAppointmentID)
	if err != nil {
		return errorResult("get appointment", err)
	}
	cal, err := common.ResolveCalendar(ctx, sc, args)
	if err != nil {
		return errorResult("resolve calendar", err)
	}

	appt, err := sc.Scheduler().GetAppointment(ctx, cal.ID, id)
	if err != nil {
		return errorResult("get appointment", err)
	}
	return common.JSONResult(viewOf(appt))
}

func handleGetAppointmentsInRange(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	start, err := common.RequireTimeArg(args, "start")
	if err != nil {
		return errorResult("get appointments", err)
	}
	end, err := common.RequireTimeArg(args, "end")
	if err != nil {
		return errorResult("get appointments", err)
	}
	cal, err := common.ResolveCalendar(ctx, sc, args)
	if err != nil {
		return errorResult("resolve calendar", err)
	}

	appts, err := sc.Scheduler().GetAppointmentsInRange(ctx, cal.ID, start, end)
	if err != nil {
		return errorResult("get appointments", err)
	}
	return common.JSONResult(map[string]any{
		"calendar_id":  cal.ID,
		"count":        len(appts),
		"appointments": viewsOf(appts),
	})
}

func handleListAppointments(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	cal, err := common.ResolveCalendar(ctx, sc, args)
	if err != nil {
		return errorResult("resolve calendar", err)
	}
	filter := scheduler.ListFilter{
		CalendarID:    cal.ID,
		TitleContains: common.GetStringArg(args, "titleContains"),
	}

	if filter.Start, _, err = common.GetTimeArg(args, "start"); err != nil {
		return errorResult("list appointments", err)
	}
	if filter.End, _, err = common.GetTimeArg(args, "end"); err != nil {
		return errorResult("list appointments", err)
	}
	if filter.Priority, err = common.GetIntArg(args, "priority", 0); err != nil {
		return errorResult("list appointments", err)
	}
	if raw := common.GetStringArg(args, "statuses"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			st, err := calendar.ParseStatus(part)
			if err != nil {
				return errorResult("list appointments", err)
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}

	appts, err := sc.Scheduler().ListAppointments(ctx, filter)
	if err != nil {
		return errorResult("list appointments", err)
	}
	return common.JSONResult(map[string]any{
		"calendar_id":  cal.ID,
		"count":        len(appts),
		"appointments": viewsOf(appts),
	})
}

func handleClassifyAppointment(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	id, hasID, err := common.GetInt64Arg(args, common.ArgAppointmentID)
	if err != nil {
		return errorResult("classify appointment", err)
	}

	title := common.GetStringArg(args, "title")
	description := common.GetStringArg(args, "description")
	if hasID {
		cal, err := common.ResolveCalendar(ctx, sc, args)
		if err != nil {
			return errorResult("resolve calendar", err)
		}
		appt, err := sc.Scheduler().GetAppointment(ctx, cal.ID, id)
		if err != nil {
			return errorResult("classify appointment", err)
		}
		title, description = appt.Title, appt.Description
	} else if title == "" {
		return mcp.NewToolResultError("either appointmentId or title is required"), nil
	}

	result := map[string]any{
		"title":  title,
		"type":   calendar.Classify(title, description),
		"scores": calendar.Scores(title, description),
	}
	if hasID {
		result["appointment_id"] = id
	}
	return common.JSONResult(result)
}

// scheduleResponse is the JSON form of scheduler.ScheduleResult.
type scheduleResponse struct {
	Success     bool              `json:"success"`
	Appointment *appointmentView  `json:"appointment,omitempty"`
	Conflicts   []appointmentView `json:"conflicts"`
	Reason      string            `json:"reason,omitempty"`
}

func handleScheduleAppointment(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	req := scheduler.ScheduleRequest{
		Title:       common.GetStringArg(args, "title"),
		Description: common.GetStringArg(args, "description"),
		Location:    common.GetStringArg(args, "location"),
		Status:      calendar.StatusConfirmed,
	}
	if req.Title == "" {
		return mcp.NewToolResultError("title is required"), nil
	}

	var err error
	if req.Start, err = common.RequireTimeArg(args, "start"); err != nil {
		return errorResult("schedule appointment", err)
	}
	if req.End, err = common.RequireTimeArg(args, "end"); err != nil {
		return errorResult("schedule appointment", err)
	}
	if req.Priority, err = common.GetIntArg(args, "priority", sc.Config().Scheduling.DefaultPriority); err != nil {
		return errorResult("schedule appointment", err)
	}
	if raw := common.GetStringArg(args, "status"); raw != "" {
		if req.Status, err = calendar.ParseStatus(raw); err != nil {
			return errorResult("schedule appointment", err)
		}
	}

	cal, err := common.ResolveCalendar(ctx, sc, args)
	if err != nil {
		return errorResult("resolve calendar", err)
	}
	req.CalendarID = cal.ID

	res, err := sc.Scheduler().ScheduleAppointment(ctx, req)
	if err != nil {
		return errorResult("schedule appointment", err)
	}

	out := scheduleResponse{Success: res.Success, Conflicts: viewsOf(res.Conflicts)}
	if res.Appointment != nil {
		v := viewOf(*res.Appointment)
		out.Appointment = &v
	}
	if res.Reason != nil {
		out.Reason = res.Reason.Error()
	}
	return common.JSONResult(out)
}

// patchFromArgs builds an AppointmentPatch from the update arguments.
func patchFromArgs(args map[string]interface{}) (scheduler.AppointmentPatch, error) {
	var patch scheduler.AppointmentPatch

	if v, ok := args["title"].(string); ok {
		patch.Title = &v
	}
	if v, ok := args["description"].(string); ok {
		patch.Description = &v
	}
	if v, ok := args["location"].(string); ok {
		patch.Location = &v
	}

	start, ok, err := common.GetTimeArg(args, "start")
	if err != nil {
		return patch, err
	}
	if ok {
		patch.Start = &start
	}
	end, ok, err := common.GetTimeArg(args, "end")
	if err != nil {
		return patch, err
	}
	if ok {
		patch.End = &end
	}

	priority, ok, err := common.GetInt64Arg(args, "priority")
	if err != nil {
		return patch, err
	}
	if ok {
		p := int(priority)
		patch.Priority = &p
	}

	if raw := common.GetStringArg(args, "status"); raw != "" {
		st, err := calendar.ParseStatus(raw)
		if err != nil {
			return patch, err
		}
		patch.Status = &st
	}
	return patch, nil
}

// updateResponse is the JSON form of scheduler.UpdateResult.
type updateResponse struct {
	Appointment appointmentView   `json:"appointment"`
	Conflicts   []appointmentView `json:"conflicts"`
}

func updateAppointment(ctx context.Context, sc *server.ServerContext, calendarID int64, args map[string]interface{}) (updateResponse, error) {
	id, err := common.RequireInt64Arg(args, common.ArgAppointmentID)
	if err != nil {
		return updateResponse{}, err
	}
	patch, err := patchFromArgs(args)
	if err != nil {
		return updateResponse{}, err
	}

	res, err := sc.Scheduler().UpdateAppointment(ctx, calendarID, id, patch)
	if err != nil {
		return updateResponse{}, err
	}
	return updateResponse{Appointment: viewOf(res.Appointment), Conflicts: viewsOf(res.Conflicts)}, nil
}

func handleUpdateAppointment(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	cal, err := common.ResolveCalendar(ctx, sc, args)
	if err != nil {
		return errorResult("resolve calendar", err)
	}

	res, err := updateAppointment(ctx, sc, cal.ID, args)
	if err != nil {
		return errorResult("update appointment", err)
	}
	return common.JSONResult(res)
}

func handleBatchUpdateAppointments(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	items, err := batch.ParseItems(args["updates"], "updates", maxBatchUpdates)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cal, err := common.ResolveCalendar(ctx, sc, args)
	if err != nil {
		return errorResult("resolve calendar", err)
	}

	results := batch.ProcessBatch(ctx, items, common.ArgAppointmentID, func(ctx context.Context, item batch.Item) (any, error) {
		return updateAppointment(ctx, sc, cal.ID, item)
	})
	return mcp.NewToolResultText(batch.FormatResults(results)), nil
}

func handleCancelAppointment(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	id, err := common.RequireInt64Arg(args, common.ArgAppointmentID)
	if err != nil {
		return errorResult("cancel appointment", err)
	}
	cal, err := common.ResolveCalendar(ctx, sc, args)
	if err != nil {
		return errorResult("resolve calendar", err)
	}

	cancelled, err := sc.Scheduler().CancelAppointment(ctx, cal.ID, id)
	if err != nil {
		return errorResult("cancel appointment", err)
	}
	return common.JSONResult(map[string]any{
		"appointment_id": id,
		"cancelled":      cancelled,
	})
}
