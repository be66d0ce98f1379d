// Package calendar_tools provides the MCP tools of the scheduling engine.
//
// The tools let an AI agent manage its calendars and appointments, check
// availability, find free slots, resolve conflicts with a strategy document
// and inspect how busy its days are. Read tools are always registered;
// tools that change appointments are only registered when the server runs
// with write operations enabled.
//
// Every tool acts on one calendar. A call names it with calendarId, or
// leaves it to the agent's default calendar, which is created on first use.
package calendar_tools
