// Package calendar holds the appointment domain model shared by the store,
// the scheduler and the MCP tools.
//
// It defines Calendar and Appointment, the appointment Status lifecycle,
// the half-open interval overlap predicate, timestamp parsing (naive
// timestamps are UTC) and the error kinds used across the module:
//
//	if errors.Is(err, calendar.ErrNotFound) {
//	    ...
//	}
//
// Classify assigns one of the TypeTag categories to an appointment from its
// title and description. Conflict resolution uses the tag to pick a rule.
package calendar
