package instrumentation

// Label helpers keep metric label values drawn from small, fixed sets.
// Free-form values such as appointment titles or agent IDs must never be
// used as labels.

// StatusFromError maps an error to StatusSuccess or StatusError.
func StatusFromError(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// BoundedLabel returns value when it is one of allowed, otherwise "other".
//
// Example:
//
//	BoundedLabel("priority", "type", "priority", "fallback")  // "priority"
//	BoundedLabel("bogus", "type", "priority", "fallback")     // "other"
func BoundedLabel(value string, allowed ...string) string {
	for _, a := range allowed {
		if value == a {
			return value
		}
	}
	return "other"
}

// Store operation names used with RecordStoreOperation and StartStoreSpan.
const (
	OperationCreateCalendar    = "create_calendar"
	OperationGetCalendar       = "get_calendar"
	OperationListCalendars     = "list_calendars"
	OperationGetAppointment    = "get_appointment"
	OperationQueryAppointments = "query_appointments"
	OperationUpdate            = "update"
	OperationPing              = "ping"
)

// Scheduler operation names used as span attributes.
const (
	OperationResolveConflicts = "resolve_conflicts"
)
