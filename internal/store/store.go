package store

import (
	"context"
	"time"

	"github.com/teemow/slotkeeper/internal/calendar"
)

// Query selects appointments of one calendar.
type Query struct {
	CalendarID int64

	// Start and End select appointments overlapping [Start, End). A zero
	// bound is open.
	Start time.Time
	End   time.Time

	// Statuses restricts the result to the given statuses. Empty means all.
	Statuses []calendar.Status

	// MaxPriority keeps appointments with Priority <= MaxPriority. Zero
	// disables the filter.
	MaxPriority int

	// ExcludeID drops one appointment from the result.
	ExcludeID int64
}

// NonCancelled is the status set used by conflict detection.
var NonCancelled = []calendar.Status{calendar.StatusTentative, calendar.StatusConfirmed}

// Confirmed is the status set used by availability checks.
var Confirmed = []calendar.Status{calendar.StatusConfirmed}

// Reader is the read side shared by Store and Tx.
type Reader interface {
	// GetCalendar returns calendar.ErrNotFound when the calendar does not exist.
	GetCalendar(ctx context.Context, id int64) (calendar.Calendar, error)

	// GetAppointment returns calendar.ErrNotFound when the appointment does not exist.
	GetAppointment(ctx context.Context, id int64) (calendar.Appointment, error)

	// QueryAppointments returns matching appointments ordered by start, then ID.
	QueryAppointments(ctx context.Context, q Query) ([]calendar.Appointment, error)
}

// Tx is a unit of work on a single calendar. It is only valid inside the
// function passed to Store.Update.
type Tx interface {
	Reader

	// InsertAppointment stores a new appointment and returns it with its ID.
	InsertAppointment(ctx context.Context, a calendar.Appointment) (calendar.Appointment, error)

	// SaveAppointment overwrites an existing appointment.
	SaveAppointment(ctx context.Context, a calendar.Appointment) error
}

// Store persists calendars and appointments. Appointments are never deleted.
type Store interface {
	Reader

	// CreateCalendar stores a new calendar and returns it with its ID.
	CreateCalendar(ctx context.Context, c calendar.Calendar) (calendar.Calendar, error)

	// ListCalendars returns the calendars of an agent, or all calendars when
	// agentID is empty, ordered by ID.
	ListCalendars(ctx context.Context, agentID string) ([]calendar.Calendar, error)

	// Update runs fn under the calendar's lock inside a transaction. The
	// transaction commits when fn returns nil and rolls back otherwise; fn's
	// error is returned unchanged.
	Update(ctx context.Context, calendarID int64, fn func(tx Tx) error) error

	// Ping checks that the backing storage is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// matches reports whether a satisfies q. Shared by the in-memory store and
// tests.
func matches(a calendar.Appointment, q Query) bool {
	if a.CalendarID != q.CalendarID {
		return false
	}
	if q.ExcludeID != 0 && a.ID == q.ExcludeID {
		return false
	}
	if !q.Start.IsZero() && !a.End.After(q.Start) {
		return false
	}
	if !q.End.IsZero() && !a.Start.Before(q.End) {
		return false
	}
	if q.MaxPriority > 0 && a.Priority > q.MaxPriority {
		return false
	}
	if len(q.Statuses) == 0 {
		return true
	}
	for _, s := range q.Statuses {
		if a.Status == s {
			return true
		}
	}
	return false
}
