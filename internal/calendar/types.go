package calendar

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

// MaxTitleLength is the longest title an appointment may carry.
const MaxTitleLength = 255

// Priority bounds. Lower numbers are more important.
const (
	HighestPriority = 1
	LowestPriority  = 5
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusTentative Status = "TENTATIVE"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus parses a status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusTentative:
		return StatusTentative, nil
	case StatusConfirmed:
		return StatusConfirmed, nil
	case StatusCancelled:
		return StatusCancelled, nil
	}
	return "", Validationf("unknown status %q (expected TENTATIVE, CONFIRMED or CANCELLED)", s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusTentative || s == StatusConfirmed || s == StatusCancelled
}

// Blocks reports whether an appointment in this status takes part in
// conflict detection.
func (s Status) Blocks() bool {
	return s != StatusCancelled
}

// TypeTag is the semantic category of an appointment as derived by Classify.
type TypeTag string

const (
	TypeClientMeeting  TypeTag = "client_meeting"
	TypeInternal       TypeTag = "internal"
	TypePersonal       TypeTag = "personal"
	TypeAdministrative TypeTag = "administrative"
	TypeOther          TypeTag = "other"
)

// TypeTags lists every tag, in tie-breaking order followed by "other".
var TypeTags = []TypeTag{TypeClientMeeting, TypeInternal, TypePersonal, TypeAdministrative, TypeOther}

// ParseTypeTag parses a type tag name.
func ParseTypeTag(s string) (TypeTag, error) {
	t := TypeTag(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range TypeTags {
		if t == known {
			return t, nil
		}
	}
	return "", Validationf("unknown appointment type %q", s)
}

// Calendar owns a collection of appointments.
type Calendar struct {
	ID        int64     `json:"id"`
	AgentID   string    `json:"agent_id"`
	Name      string    `json:"name"`
	TimeZone  string    `json:"time_zone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Location returns the calendar's time zone, or fallback when the calendar
// has none or it cannot be loaded.
func (c Calendar) Location(fallback *time.Location) *time.Location {
	if c.TimeZone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return fallback
	}
	return loc
}

// Appointment is a single scheduled block of time on a calendar.
type Appointment struct {
	ID          int64     `json:"id"`
	CalendarID  int64     `json:"calendar_id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Status      Status    `json:"status"`
	Priority    int       `json:"priority"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Type classifies the appointment from its title and description.
func (a Appointment) Type() TypeTag {
	return Classify(a.Title, a.Description)
}

// Duration returns the length of the appointment.
func (a Appointment) Duration() time.Duration {
	return a.End.Sub(a.Start)
}

// Range returns the appointment's interval.
func (a Appointment) Range() TimeRange {
	return TimeRange{Start: a.Start, End: a.End}
}

// Overlaps reports whether the appointment intersects [start, end).
func (a Appointment) Overlaps(start, end time.Time) bool {
	return Overlaps(a.Start, a.End, start, end)
}

// String renders a short human readable description.
func (a Appointment) String() string {
	return fmt.Sprintf("#%d %q %s-%s (%s, priority %d)",
		a.ID, a.Title, a.Start.Format(time.RFC3339), a.End.Format(time.RFC3339), a.Status, a.Priority)
}

// Validate checks the invariants every stored appointment must satisfy.
func (a Appointment) Validate() error {
	title := strings.TrimSpace(a.Title)
	if title == "" {
		return Validationf("title is required")
	}
	if len(a.Title) > MaxTitleLength {
		return Validationf("title is longer than %d characters", MaxTitleLength)
	}
	if a.Start.IsZero() || a.End.IsZero() {
		return Validationf("start and end are required")
	}
	if !a.Start.Before(a.End) {
		return Validationf("end (%s) must be after start (%s)", a.End.Format(time.RFC3339), a.Start.Format(time.RFC3339))
	}
	if !a.Status.Valid() {
		return Validationf("invalid status %q", a.Status)
	}
	return ValidatePriority(a.Priority)
}

// ValidatePriority checks that p is within 1..5.
func ValidatePriority(p int) error {
	if p < HighestPriority || p > LowestPriority {
		return Validationf("priority must be between %d and %d, got %d", HighestPriority, LowestPriority, p)
	}
	return nil
}

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the length of the range.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Overlaps reports whether r and o intersect.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return Overlaps(r.Start, r.End, o.Start, o.End)
}

// Clip returns the part of r that lies within bounds, and false when they do
// not intersect.
func (r TimeRange) Clip(bounds TimeRange) (TimeRange, bool) {
	if !r.Overlaps(bounds) {
		return TimeRange{}, false
	}
	out := r
	if out.Start.Before(bounds.Start) {
		out.Start = bounds.Start
	}
	if out.End.After(bounds.End) {
		out.End = bounds.End
	}
	return out, true
}
