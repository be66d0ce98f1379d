package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/teemow/slotkeeper/internal/calendar"
	"github.com/teemow/slotkeeper/internal/instrumentation"
	"github.com/teemow/slotkeeper/internal/logging"
	"github.com/teemow/slotkeeper/internal/store"
)

// ScheduleRequest describes a new appointment.
type ScheduleRequest struct {
	CalendarID  int64
	Title       string
	Start       time.Time
	End         time.Time
	Status      calendar.Status
	Priority    int
	Description string
	Location    string
}

// ScheduleResult is the outcome of ScheduleAppointment.
//
// When admission is refused Success is false, Appointment is nil, Conflicts
// holds the blocking appointments and Reason wraps
// calendar.ErrAdmissionRefused. Otherwise Conflicts lists every overlapping
// appointment, which the caller may resolve with ResolveConflicts.
type ScheduleResult struct {
	Success     bool                   `json:"success"`
	Appointment *calendar.Appointment  `json:"appointment,omitempty"`
	Conflicts   []calendar.Appointment `json:"conflicts"`
	Reason      error                  `json:"-"`
}

// ScheduleAppointment admits and stores a new appointment. Overlapping
// non-cancelled appointments that are strictly more important veto the
// request; the rest are reported as conflicts.
func (s *Service) ScheduleAppointment(ctx context.Context, req ScheduleRequest) (ScheduleResult, error) {
	now := s.Now()
	appt := calendar.Appointment{
		CalendarID:  req.CalendarID,
		Title:       strings.TrimSpace(req.Title),
		Start:       calendar.NormalizeTime(req.Start),
		End:         calendar.NormalizeTime(req.End),
		Status:      req.Status,
		Priority:    req.Priority,
		Description: req.Description,
		Location:    req.Location,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := appt.Validate(); err != nil {
		return ScheduleResult{}, err
	}
	if appt.Status == calendar.StatusCancelled {
		return ScheduleResult{}, calendar.Validationf("cannot create an appointment with status %s", calendar.StatusCancelled)
	}

	var result ScheduleResult
	err := s.store.Update(ctx, req.CalendarID, func(tx store.Tx) error {
		if _, err := tx.GetCalendar(ctx, req.CalendarID); err != nil {
			return err
		}

		overlapping, err := tx.QueryAppointments(ctx, store.Query{
			CalendarID: req.CalendarID,
			Start:      appt.Start,
			End:        appt.End,
			Statuses:   store.NonCancelled,
		})
		if err != nil {
			return err
		}

		var blocking []calendar.Appointment
		for _, o := range overlapping {
			if o.Priority < appt.Priority {
				blocking = append(blocking, o)
			}
		}
		if len(blocking) > 0 {
			result = ScheduleResult{
				Conflicts: blocking,
				Reason:    refusal(appt, blocking),
			}
			return nil
		}

		created, err := tx.InsertAppointment(ctx, appt)
		if err != nil {
			return err
		}
		result = ScheduleResult{
			Success:     true,
			Appointment: &created,
			Conflicts:   nonNil(overlapping),
		}
		return nil
	})
	if err != nil {
		return ScheduleResult{}, err
	}

	outcome := instrumentation.ResultAdmitted
	if !result.Success {
		outcome = instrumentation.ResultRefused
	}
	s.metrics.RecordAppointmentScheduled(ctx, string(appt.Status), outcome)

	logger := logging.WithCalendar(s.logger, req.CalendarID)
	if result.Success {
		logger.Debug("appointment scheduled",
			logging.Appointment(result.Appointment.ID),
			"conflicts", len(result.Conflicts))
	} else {
		logger.Debug("appointment refused", "blocking", len(result.Conflicts))
	}
	return result, nil
}

func refusal(appt calendar.Appointment, blocking []calendar.Appointment) error {
	return &AdmissionError{Priority: appt.Priority, Blocking: blocking}
}

// AdmissionError explains a refused schedule request. It matches
// calendar.ErrAdmissionRefused with errors.Is.
type AdmissionError struct {
	Priority int
	Blocking []calendar.Appointment
}

func (e *AdmissionError) Error() string {
	ids := make([]string, len(e.Blocking))
	for i, b := range e.Blocking {
		ids[i] = b.String()
	}
	return calendar.ErrAdmissionRefused.Error() + ": overlaps more important appointments " + strings.Join(ids, ", ")
}

func (e *AdmissionError) Is(target error) bool {
	return target == calendar.ErrAdmissionRefused
}

// AppointmentPatch lists the fields UpdateAppointment changes. Nil fields
// are left alone.
type AppointmentPatch struct {
	Title       *string
	Start       *time.Time
	End         *time.Time
	Status      *calendar.Status
	Priority    *int
	Description *string
	Location    *string
}

// IsEmpty reports whether the patch changes nothing.
func (p AppointmentPatch) IsEmpty() bool {
	return p.Title == nil && p.Start == nil && p.End == nil && p.Status == nil &&
		p.Priority == nil && p.Description == nil && p.Location == nil
}

func (p AppointmentPatch) apply(a *calendar.Appointment) (timesChanged bool) {
	if p.Title != nil {
		a.Title = strings.TrimSpace(*p.Title)
	}
	if p.Start != nil {
		start := calendar.NormalizeTime(*p.Start)
		timesChanged = timesChanged || !start.Equal(a.Start)
		a.Start = start
	}
	if p.End != nil {
		end := calendar.NormalizeTime(*p.End)
		timesChanged = timesChanged || !end.Equal(a.End)
		a.End = end
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.Priority != nil {
		a.Priority = *p.Priority
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.Location != nil {
		a.Location = *p.Location
	}
	return timesChanged
}

// UpdateResult is the outcome of UpdateAppointment. Conflicts are only
// computed when the times changed and are informational.
type UpdateResult struct {
	Appointment calendar.Appointment   `json:"appointment"`
	Conflicts   []calendar.Appointment `json:"conflicts"`
}

// UpdateAppointment applies a partial update to an appointment of the
// calendar.
func (s *Service) UpdateAppointment(ctx context.Context, calendarID, appointmentID int64, patch AppointmentPatch) (UpdateResult, error) {
	if patch.IsEmpty() {
		return UpdateResult{}, calendar.Validationf("no fields to update")
	}

	var result UpdateResult
	err := s.store.Update(ctx, calendarID, func(tx store.Tx) error {
		appt, err := appointmentOf(ctx, tx, calendarID, appointmentID)
		if err != nil {
			return err
		}

		timesChanged := patch.apply(&appt)
		if err := appt.Validate(); err != nil {
			return err
		}
		appt.UpdatedAt = s.Now()

		result = UpdateResult{Appointment: appt, Conflicts: []calendar.Appointment{}}
		if timesChanged && appt.Status != calendar.StatusCancelled {
			conflicts, err := tx.QueryAppointments(ctx, store.Query{
				CalendarID: calendarID,
				Start:      appt.Start,
				End:        appt.End,
				Statuses:   store.NonCancelled,
				ExcludeID:  appt.ID,
			})
			if err != nil {
				return err
			}
			result.Conflicts = nonNil(conflicts)
		}
		return tx.SaveAppointment(ctx, appt)
	})
	if err != nil {
		return UpdateResult{}, err
	}

	logging.WithCalendar(s.logger, calendarID).Debug("appointment updated",
		logging.Appointment(appointmentID),
		"conflicts", len(result.Conflicts))
	return result, nil
}

// CancelAppointment marks an appointment CANCELLED. It returns false with a
// nil error when the appointment does not exist on the calendar. Cancelling
// a cancelled appointment succeeds without writing.
func (s *Service) CancelAppointment(ctx context.Context, calendarID, appointmentID int64) (bool, error) {
	cancelled := false
	err := s.store.Update(ctx, calendarID, func(tx store.Tx) error {
		appt, err := appointmentOf(ctx, tx, calendarID, appointmentID)
		if err != nil {
			return err
		}
		cancelled = true
		if appt.Status == calendar.StatusCancelled {
			return nil
		}
		appt.Status = calendar.StatusCancelled
		appt.UpdatedAt = s.Now()
		return tx.SaveAppointment(ctx, appt)
	})
	if calendar.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return cancelled, nil
}

// GetAppointmentsInRange returns the CONFIRMED appointments overlapping
// [start, end), ordered by start then ID.
func (s *Service) GetAppointmentsInRange(ctx context.Context, calendarID int64, start, end time.Time) ([]calendar.Appointment, error) {
	if err := validateWindow(start, end); err != nil {
		return nil, err
	}
	if _, err := s.store.GetCalendar(ctx, calendarID); err != nil {
		return nil, err
	}
	appts, err := s.store.QueryAppointments(ctx, store.Query{
		CalendarID: calendarID,
		Start:      calendar.NormalizeTime(start),
		End:        calendar.NormalizeTime(end),
		Statuses:   store.Confirmed,
	})
	if err != nil {
		return nil, err
	}
	return nonNil(appts), nil
}

// GetAppointment returns one appointment of the calendar.
func (s *Service) GetAppointment(ctx context.Context, calendarID, appointmentID int64) (calendar.Appointment, error) {
	return appointmentOf(ctx, s.store, calendarID, appointmentID)
}

// ListFilter selects appointments for ListAppointments.
type ListFilter struct {
	CalendarID int64

	// Start and End bound the window. Zero values leave it open.
	Start time.Time
	End   time.Time

	// TitleContains matches titles case-insensitively.
	TitleContains string

	// Priority keeps only appointments with exactly this priority when set.
	Priority int

	// Statuses defaults to every status except CANCELLED.
	Statuses []calendar.Status
}

// ListAppointments returns the calendar's appointments matching f, ordered
// by start then ID.
func (s *Service) ListAppointments(ctx context.Context, f ListFilter) ([]calendar.Appointment, error) {
	if !f.Start.IsZero() && !f.End.IsZero() && !f.Start.Before(f.End) {
		return nil, calendar.Validationf("end must be after start")
	}
	if f.Priority != 0 {
		if err := calendar.ValidatePriority(f.Priority); err != nil {
			return nil, err
		}
	}
	if _, err := s.store.GetCalendar(ctx, f.CalendarID); err != nil {
		return nil, err
	}

	statuses := f.Statuses
	if len(statuses) == 0 {
		statuses = store.NonCancelled
	}
	q := store.Query{CalendarID: f.CalendarID, Statuses: statuses}
	if !f.Start.IsZero() {
		q.Start = calendar.NormalizeTime(f.Start)
	}
	if !f.End.IsZero() {
		q.End = calendar.NormalizeTime(f.End)
	}

	appts, err := s.store.QueryAppointments(ctx, q)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(f.TitleContains))
	out := make([]calendar.Appointment, 0, len(appts))
	for _, a := range appts {
		if needle != "" && !strings.Contains(strings.ToLower(a.Title), needle) {
			continue
		}
		if f.Priority != 0 && a.Priority != f.Priority {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// CreateCalendar creates a calendar for an agent. An empty time zone uses
// the configured default.
func (s *Service) CreateCalendar(ctx context.Context, agentID, name, timeZone string) (calendar.Calendar, error) {
	agentID, name = strings.TrimSpace(agentID), strings.TrimSpace(name)
	if agentID == "" {
		return calendar.Calendar{}, calendar.Validationf("agent id is required")
	}
	if name == "" {
		return calendar.Calendar{}, calendar.Validationf("calendar name is required")
	}
	if timeZone == "" {
		timeZone = s.cfg.DefaultTimezone
	}
	if _, err := time.LoadLocation(timeZone); err != nil {
		return calendar.Calendar{}, calendar.Validationf("unknown time zone %q", timeZone)
	}

	now := s.Now()
	c, err := s.store.CreateCalendar(ctx, calendar.Calendar{
		AgentID:   agentID,
		Name:      name,
		TimeZone:  timeZone,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return calendar.Calendar{}, err
	}
	s.logger.Info("calendar created", logging.Calendar(c.ID), "agent_id", agentID)
	return c, nil
}

// GetCalendar returns a calendar by ID.
func (s *Service) GetCalendar(ctx context.Context, calendarID int64) (calendar.Calendar, error) {
	return s.store.GetCalendar(ctx, calendarID)
}

// ListCalendars returns an agent's calendars, or every calendar when
// agentID is empty.
func (s *Service) ListCalendars(ctx context.Context, agentID string) ([]calendar.Calendar, error) {
	cals, err := s.store.ListCalendars(ctx, strings.TrimSpace(agentID))
	if err != nil {
		return nil, err
	}
	if cals == nil {
		cals = []calendar.Calendar{}
	}
	return cals, nil
}

// EnsureCalendar returns the agent's first calendar, creating one with the
// given name and time zone when the agent has none.
func (s *Service) EnsureCalendar(ctx context.Context, agentID, name, timeZone string) (calendar.Calendar, error) {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()

	cals, err := s.ListCalendars(ctx, agentID)
	if err != nil {
		return calendar.Calendar{}, err
	}
	if len(cals) > 0 {
		return cals[0], nil
	}
	return s.CreateCalendar(ctx, agentID, name, timeZone)
}

// appointmentOf loads an appointment and checks that it belongs to the
// calendar.
func appointmentOf(ctx context.Context, r store.Reader, calendarID, appointmentID int64) (calendar.Appointment, error) {
	appt, err := r.GetAppointment(ctx, appointmentID)
	if err != nil {
		return calendar.Appointment{}, err
	}
	if appt.CalendarID != calendarID {
		return calendar.Appointment{}, calendar.NotFoundf("appointment %d in calendar %d", appointmentID, calendarID)
	}
	return appt, nil
}

func nonNil(appts []calendar.Appointment) []calendar.Appointment {
	if appts == nil {
		return []calendar.Appointment{}
	}
	return appts
}

// IsAdmissionRefused reports whether a schedule result was vetoed.
func IsAdmissionRefused(err error) bool {
	return errors.Is(err, calendar.ErrAdmissionRefused)
}
