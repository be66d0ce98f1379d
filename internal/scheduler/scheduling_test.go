package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/slotkeeper/internal/calendar"
)

func TestScheduleAppointment_AdmitsMoreImportantOverOverlap(t *testing.T) {
	f := newFixture(t)
	existing := f.schedule(t, "Office update", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 3)

	res, err := f.svc.ScheduleAppointment(f.ctx, ScheduleRequest{
		CalendarID: f.cal.ID,
		Title:      "Client closing",
		Start:      at(10, 9, 0),
		End:        at(10, 10, 0),
		Status:     calendar.StatusConfirmed,
		Priority:   1,
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	require.NotNil(t, res.Appointment)
	assert.NoError(t, res.Reason)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, existing.ID, res.Conflicts[0].ID)
	assert.Len(t, f.all(t), 2)
}

func TestScheduleAppointment_RefusesLessImportant(t *testing.T) {
	f := newFixture(t)
	important := f.schedule(t, "Client closing", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 1)

	res, err := f.svc.ScheduleAppointment(f.ctx, ScheduleRequest{
		CalendarID: f.cal.ID,
		Title:      "Office update",
		Start:      at(10, 9, 0),
		End:        at(10, 10, 0),
		Status:     calendar.StatusConfirmed,
		Priority:   3,
	})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Nil(t, res.Appointment)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, important.ID, res.Conflicts[0].ID)
	assert.True(t, errors.Is(res.Reason, calendar.ErrAdmissionRefused))
	assert.True(t, IsAdmissionRefused(res.Reason))
	assert.Len(t, f.all(t), 1)
}

func TestScheduleAppointment_EqualPriorityIsInformational(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, "Team sync", at(10, 9, 0), at(10, 10, 0), calendar.StatusTentative, 3)

	res, err := f.svc.ScheduleAppointment(f.ctx, ScheduleRequest{
		CalendarID: f.cal.ID, Title: "Planning", Start: at(10, 9, 30), End: at(10, 10, 30),
		Status: calendar.StatusConfirmed, Priority: 3,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.Conflicts, 1)
}

func TestScheduleAppointment_IgnoresCancelledAndTouching(t *testing.T) {
	f := newFixture(t)
	blocker := f.schedule(t, "Client closing", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 1)
	ok, err := f.svc.CancelAppointment(f.ctx, f.cal.ID, blocker.ID)
	require.NoError(t, err)
	require.True(t, ok)
	f.schedule(t, "Showing", at(10, 10, 0), at(10, 11, 0), calendar.StatusConfirmed, 1)

	res, err := f.svc.ScheduleAppointment(f.ctx, ScheduleRequest{
		CalendarID: f.cal.ID, Title: "Paperwork", Start: at(10, 9, 0), End: at(10, 10, 0),
		Status: calendar.StatusConfirmed, Priority: 5,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Conflicts)
}

func TestScheduleAppointment_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		req     ScheduleRequest
		wantErr error
	}{
		{
			name:    "empty title",
			req:     ScheduleRequest{CalendarID: f.cal.ID, Title: "  ", Start: at(10, 9, 0), End: at(10, 10, 0), Status: calendar.StatusConfirmed, Priority: 3},
			wantErr: calendar.ErrValidation,
		},
		{
			name:    "end before start",
			req:     ScheduleRequest{CalendarID: f.cal.ID, Title: "x", Start: at(10, 10, 0), End: at(10, 9, 0), Status: calendar.StatusConfirmed, Priority: 3},
			wantErr: calendar.ErrValidation,
		},
		{
			name:    "empty interval",
			req:     ScheduleRequest{CalendarID: f.cal.ID, Title: "x", Start: at(10, 9, 0), End: at(10, 9, 0), Status: calendar.StatusConfirmed, Priority: 3},
			wantErr: calendar.ErrValidation,
		},
		{
			name:    "cancelled status",
			req:     ScheduleRequest{CalendarID: f.cal.ID, Title: "x", Start: at(10, 9, 0), End: at(10, 10, 0), Status: calendar.StatusCancelled, Priority: 3},
			wantErr: calendar.ErrValidation,
		},
		{
			name:    "priority out of range",
			req:     ScheduleRequest{CalendarID: f.cal.ID, Title: "x", Start: at(10, 9, 0), End: at(10, 10, 0), Status: calendar.StatusConfirmed, Priority: 6},
			wantErr: calendar.ErrValidation,
		},
		{
			name:    "title too long",
			req:     ScheduleRequest{CalendarID: f.cal.ID, Title: string(make([]byte, 256)) + "x", Start: at(10, 9, 0), End: at(10, 10, 0), Status: calendar.StatusConfirmed, Priority: 3},
			wantErr: calendar.ErrValidation,
		},
		{
			name:    "unknown calendar",
			req:     ScheduleRequest{CalendarID: 999, Title: "x", Start: at(10, 9, 0), End: at(10, 10, 0), Status: calendar.StatusConfirmed, Priority: 3},
			wantErr: calendar.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ScheduleAppointment(f.ctx, tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
	assert.Empty(t, f.all(t))
}

func TestScheduleAppointment_NormalizesTimes(t *testing.T) {
	f := newFixture(t)
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	start := time.Date(2025, 3, 10, 10, 0, 0, 123456789, berlin)
	appt := f.schedule(t, "Review", start, start.Add(time.Hour), calendar.StatusConfirmed, 3)

	assert.Equal(t, time.UTC, appt.Start.Location())
	assert.Equal(t, at(10, 9, 0), appt.Start)
	assert.Equal(t, at(10, 10, 0), appt.End)
	assert.Equal(t, testNow, appt.CreatedAt)
}

func TestRoundTrip_GetAppointmentsInRange(t *testing.T) {
	f := newFixture(t)
	created := f.schedule(t, "Listing appointment", at(10, 11, 0), at(10, 12, 30), calendar.StatusConfirmed, 2)
	f.schedule(t, "Maybe lunch", at(10, 12, 0), at(10, 13, 0), calendar.StatusTentative, 4)

	got, err := f.svc.GetAppointmentsInRange(f.ctx, f.cal.ID, at(10, 0, 0), at(11, 0, 0))
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, created.ID, got[0].ID)
	assert.Equal(t, created.Title, got[0].Title)
	assert.True(t, created.Start.Equal(got[0].Start))
	assert.True(t, created.End.Equal(got[0].End))
	assert.Equal(t, created.Priority, got[0].Priority)
}

func TestGetAppointmentsInRange_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetAppointmentsInRange(f.ctx, f.cal.ID, at(11, 0, 0), at(10, 0, 0))
	assert.True(t, calendar.IsValidation(err))

	_, err = f.svc.GetAppointmentsInRange(f.ctx, 42, at(10, 0, 0), at(11, 0, 0))
	assert.True(t, calendar.IsNotFound(err))

	got, err := f.svc.GetAppointmentsInRange(f.ctx, f.cal.ID, at(10, 0, 0), at(11, 0, 0))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestUpdateAppointment(t *testing.T) {
	f := newFixture(t)
	a := f.schedule(t, "Team meeting", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 3)
	b := f.schedule(t, "Showing", at(10, 11, 0), at(10, 12, 0), calendar.StatusConfirmed, 1)

	t.Run("partial update keeps other fields", func(t *testing.T) {
		title := "Weekly team meeting"
		res, err := f.svc.UpdateAppointment(f.ctx, f.cal.ID, a.ID, AppointmentPatch{Title: &title})
		require.NoError(t, err)
		assert.Equal(t, title, res.Appointment.Title)
		assert.Equal(t, a.Start, res.Appointment.Start)
		assert.Equal(t, 3, res.Appointment.Priority)
		assert.Empty(t, res.Conflicts)
		assert.Equal(t, title, f.get(t, a.ID).Title)
	})

	t.Run("moving onto another appointment reports it but commits", func(t *testing.T) {
		start, end := at(10, 11, 30), at(10, 12, 30)
		res, err := f.svc.UpdateAppointment(f.ctx, f.cal.ID, a.ID, AppointmentPatch{Start: &start, End: &end})
		require.NoError(t, err)
		require.Len(t, res.Conflicts, 1)
		assert.Equal(t, b.ID, res.Conflicts[0].ID)
		assert.Equal(t, start, f.get(t, a.ID).Start)
	})

	t.Run("cancelling skips conflict detection", func(t *testing.T) {
		start := at(10, 11, 0)
		status := calendar.StatusCancelled
		res, err := f.svc.UpdateAppointment(f.ctx, f.cal.ID, a.ID, AppointmentPatch{Start: &start, Status: &status})
		require.NoError(t, err)
		assert.Empty(t, res.Conflicts)
		assert.Equal(t, calendar.StatusCancelled, f.get(t, a.ID).Status)
	})

	t.Run("end before start is rejected", func(t *testing.T) {
		end := at(10, 10, 0)
		_, err := f.svc.UpdateAppointment(f.ctx, f.cal.ID, b.ID, AppointmentPatch{End: &end})
		assert.True(t, calendar.IsValidation(err))
		assert.Equal(t, at(10, 12, 0), f.get(t, b.ID).End)
	})

	t.Run("empty patch", func(t *testing.T) {
		_, err := f.svc.UpdateAppointment(f.ctx, f.cal.ID, b.ID, AppointmentPatch{})
		assert.True(t, calendar.IsValidation(err))
	})

	t.Run("unknown appointment", func(t *testing.T) {
		title := "x"
		_, err := f.svc.UpdateAppointment(f.ctx, f.cal.ID, 999, AppointmentPatch{Title: &title})
		assert.True(t, calendar.IsNotFound(err))
	})

	t.Run("appointment of another calendar", func(t *testing.T) {
		other, err := f.svc.CreateCalendar(f.ctx, "agent-2", "Other", "")
		require.NoError(t, err)
		title := "x"
		_, err = f.svc.UpdateAppointment(f.ctx, other.ID, b.ID, AppointmentPatch{Title: &title})
		assert.True(t, calendar.IsNotFound(err))
	})
}

func TestCancelAppointment(t *testing.T) {
	f := newFixture(t)
	a := f.schedule(t, "Gym", at(10, 7, 0), at(10, 8, 0), calendar.StatusTentative, 5)

	ok, err := f.svc.CancelAppointment(f.ctx, f.cal.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	cancelled := f.get(t, a.ID)
	assert.Equal(t, calendar.StatusCancelled, cancelled.Status)

	ok, err = f.svc.CancelAppointment(f.ctx, f.cal.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, ok, "cancelling twice succeeds")
	assert.Equal(t, cancelled.UpdatedAt, f.get(t, a.ID).UpdatedAt)

	ok, err = f.svc.CancelAppointment(f.ctx, f.cal.ID, 999)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.CancelAppointment(f.ctx, f.cal.ID+1, a.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListAppointments(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, "Client call", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 2)
	f.schedule(t, "client dinner", at(10, 18, 0), at(10, 20, 0), calendar.StatusTentative, 4)
	gone := f.schedule(t, "Client lunch", at(11, 12, 0), at(11, 13, 0), calendar.StatusConfirmed, 2)
	_, err := f.svc.CancelAppointment(f.ctx, f.cal.ID, gone.ID)
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter ListFilter
		want   []string
	}{
		{name: "default excludes cancelled", filter: ListFilter{}, want: []string{"Client call", "client dinner"}},
		{name: "title is case-insensitive", filter: ListFilter{TitleContains: "CLIENT"}, want: []string{"Client call", "client dinner"}},
		{name: "exact priority", filter: ListFilter{Priority: 4}, want: []string{"client dinner"}},
		{name: "window", filter: ListFilter{Start: at(10, 12, 0), End: at(12, 0, 0)}, want: []string{"client dinner"}},
		{name: "cancelled only", filter: ListFilter{Statuses: []calendar.Status{calendar.StatusCancelled}}, want: []string{"Client lunch"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.filter.CalendarID = f.cal.ID
			got, err := f.svc.ListAppointments(f.ctx, tt.filter)
			require.NoError(t, err)
			titles := make([]string, len(got))
			for i, a := range got {
				titles[i] = a.Title
			}
			assert.Equal(t, tt.want, titles)
		})
	}

	_, err = f.svc.ListAppointments(f.ctx, ListFilter{CalendarID: f.cal.ID, Priority: 9})
	assert.True(t, calendar.IsValidation(err))
}

func TestGetAppointment(t *testing.T) {
	f := newFixture(t)
	a := f.schedule(t, "Inspection", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 2)

	got, err := f.svc.GetAppointment(f.ctx, f.cal.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	_, err = f.svc.GetAppointment(f.ctx, f.cal.ID+1, a.ID)
	assert.True(t, calendar.IsNotFound(err))
}

func TestCalendars(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "UTC", f.cal.TimeZone)

	_, err := f.svc.CreateCalendar(f.ctx, "agent-1", "Bad", "Mars/Base")
	assert.True(t, calendar.IsValidation(err))
	_, err = f.svc.CreateCalendar(f.ctx, "", "No agent", "")
	assert.True(t, calendar.IsValidation(err))

	ensured, err := f.svc.EnsureCalendar(f.ctx, "agent-1", "Ignored", "")
	require.NoError(t, err)
	assert.Equal(t, f.cal.ID, ensured.ID)

	created, err := f.svc.EnsureCalendar(f.ctx, "agent-2", "Home", "Europe/Berlin")
	require.NoError(t, err)
	assert.Equal(t, "Home", created.Name)
	assert.Equal(t, "Europe/Berlin", created.TimeZone)

	again, err := f.svc.EnsureCalendar(f.ctx, "agent-2", "Home", "Europe/Berlin")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	mine, err := f.svc.ListCalendars(f.ctx, "agent-2")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := f.svc.ListCalendars(f.ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := f.svc.ListCalendars(f.ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

// Concurrent schedules never leave an appointment that was admitted over a
// strictly more important overlapping one.
func TestScheduleAppointment_NoDoubleBooking(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := at(10, 9, 0).Add(time.Duration(i%4) * 15 * time.Minute)
			_, err := f.svc.ScheduleAppointment(f.ctx, ScheduleRequest{
				CalendarID: f.cal.ID,
				Title:      "Slot",
				Start:      start,
				End:        start.Add(time.Hour),
				Status:     calendar.StatusConfirmed,
				Priority:   i%5 + 1,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	appts := f.all(t)
	require.NotEmpty(t, appts)
	for i, a := range appts {
		for _, b := range appts[i+1:] {
			if !a.Overlaps(b.Start, b.End) {
				continue
			}
			earlier, later := a, b
			if later.ID < earlier.ID {
				earlier, later = later, earlier
			}
			assert.False(t, earlier.Priority < later.Priority,
				"%s was admitted over more important %s", later, earlier)
		}
	}
}
