package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teemow/slotkeeper/internal/calendar"
	"github.com/teemow/slotkeeper/internal/config"
	"github.com/teemow/slotkeeper/internal/store"
)

// testNow is a Monday well before the dates used by the tests.
var testNow = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

type fixture struct {
	ctx   context.Context
	svc   *Service
	store *store.MemoryStore
	cal   calendar.Calendar
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithZone(t, "")
}

func newFixtureWithZone(t *testing.T, tz string) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	svc := New(st, config.Default().Scheduling, WithClock(func() time.Time { return testNow }))

	cal, err := svc.CreateCalendar(ctx, "agent-1", "Work", tz)
	require.NoError(t, err)

	return &fixture{ctx: ctx, svc: svc, store: st, cal: cal}
}

// at returns a UTC instant in March 2025.
func at(day, hour, minute int) time.Time {
	return time.Date(2025, 3, day, hour, minute, 0, 0, time.UTC)
}

func (f *fixture) schedule(t *testing.T, title string, start, end time.Time, status calendar.Status, priority int) calendar.Appointment {
	t.Helper()
	res, err := f.svc.ScheduleAppointment(f.ctx, ScheduleRequest{
		CalendarID: f.cal.ID,
		Title:      title,
		Start:      start,
		End:        end,
		Status:     status,
		Priority:   priority,
	})
	require.NoError(t, err)
	require.True(t, res.Success, "scheduling %q was refused: %v", title, res.Reason)
	return *res.Appointment
}

func (f *fixture) get(t *testing.T, id int64) calendar.Appointment {
	t.Helper()
	a, err := f.store.GetAppointment(f.ctx, id)
	require.NoError(t, err)
	return a
}

func (f *fixture) all(t *testing.T) []calendar.Appointment {
	t.Helper()
	appts, err := f.store.QueryAppointments(f.ctx, store.Query{CalendarID: f.cal.ID})
	require.NoError(t, err)
	return appts
}
