package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/slotkeeper/internal/calendar"
)

func TestAnalyzeRange(t *testing.T) {
	f := newFixture(t)
	// Monday: 3h busy once the overlap is merged.
	f.schedule(t, "Showing", at(10, 9, 0), at(10, 11, 0), calendar.StatusConfirmed, 2)
	f.schedule(t, "Call", at(10, 10, 0), at(10, 12, 0), calendar.StatusTentative, 2)
	// Tuesday: clipped to business hours, 2h.
	f.schedule(t, "Early", at(11, 7, 0), at(11, 10, 0), calendar.StatusConfirmed, 3)
	f.schedule(t, "Late", at(11, 16, 0), at(11, 19, 0), calendar.StatusConfirmed, 3)
	// Wednesday: 6h.
	f.schedule(t, "Inspection", at(12, 9, 0), at(12, 15, 0), calendar.StatusConfirmed, 3)
	// Thursday: cancelled only.
	gone := f.schedule(t, "Closing", at(13, 9, 0), at(13, 17, 0), calendar.StatusConfirmed, 1)
	_, err := f.svc.CancelAppointment(f.ctx, f.cal.ID, gone.ID)
	require.NoError(t, err)
	// Outside business hours on Friday.
	f.schedule(t, "Dinner", at(14, 19, 0), at(14, 21, 0), calendar.StatusConfirmed, 3)

	res, err := f.svc.AnalyzeRange(f.ctx, f.cal.ID, at(10, 15, 0), at(14, 0, 0), false)
	require.NoError(t, err)

	assert.Equal(t, "2025-03-10", res.StartDate)
	assert.Equal(t, "2025-03-14", res.EndDate)
	require.Len(t, res.Days, 5)

	want := []struct {
		date          string
		weekday       string
		appointments  int
		busyMinutes   float64
		freeHours     float64
		underutilized bool
	}{
		{"2025-03-10", "Monday", 2, 180, 5, true},
		{"2025-03-11", "Tuesday", 2, 120, 6, true},
		{"2025-03-12", "Wednesday", 1, 360, 2, false},
		{"2025-03-13", "Thursday", 0, 0, 8, true},
		{"2025-03-14", "Friday", 0, 0, 8, true},
	}
	for i, w := range want {
		d := res.Days[i]
		assert.Equal(t, w.date, d.Date)
		assert.Equal(t, w.weekday, d.Weekday)
		assert.Equal(t, w.appointments, d.Appointments, w.date)
		assert.InDelta(t, w.busyMinutes, d.BusyMinutes, 1e-9, w.date)
		assert.InDelta(t, w.freeHours, d.FreeHours, 1e-9, w.date)
		assert.Equal(t, w.underutilized, d.Underutilized, w.date)
	}

	// Thursday and Friday tie; the first one wins.
	require.NotNil(t, res.LeastBusy)
	assert.Equal(t, "2025-03-13", res.LeastBusy.Date)
}

func TestAnalyzeRange_WeekdaysOnly(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, "Full Friday", at(14, 9, 0), at(14, 17, 0), calendar.StatusConfirmed, 3)

	res, err := f.svc.AnalyzeRange(f.ctx, f.cal.ID, at(14, 0, 0), at(17, 0, 0), true)
	require.NoError(t, err)

	require.Len(t, res.Days, 2)
	assert.Equal(t, "Friday", res.Days[0].Weekday)
	assert.Equal(t, "Monday", res.Days[1].Weekday)
	assert.Equal(t, "2025-03-17", res.LeastBusy.Date)

	res, err = f.svc.AnalyzeRange(f.ctx, f.cal.ID, at(15, 0, 0), at(16, 0, 0), true)
	require.NoError(t, err)
	assert.Empty(t, res.Days)
	assert.Nil(t, res.LeastBusy)
}

func TestAnalyzeRange_LocalDays(t *testing.T) {
	f := newFixtureWithZone(t, "America/Los_Angeles")
	// 16:00-20:00 UTC is 09:00-13:00 in Los Angeles on the 10th (PDT).
	f.schedule(t, "Open house", at(10, 16, 0), at(10, 20, 0), calendar.StatusConfirmed, 2)

	res, err := f.svc.AnalyzeRange(f.ctx, f.cal.ID, at(10, 12, 0), at(10, 12, 0), false)
	require.NoError(t, err)
	require.Len(t, res.Days, 1)
	assert.InDelta(t, 240, res.Days[0].BusyMinutes, 1e-9)
	assert.False(t, res.Days[0].Underutilized)
}

func TestAnalyzeRange_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		calendarID int64
		start, end int
		check      func(error) bool
	}{
		{name: "end before start", calendarID: f.cal.ID, start: 12, end: 10, check: calendar.IsValidation},
		{name: "unknown calendar", calendarID: 999, start: 10, end: 12, check: calendar.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AnalyzeRange(f.ctx, tt.calendarID, at(tt.start, 0, 0), at(tt.end, 0, 0), false)
			assert.True(t, tt.check(err), "unexpected error %v", err)
		})
	}

	t.Run("range too long", func(t *testing.T) {
		maxDays := f.svc.Config().MaxRangeDays
		start := at(1, 0, 0)
		_, err := f.svc.AnalyzeRange(f.ctx, f.cal.ID, start, start.AddDate(0, 0, maxDays), false)
		assert.True(t, calendar.IsValidation(err))

		_, err = f.svc.AnalyzeRange(f.ctx, f.cal.ID, start, start.AddDate(0, 0, maxDays-1), false)
		assert.NoError(t, err)
	})
}
