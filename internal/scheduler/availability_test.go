package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/slotkeeper/internal/calendar"
)

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, "Showing", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 2)
	f.schedule(t, "Maybe gym", at(10, 11, 0), at(10, 12, 0), calendar.StatusTentative, 1)

	tests := []struct {
		name       string
		start, end time.Time
		priority   int
		want       bool
	}{
		{name: "free", start: at(10, 13, 0), end: at(10, 14, 0), priority: 3, want: true},
		{name: "blocked by more important", start: at(10, 9, 30), end: at(10, 10, 30), priority: 3, want: false},
		{name: "blocked by equal priority", start: at(10, 9, 30), end: at(10, 10, 30), priority: 2, want: false},
		{name: "not blocked by less important", start: at(10, 9, 30), end: at(10, 10, 30), priority: 1, want: true},
		{name: "touching is free", start: at(10, 10, 0), end: at(10, 11, 0), priority: 5, want: true},
		{name: "tentative never blocks", start: at(10, 11, 0), end: at(10, 12, 0), priority: 5, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.CheckAvailability(f.ctx, f.cal.ID, tt.start, tt.end, tt.priority)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := f.svc.CheckAvailability(f.ctx, f.cal.ID, at(10, 10, 0), at(10, 9, 0), 3)
	assert.True(t, calendar.IsValidation(err))
	_, err = f.svc.CheckAvailability(f.ctx, f.cal.ID, at(10, 9, 0), at(10, 10, 0), 0)
	assert.True(t, calendar.IsValidation(err))
	_, err = f.svc.CheckAvailability(f.ctx, 77, at(10, 9, 0), at(10, 10, 0), 3)
	assert.True(t, calendar.IsNotFound(err))
}

func TestFindAvailableSlots_BusinessDayScenario(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, "A", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 1)
	f.schedule(t, "B", at(10, 14, 0), at(10, 15, 0), calendar.StatusConfirmed, 3)

	slots, err := f.svc.FindAvailableSlots(f.ctx, f.cal.ID, at(10, 9, 0), at(10, 17, 0), time.Hour, 5, 5)
	require.NoError(t, err)

	want := []time.Time{at(10, 10, 0), at(10, 10, 30), at(10, 11, 0), at(10, 11, 30), at(10, 12, 0)}
	require.Len(t, slots, len(want))
	for i, s := range slots {
		assert.Equal(t, want[i], s.Start)
		assert.Equal(t, time.Hour, s.Duration())
		assert.Zero(t, s.Start.Minute()%30)
		assert.False(t, s.Overlaps(calendar.TimeRange{Start: at(10, 9, 0), End: at(10, 10, 0)}))
		assert.False(t, s.Overlaps(calendar.TimeRange{Start: at(10, 14, 0), End: at(10, 15, 0)}))
	}
}

func TestFindAvailableSlots_PriorityThreshold(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, "A", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 1)
	f.schedule(t, "B", at(10, 14, 0), at(10, 15, 0), calendar.StatusConfirmed, 3)

	// B is less important than the request and does not block it.
	slots, err := f.svc.FindAvailableSlots(f.ctx, f.cal.ID, at(10, 9, 0), at(10, 17, 0), time.Hour, 20, 2)
	require.NoError(t, err)

	var starts []time.Time
	for _, s := range slots {
		starts = append(starts, s.Start)
	}
	assert.Contains(t, starts, at(10, 14, 0))
	assert.NotContains(t, starts, at(10, 9, 0))
	assert.Equal(t, at(10, 16, 0), starts[len(starts)-1])
}

func TestFindAvailableSlots_AlignmentAndBusinessHours(t *testing.T) {
	f := newFixture(t)

	slots, err := f.svc.FindAvailableSlots(f.ctx, f.cal.ID, at(10, 6, 10), at(11, 20, 0), 90*time.Minute, 100, 3)
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	assert.Equal(t, at(10, 9, 0), slots[0].Start)
	for _, s := range slots {
		assert.Zero(t, s.Start.Minute()%30, "slot %s is off the grid", s.Start)
		assert.GreaterOrEqual(t, s.Start.Hour(), 9)
		assert.False(t, s.End.After(time.Date(2025, 3, s.Start.Day(), 17, 0, 0, 0, time.UTC)))
	}
	// 09:00 .. 15:30 on two days.
	assert.Len(t, slots, 28)
}

func TestFindAvailableSlots_LocalClock(t *testing.T) {
	f := newFixtureWithZone(t, "America/New_York")

	// New York is on UTC-4 after March 9 2025.
	slots, err := f.svc.FindAvailableSlots(f.ctx, f.cal.ID, at(10, 12, 0), at(10, 23, 0), time.Hour, 50, 3)
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	assert.Equal(t, at(10, 13, 0), slots[0].Start)
	assert.Equal(t, at(10, 21, 0), slots[len(slots)-1].End)
}

func TestFindAvailableSlots_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		start    time.Time
		end      time.Time
		duration time.Duration
		max      int
		priority int
	}{
		{name: "zero duration", start: at(10, 9, 0), end: at(10, 17, 0), duration: 0, max: 5, priority: 3},
		{name: "zero max slots", start: at(10, 9, 0), end: at(10, 17, 0), duration: time.Hour, max: 0, priority: 3},
		{name: "inverted window", start: at(10, 17, 0), end: at(10, 9, 0), duration: time.Hour, max: 5, priority: 3},
		{name: "bad priority", start: at(10, 9, 0), end: at(10, 17, 0), duration: time.Hour, max: 5, priority: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.FindAvailableSlots(f.ctx, f.cal.ID, tt.start, tt.end, tt.duration, tt.max, tt.priority)
			assert.True(t, calendar.IsValidation(err), "got %v", err)
		})
	}
}

func TestFindAvailableSlots_IterationCap(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.MaxSearchIterations = 3

	slots, err := f.svc.FindAvailableSlots(f.ctx, f.cal.ID, at(10, 0, 0), at(12, 0, 0), time.Hour, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, slots, "the first three candidates lie before business hours")
}

func TestIsDayUnderutilized(t *testing.T) {
	tests := []struct {
		name      string
		appts     [][2]time.Time
		wantUnder bool
		wantHours float64
	}{
		{
			name:      "empty day",
			wantUnder: true,
			wantHours: 0,
		},
		{
			name:      "exactly four hours",
			appts:     [][2]time.Time{{at(10, 9, 0), at(10, 13, 0)}},
			wantUnder: false,
			wantHours: 4,
		},
		{
			name:      "just under four hours",
			appts:     [][2]time.Time{{at(10, 9, 0), at(10, 9, 0).Add(3*time.Hour + 59*time.Minute + 24*time.Second)}},
			wantUnder: true,
			wantHours: 3.99,
		},
		{
			name:      "overlapping appointments are summed",
			appts:     [][2]time.Time{{at(10, 9, 0), at(10, 11, 0)}, {at(10, 10, 0), at(10, 12, 0)}},
			wantUnder: false,
			wantHours: 4,
		},
		{
			name:      "crossing midnight does not count",
			appts:     [][2]time.Time{{at(9, 20, 0), at(10, 4, 0)}},
			wantUnder: true,
			wantHours: 0,
		},
		{
			name:      "only appointments inside the day count",
			appts:     [][2]time.Time{{at(9, 22, 0), at(10, 2, 0)}, {at(10, 8, 0), at(10, 10, 0)}, {at(10, 22, 0), at(11, 3, 0)}},
			wantUnder: true,
			wantHours: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			for _, a := range tt.appts {
				f.schedule(t, "Busy", a[0], a[1], calendar.StatusConfirmed, 3)
			}

			under, hours, err := f.svc.IsDayUnderutilized(f.ctx, f.cal.ID, at(10, 15, 0), 5)
			require.NoError(t, err)
			assert.Equal(t, tt.wantUnder, under)
			assert.InDelta(t, tt.wantHours, hours, 1e-9)
		})
	}
}

func TestIsDayUnderutilized_PriorityAndStatus(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, "Important", at(10, 9, 0), at(10, 11, 0), calendar.StatusConfirmed, 1)
	f.schedule(t, "Optional", at(10, 11, 0), at(10, 14, 0), calendar.StatusTentative, 4)
	gone := f.schedule(t, "Gone", at(10, 14, 0), at(10, 17, 0), calendar.StatusConfirmed, 1)
	_, err := f.svc.CancelAppointment(f.ctx, f.cal.ID, gone.ID)
	require.NoError(t, err)

	under, hours, err := f.svc.IsDayUnderutilized(f.ctx, f.cal.ID, at(10, 0, 0), 5)
	require.NoError(t, err)
	assert.False(t, under)
	assert.InDelta(t, 5.0, hours, 1e-9)

	under, hours, err = f.svc.IsDayUnderutilized(f.ctx, f.cal.ID, at(10, 0, 0), 3)
	require.NoError(t, err)
	assert.True(t, under)
	assert.InDelta(t, 2.0, hours, 1e-9)

	_, _, err = f.svc.IsDayUnderutilized(f.ctx, f.cal.ID, at(10, 0, 0), 0)
	assert.True(t, calendar.IsValidation(err))
}

func TestMergeRanges(t *testing.T) {
	r := func(h1, h2 int) calendar.TimeRange {
		return calendar.TimeRange{Start: at(10, h1, 0), End: at(10, h2, 0)}
	}

	got := mergeRanges([]calendar.TimeRange{r(13, 14), r(9, 10), r(10, 11), r(9, 12), r(15, 16)})
	assert.Equal(t, []calendar.TimeRange{r(9, 12), r(13, 14), r(15, 16)}, got)
	assert.Nil(t, mergeRanges(nil))
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, at(10, 9, 30), alignUp(at(10, 9, 10), time.UTC, 30*time.Minute).UTC())
	assert.Equal(t, at(10, 9, 0), alignUp(at(10, 9, 0), time.UTC, 30*time.Minute).UTC())
	assert.Equal(t, at(11, 0, 0), alignUp(at(10, 23, 45), time.UTC, 30*time.Minute).UTC())

	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	// 09:10 UTC is 14:40 in Kolkata; the next local half hour is 15:00.
	assert.Equal(t, at(10, 9, 30), alignUp(at(10, 9, 10), kolkata, 30*time.Minute).UTC())
}
