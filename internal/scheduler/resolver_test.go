package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/slotkeeper/internal/calendar"
)

func mustParseStrategies(t *testing.T, doc string) Strategies {
	t.Helper()
	st, err := ParseStrategies([]byte(doc))
	require.NoError(t, err)
	return st
}

// assertExclusive checks that every conflict ended up in exactly one list
// and that no resolved conflict still overlaps the target.
func assertExclusive(t *testing.T, f *fixture, res Resolution, conflicts int) {
	t.Helper()
	assert.Equal(t, conflicts, len(res.Resolved)+len(res.Unresolved))

	seen := map[int64]bool{}
	for _, r := range res.Resolved {
		assert.False(t, seen[r.Appointment.ID], "appointment %d reported twice", r.Appointment.ID)
		seen[r.Appointment.ID] = true

		stored := f.get(t, r.Appointment.ID)
		if stored.Status != calendar.StatusCancelled {
			assert.False(t, stored.Overlaps(res.Target.Start, res.Target.End),
				"resolved conflict %d still overlaps the target", stored.ID)
		}
	}
	for _, u := range res.Unresolved {
		assert.False(t, seen[u.Appointment.ID], "appointment %d reported twice", u.Appointment.ID)
		seen[u.Appointment.ID] = true
	}
}

func TestResolveConflicts_ByPriority(t *testing.T) {
	f := newFixture(t)
	low := f.schedule(t, "Office update", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 4)
	target := f.schedule(t, "Client closing", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 1)

	res, err := f.svc.ResolveConflicts(f.ctx, target.ID, Strategies{ByPriority: true})
	require.NoError(t, err)

	require.Len(t, res.Resolved, 1)
	assert.Empty(t, res.Unresolved)
	assert.NotEmpty(t, res.RunID)
	r := res.Resolved[0]
	assert.Equal(t, low.ID, r.Appointment.ID)
	assert.Equal(t, OutcomeCancelled, r.Action)
	assert.Equal(t, LayerPriority, r.Layer)
	assert.Equal(t, calendar.StatusCancelled, f.get(t, low.ID).Status)
	assertExclusive(t, f, res, 1)
}

func TestResolveConflicts_ByTypeCancel(t *testing.T) {
	f := newFixture(t)
	dentist := f.schedule(t, "Dentist", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 2)
	target := f.schedule(t, "Open house", at(10, 9, 0), at(10, 11, 0), calendar.StatusConfirmed, 2)

	st := mustParseStrategies(t, `{"by_type": {"personal": {"action": "cancel"}}}`)
	res, err := f.svc.ResolveConflicts(f.ctx, target.ID, st)
	require.NoError(t, err)

	require.Len(t, res.Resolved, 1)
	assert.Equal(t, dentist.ID, res.Resolved[0].Appointment.ID)
	assert.Equal(t, LayerType, res.Resolved[0].Layer)
	assert.Equal(t, calendar.TypePersonal, res.Resolved[0].Type)
	assert.Equal(t, calendar.StatusCancelled, f.get(t, dentist.ID).Status)
}

func TestResolveConflicts_ByTypeRescheduleIntoTargetWindow(t *testing.T) {
	f := newFixture(t)
	standup := f.schedule(t, "Team Standup", at(10, 9, 0), at(10, 9, 30), calendar.StatusConfirmed, 3)
	target := f.schedule(t, "Client meeting", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 1)
	f.schedule(t, "Showing", at(11, 9, 0), at(11, 10, 0), calendar.StatusConfirmed, 1)

	st := mustParseStrategies(t, `{"by_type": {"internal": {"action": "reschedule",
		"target_window": "2025-03-11T09:00-12:00", "preferred_hours": [9, 10]}}}`)
	res, err := f.svc.ResolveConflicts(f.ctx, target.ID, st)
	require.NoError(t, err)

	require.Len(t, res.Resolved, 1)
	r := res.Resolved[0]
	assert.Equal(t, standup.ID, r.Appointment.ID)
	assert.Equal(t, OutcomeRescheduled, r.Action)
	assert.Equal(t, LayerType, r.Layer)
	assert.Equal(t, at(10, 9, 0), r.PreviousStart)
	assert.Equal(t, at(10, 9, 30), r.PreviousEnd)

	moved := f.get(t, standup.ID)
	assert.Equal(t, at(11, 10, 0), moved.Start, "09:00 is taken, 10:00 is the next preferred hour")
	assert.Equal(t, 30*time.Minute, moved.Duration())
	assertExclusive(t, f, res, 1)
}

func TestResolveConflicts_FallbackReschedule(t *testing.T) {
	f := newFixture(t)
	// The conflict is more important than the target, so priority cannot
	// cancel it.
	focus := f.schedule(t, "Focus block", at(10, 10, 0), at(10, 11, 0), calendar.StatusConfirmed, 1)
	target := f.schedule(t, "Focus block two", at(10, 10, 0), at(10, 11, 0), calendar.StatusConfirmed, 1)
	f.schedule(t, "Early block", at(11, 9, 0), at(11, 10, 0), calendar.StatusConfirmed, 1)

	res, err := f.svc.ResolveConflicts(f.ctx, target.ID, DefaultStrategies())
	require.NoError(t, err)

	require.Len(t, res.Resolved, 1)
	assert.Equal(t, LayerFallback, res.Resolved[0].Layer)
	assert.Equal(t, OutcomeRescheduled, res.Resolved[0].Action)
	assert.Equal(t, at(11, 10, 0), f.get(t, focus.ID).Start)
}

func TestResolveConflicts_FallbackAvoidsLunch(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		want     time.Time
	}{
		{
			name:     "lunch avoided",
			strategy: `{"fallback": {"action": "reschedule", "window_days": 1, "preferred_hours": [11]}}`,
			want:     at(11, 14, 0),
		},
		{
			name:     "lunch allowed",
			strategy: `{"fallback": {"window_days": 1, "preferred_hours": [11], "avoid_lunch_hour": false}}`,
			want:     at(11, 11, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			long := f.schedule(t, "Block", at(10, 9, 0), at(10, 11, 0), calendar.StatusConfirmed, 1)
			target := f.schedule(t, "Target", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 1)
			// Leave 11:00-13:00 and 14:00-17:00 open on the 11th.
			f.schedule(t, "Morning", at(11, 9, 0), at(11, 11, 0), calendar.StatusConfirmed, 1)
			f.schedule(t, "Afternoon", at(11, 13, 0), at(11, 14, 0), calendar.StatusConfirmed, 1)

			res, err := f.svc.ResolveConflicts(f.ctx, target.ID, mustParseStrategies(t, tt.strategy))
			require.NoError(t, err)
			require.Len(t, res.Resolved, 1)
			assert.Equal(t, tt.want, f.get(t, long.ID).Start)
			assert.Equal(t, 2*time.Hour, f.get(t, long.ID).Duration())
		})
	}
}

func TestResolveConflicts_LunchUnresolvedInSingleDayWindow(t *testing.T) {
	f := newFixture(t)
	c := f.schedule(t, "Block", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 1)
	target := f.schedule(t, "Target", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 1)

	st := mustParseStrategies(t, `{"fallback": {"target_window": "2025-03-11T12:00-13:00"}}`)
	res, err := f.svc.ResolveConflicts(f.ctx, target.ID, st)
	require.NoError(t, err)
	require.Len(t, res.Unresolved, 1)
	assert.Contains(t, res.Unresolved[0].Reason, "no free slot")
	assert.Equal(t, at(10, 9, 0), f.get(t, c.ID).Start)

	st = mustParseStrategies(t, `{"fallback": {"target_window": "2025-03-11T12:00-13:00", "avoid_lunch_hour": false}}`)
	res, err = f.svc.ResolveConflicts(f.ctx, target.ID, st)
	require.NoError(t, err)
	require.Len(t, res.Resolved, 1)
	assert.Equal(t, at(11, 12, 0), f.get(t, c.ID).Start)
}

func TestResolveConflicts_OutsideBusinessHoursForMultiDayWindow(t *testing.T) {
	f := newFixture(t)
	c := f.schedule(t, "Block", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 1)
	target := f.schedule(t, "Target", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 1)
	f.schedule(t, "Full day", at(11, 9, 0), at(11, 17, 0), calendar.StatusConfirmed, 1)
	f.schedule(t, "Full day", at(12, 9, 0), at(12, 17, 0), calendar.StatusConfirmed, 1)

	st := mustParseStrategies(t, `{"fallback": {"window_days": 2}}`)
	res, err := f.svc.ResolveConflicts(f.ctx, target.ID, st)
	require.NoError(t, err)
	require.Len(t, res.Resolved, 1)
	assert.Equal(t, at(11, 0, 0), f.get(t, c.ID).Start)

	// A single-day window never leaves business hours.
	c2 := f.schedule(t, "Block", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 1)
	st = mustParseStrategies(t, `{"fallback": {"target_window": "2025-03-12T08:00-18:00"}}`)
	res, err = f.svc.ResolveConflicts(f.ctx, target.ID, st)
	require.NoError(t, err)
	require.Len(t, res.Unresolved, 1)
	assert.Equal(t, c2.ID, res.Unresolved[0].Appointment.ID)
}

func TestResolveConflicts_PastWindowIsUnresolved(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, "Block", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 1)
	target := f.schedule(t, "Target", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 1)

	st := mustParseStrategies(t, `{"fallback": {"target_window": "2025-03-01T09:00-17:00", "window_days": 2}}`)
	res, err := f.svc.ResolveConflicts(f.ctx, target.ID, st)
	require.NoError(t, err)
	assert.Empty(t, res.Resolved)
	assert.Len(t, res.Unresolved, 1)
}

func TestResolveConflicts_LayerOrder(t *testing.T) {
	f := newFixture(t)
	// Personal conflict with a failing type rule falls through to priority.
	gym := f.schedule(t, "Gym", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 5)
	target := f.schedule(t, "Client showing", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 1)

	st := mustParseStrategies(t, `{"by_type": {"personal": {"target_window": "2025-03-01T09:00-10:00"}},
		"by_priority": true, "fallback": {"action": "cancel"}}`)
	res, err := f.svc.ResolveConflicts(f.ctx, target.ID, st)
	require.NoError(t, err)

	require.Len(t, res.Resolved, 1)
	assert.Equal(t, gym.ID, res.Resolved[0].Appointment.ID)
	assert.Equal(t, LayerPriority, res.Resolved[0].Layer)
}

func TestResolveConflicts_NoStrategyLeavesUnresolved(t *testing.T) {
	f := newFixture(t)
	a := f.schedule(t, "xyz", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 3)
	b := f.schedule(t, "abc", at(10, 9, 30), at(10, 10, 30), calendar.StatusTentative, 3)
	target := f.schedule(t, "Target", at(10, 9, 0), at(10, 11, 0), calendar.StatusConfirmed, 3)

	res, err := f.svc.ResolveConflicts(f.ctx, target.ID, Strategies{ByPriority: true})
	require.NoError(t, err)

	assert.Empty(t, res.Resolved)
	require.Len(t, res.Unresolved, 2)
	assert.Equal(t, a.ID, res.Unresolved[0].Appointment.ID, "conflicts are processed in start order")
	assert.Equal(t, b.ID, res.Unresolved[1].Appointment.ID)
	assert.Contains(t, res.Unresolved[0].Reason, "priority")

	res, err = f.svc.ResolveConflicts(f.ctx, target.ID, Strategies{})
	require.NoError(t, err)
	assert.Equal(t, "no strategy applies", res.Unresolved[0].Reason)
	assertExclusive(t, f, res, 2)
}

func TestResolveConflicts_Idempotent(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.schedule(t, "Paperwork", at(10, 9+i, 0), at(10, 10+i, 0), calendar.StatusConfirmed, 5)
	}
	target := f.schedule(t, "Closing", at(10, 9, 0), at(10, 12, 0), calendar.StatusConfirmed, 1)

	first, err := f.svc.ResolveConflicts(f.ctx, target.ID, DefaultStrategies())
	require.NoError(t, err)
	assert.Len(t, first.Resolved, 3)
	assertExclusive(t, f, first, 3)

	second, err := f.svc.ResolveConflicts(f.ctx, target.ID, DefaultStrategies())
	require.NoError(t, err)
	assert.Empty(t, second.Resolved)
	assert.Empty(t, second.Unresolved)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestResolveConflicts_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ResolveConflicts(f.ctx, 404, DefaultStrategies())
	assert.True(t, calendar.IsNotFound(err))

	a := f.schedule(t, "Gone", at(10, 9, 0), at(10, 10, 0), calendar.StatusConfirmed, 3)
	_, err = f.svc.CancelAppointment(f.ctx, f.cal.ID, a.ID)
	require.NoError(t, err)

	_, err = f.svc.ResolveConflicts(f.ctx, a.ID, DefaultStrategies())
	assert.True(t, calendar.IsValidation(err))
}

func TestRescheduleWindow(t *testing.T) {
	conflict := calendar.Appointment{Start: at(10, 23, 30), End: at(11, 0, 30)}

	w := rescheduleWindow(&RescheduleRule{WindowDays: 3}, conflict, time.UTC)
	require.Len(t, w.days, 3)
	assert.Equal(t, at(11, 0, 0), w.days[0])
	assert.False(t, w.restricted)

	tw, err := ParseTargetWindow("2025-03-20T13:00-15:30")
	require.NoError(t, err)
	w = rescheduleWindow(&RescheduleRule{Window: &tw, WindowDays: 2}, conflict, time.UTC)
	require.Len(t, w.days, 2)
	assert.Equal(t, at(20, 0, 0), w.days[0])
	assert.Equal(t, at(21, 0, 0), w.days[1])
	assert.True(t, w.restricted)
	assert.Equal(t, "2025-03-20..2025-03-21 13:00-15:30", w.String())

	// In Tokyo the conflict already falls on the 11th.
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	w = rescheduleWindow(&RescheduleRule{WindowDays: 1}, conflict, tokyo)
	assert.Equal(t, time.Date(2025, 3, 12, 0, 0, 0, 0, tokyo), w.days[0])
}
