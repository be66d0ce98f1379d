package scheduler

import (
	"context"
	"time"

	"github.com/teemow/slotkeeper/internal/calendar"
	"github.com/teemow/slotkeeper/internal/config"
	"github.com/teemow/slotkeeper/internal/logging"
	"github.com/teemow/slotkeeper/internal/store"
)

// searchWindow is the set of local days a reschedule may land on,
// optionally restricted to a daily time range.
type searchWindow struct {
	days []time.Time // local midnights, ascending

	restricted bool
	from, to   config.ClockTime
}

func (w searchWindow) String() string {
	if len(w.days) == 0 {
		return "empty window"
	}
	first := w.days[0].Format("2006-01-02")
	last := w.days[len(w.days)-1].Format("2006-01-02")
	if w.restricted {
		return first + ".." + last + " " + w.from.String() + "-" + w.to.String()
	}
	return first + ".." + last
}

// rescheduleWindow builds the search window of a reschedule rule for a
// conflict. Without a target window the search covers the WindowDays local
// days after the conflict's own day.
func rescheduleWindow(rr *RescheduleRule, conflict calendar.Appointment, loc *time.Location) searchWindow {
	n := rr.WindowDays
	if n <= 0 {
		n = DefaultFallbackWindowDays
	}

	var w searchWindow
	var first time.Time
	if rr.Window != nil {
		first = rr.Window.FirstDay(loc)
		w.restricted = true
		w.from, w.to = rr.Window.From, rr.Window.To
	} else {
		first = dayIn(conflict.Start.In(loc), loc).AddDate(0, 0, 1)
	}
	for i := 0; i < n; i++ {
		w.days = append(w.days, first.AddDate(0, 0, i))
	}
	return w
}

// slotSearch holds the state of one findAvailableSlot call.
type slotSearch struct {
	s          *Service
	loc        *time.Location
	window     searchWindow
	duration   time.Duration
	avoidLunch bool
	now        time.Time
	existing   []calendar.Appointment
	excludeID  int64

	iterations int
}

// exhausted counts one candidate and reports whether the iteration cap is
// reached.
func (ss *slotSearch) exhausted() bool {
	if ss.iterations >= ss.s.cfg.MaxSearchIterations {
		return true
	}
	ss.iterations++
	return false
}

// fits checks everything except the collision test.
func (ss *slotSearch) fits(c time.Time, day time.Time, business bool) bool {
	end := c.Add(ss.duration)
	if c.Before(ss.now) {
		return false
	}
	if business && !ss.s.withinBusinessHours(c, end, ss.loc) {
		return false
	}
	if ss.window.restricted {
		if c.Before(ss.window.from.On(day)) || end.After(ss.window.to.On(day)) {
			return false
		}
	}
	if ss.avoidLunch {
		lunch := ss.s.lunchHour(day)
		if calendar.Overlaps(c, end, lunch.Start, lunch.End) {
			return false
		}
	}
	return true
}

func (ss *slotSearch) free(c time.Time) bool {
	return !overlapsAny(ss.existing, c, c.Add(ss.duration), ss.excludeID)
}

// preferred tries each preferred hour of each day, days first.
func (ss *slotSearch) preferred(hours []int) (time.Time, bool) {
	for _, day := range ss.window.days {
		for _, h := range hours {
			if ss.exhausted() {
				return time.Time{}, false
			}
			c := time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, ss.loc)
			if c.Hour() != h {
				// The hour does not exist on this day (DST gap).
				continue
			}
			if ss.fits(c, day, true) && ss.free(c) {
				return c, true
			}
		}
	}
	return time.Time{}, false
}

// sweep walks each day on the slot alignment grid.
func (ss *slotSearch) sweep(business bool) (time.Time, bool) {
	step := ss.s.cfg.SlotAlignment
	for _, day := range ss.window.days {
		next := day.AddDate(0, 0, 1)
		for c := day; c.Before(next); c = c.Add(step) {
			if ss.exhausted() {
				return time.Time{}, false
			}
			if ss.fits(c, day, business) && ss.free(c) {
				return c, true
			}
		}
	}
	return time.Time{}, false
}

// findAvailableSlot looks for the first start time in the window at which
// an appointment of the given duration collides with no non-cancelled
// appointment other than excludeID. It tries the preferred hours first,
// then sweeps business hours, and for multi-day windows finally sweeps
// outside business hours. Store errors are logged and reported as no slot.
func (s *Service) findAvailableSlot(ctx context.Context, r store.Reader, calendarID, excludeID int64, loc *time.Location, window searchWindow, duration time.Duration, rr *RescheduleRule) (time.Time, bool) {
	if len(window.days) == 0 || duration <= 0 {
		return time.Time{}, false
	}
	started := time.Now()

	last := window.days[len(window.days)-1].AddDate(0, 0, 1)
	existing, err := r.QueryAppointments(ctx, store.Query{
		CalendarID: calendarID,
		Start:      window.days[0],
		End:        last.Add(duration),
		Statuses:   store.NonCancelled,
	})
	if err != nil {
		logging.WithCalendar(s.logger, calendarID).Warn("slot search failed to load appointments", logging.Err(err))
		return time.Time{}, false
	}

	ss := &slotSearch{
		s:          s,
		loc:        loc,
		window:     window,
		duration:   duration,
		avoidLunch: rr.AvoidLunch,
		now:        s.Now(),
		existing:   existing,
		excludeID:  excludeID,
	}

	slot, ok := ss.preferred(rr.PreferredHours)
	if !ok {
		slot, ok = ss.sweep(true)
	}
	if !ok && len(window.days) > 1 {
		slot, ok = ss.sweep(false)
	}

	s.metrics.RecordSlotSearch(ctx, ok, time.Since(started))
	if !ok {
		return time.Time{}, false
	}
	return slot.UTC(), true
}
