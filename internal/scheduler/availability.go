package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/teemow/slotkeeper/internal/calendar"
	"github.com/teemow/slotkeeper/internal/store"
)

// IsSlotAvailable reports whether no CONFIRMED appointment at least as
// important as priority overlaps [start, end).
func (s *Service) IsSlotAvailable(ctx context.Context, calendarID int64, start, end time.Time, priority int) (bool, error) {
	blocking, err := s.store.QueryAppointments(ctx, store.Query{
		CalendarID:  calendarID,
		Start:       calendar.NormalizeTime(start),
		End:         calendar.NormalizeTime(end),
		Statuses:    store.Confirmed,
		MaxPriority: priority,
	})
	if err != nil {
		return false, err
	}
	return len(blocking) == 0, nil
}

// CheckAvailability validates its input and applies IsSlotAvailable. Only
// CONFIRMED appointments block.
func (s *Service) CheckAvailability(ctx context.Context, calendarID int64, start, end time.Time, priority int) (bool, error) {
	if err := validateWindow(start, end); err != nil {
		return false, err
	}
	if err := calendar.ValidatePriority(priority); err != nil {
		return false, err
	}
	if _, err := s.store.GetCalendar(ctx, calendarID); err != nil {
		return false, err
	}
	return s.IsSlotAvailable(ctx, calendarID, start, end, priority)
}

// FindAvailableSlots lists up to maxSlots free slots of the given duration
// inside [start, end). Candidates start on the slot alignment grid of the
// calendar's local clock and lie within business hours. A candidate is
// free when no CONFIRMED appointment with priority <= priority overlaps it.
func (s *Service) FindAvailableSlots(ctx context.Context, calendarID int64, start, end time.Time, duration time.Duration, maxSlots, priority int) ([]calendar.TimeRange, error) {
	if err := validateWindow(start, end); err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, calendar.Validationf("duration must be positive, got %s", duration)
	}
	if maxSlots <= 0 {
		return nil, calendar.Validationf("max slots must be positive, got %d", maxSlots)
	}
	if err := calendar.ValidatePriority(priority); err != nil {
		return nil, err
	}

	_, loc, err := s.calendarLocation(ctx, s.store, calendarID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	start, end = calendar.NormalizeTime(start), calendar.NormalizeTime(end)

	busy, err := s.store.QueryAppointments(ctx, store.Query{
		CalendarID:  calendarID,
		Start:       start,
		End:         end,
		Statuses:    store.Confirmed,
		MaxPriority: priority,
	})
	if err != nil {
		return nil, err
	}

	step := s.cfg.SlotAlignment
	var slots []calendar.TimeRange
	iterations := 0
	for c := alignUp(start, loc, step); !c.Add(duration).After(end); c = c.Add(step) {
		if iterations >= s.cfg.MaxSearchIterations {
			s.logger.Warn("slot search stopped at iteration cap",
				"calendar_id", calendarID, "iterations", iterations)
			break
		}
		iterations++

		slotEnd := c.Add(duration)
		if !s.withinBusinessHours(c, slotEnd, loc) {
			continue
		}
		if overlapsAny(busy, c, slotEnd, 0) {
			continue
		}
		slots = append(slots, calendar.TimeRange{Start: c.UTC(), End: slotEnd.UTC()})
		if len(slots) >= maxSlots {
			break
		}
	}

	s.metrics.RecordSlotSearch(ctx, len(slots) > 0, time.Since(started))
	return slots, nil
}

// IsDayUnderutilized sums the durations of the non-cancelled appointments
// with priority <= priority that lie entirely inside the local calendar day
// named by date. Appointments crossing midnight do not count, overlapping
// ones count in full. The day is underutilized when the sum stays strictly
// below the configured minimum.
func (s *Service) IsDayUnderutilized(ctx context.Context, calendarID int64, date time.Time, priority int) (bool, float64, error) {
	if err := calendar.ValidatePriority(priority); err != nil {
		return false, 0, err
	}
	_, loc, err := s.calendarLocation(ctx, s.store, calendarID)
	if err != nil {
		return false, 0, err
	}

	day := calendar.TimeRange{Start: dayIn(date, loc)}
	day.End = day.Start.AddDate(0, 0, 1)

	appts, err := s.store.QueryAppointments(ctx, store.Query{
		CalendarID:  calendarID,
		Start:       day.Start,
		End:         day.End,
		Statuses:    store.NonCancelled,
		MaxPriority: priority,
	})
	if err != nil {
		return false, 0, err
	}

	var busy time.Duration
	for _, a := range appts {
		if a.Start.Before(day.Start) || a.End.After(day.End) {
			continue
		}
		busy += a.Duration()
	}
	hours := busy.Hours()
	return hours < s.cfg.MinBusyHours, hours, nil
}

func validateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return calendar.Validationf("start and end are required")
	}
	if !start.Before(end) {
		return calendar.Validationf("end (%s) must be after start (%s)", calendar.FormatTime(end), calendar.FormatTime(start))
	}
	return nil
}

// alignUp moves t forward to the next multiple of step counted from local
// midnight in loc. Times already on the grid are returned unchanged.
func alignUp(t time.Time, loc *time.Location, step time.Duration) time.Time {
	local := t.In(loc)
	midnight := dayIn(local, loc)
	if rem := local.Sub(midnight) % step; rem != 0 {
		return local.Add(step - rem)
	}
	return local
}

// overlapsAny reports whether any appointment other than excludeID overlaps
// [start, end).
func overlapsAny(appts []calendar.Appointment, start, end time.Time, excludeID int64) bool {
	for _, a := range appts {
		if excludeID != 0 && a.ID == excludeID {
			continue
		}
		if a.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// busyTime returns the length of the union of the appointments clipped to
// bounds. Overlapping appointments are counted once.
func busyTime(appts []calendar.Appointment, bounds calendar.TimeRange) time.Duration {
	var ranges []calendar.TimeRange
	for _, a := range appts {
		if r, ok := a.Range().Clip(bounds); ok {
			ranges = append(ranges, r)
		}
	}
	var total time.Duration
	for _, r := range mergeRanges(ranges) {
		total += r.Duration()
	}
	return total
}

// mergeRanges sorts ranges and joins the ones that overlap or touch.
func mergeRanges(ranges []calendar.TimeRange) []calendar.TimeRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]calendar.TimeRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := []calendar.TimeRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Start.After(last.End) {
			merged = append(merged, r)
			continue
		}
		if r.End.After(last.End) {
			last.End = r.End
		}
	}
	return merged
}
