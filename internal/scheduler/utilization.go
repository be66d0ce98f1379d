package scheduler

import (
	"context"
	"math"
	"time"

	"github.com/teemow/slotkeeper/internal/calendar"
	"github.com/teemow/slotkeeper/internal/store"
)

// DayUtilization summarizes the business hours of one local day.
type DayUtilization struct {
	Date          string  `json:"date"`
	Weekday       string  `json:"weekday"`
	Appointments  int     `json:"appointments"`
	BusyMinutes   float64 `json:"busy_minutes"`
	FreeHours     float64 `json:"free_hours"`
	Underutilized bool    `json:"underutilized"`
}

// RangeAnalysis is the result of AnalyzeRange.
type RangeAnalysis struct {
	CalendarID int64            `json:"calendar_id"`
	StartDate  string           `json:"start_date"`
	EndDate    string           `json:"end_date"`
	Days       []DayUtilization `json:"days"`
	LeastBusy  *DayUtilization  `json:"least_busy,omitempty"`
}

// AnalyzeRange reports business hour utilization for every local day from
// startDate to endDate inclusive. Only the calendar dates of the arguments
// matter. Busy time is the union of non-cancelled appointments clipped to
// business hours. LeastBusy is the first day with the most free hours.
func (s *Service) AnalyzeRange(ctx context.Context, calendarID int64, startDate, endDate time.Time, weekdaysOnly bool) (RangeAnalysis, error) {
	_, loc, err := s.calendarLocation(ctx, s.store, calendarID)
	if err != nil {
		return RangeAnalysis{}, err
	}

	first, last := dayIn(startDate, loc), dayIn(endDate, loc)
	if last.Before(first) {
		return RangeAnalysis{}, calendar.Validationf("end date %s is before start date %s",
			last.Format(time.DateOnly), first.Format(time.DateOnly))
	}
	days := 0
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		days++
	}
	if days > s.cfg.MaxRangeDays {
		return RangeAnalysis{}, calendar.Validationf("range covers %d days, at most %d are allowed", days, s.cfg.MaxRangeDays)
	}

	appts, err := s.store.QueryAppointments(ctx, store.Query{
		CalendarID: calendarID,
		Start:      first,
		End:        last.AddDate(0, 0, 1),
		Statuses:   store.NonCancelled,
	})
	if err != nil {
		return RangeAnalysis{}, err
	}

	out := RangeAnalysis{
		CalendarID: calendarID,
		StartDate:  first.Format(time.DateOnly),
		EndDate:    last.Format(time.DateOnly),
		Days:       []DayUtilization{},
	}

	leastBusy := -1
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		if weekdaysOnly && (d.Weekday() == time.Saturday || d.Weekday() == time.Sunday) {
			continue
		}
		day := s.analyzeDay(d, appts)
		out.Days = append(out.Days, day)
		if leastBusy < 0 || day.FreeHours > out.Days[leastBusy].FreeHours {
			leastBusy = len(out.Days) - 1
		}
	}
	if leastBusy >= 0 {
		lb := out.Days[leastBusy]
		out.LeastBusy = &lb
	}
	return out, nil
}

func (s *Service) analyzeDay(day time.Time, appts []calendar.Appointment) DayUtilization {
	open, closing := s.businessHours(day)
	bounds := calendar.TimeRange{Start: open, End: closing}

	var touching []calendar.Appointment
	for _, a := range appts {
		if a.Overlaps(open, closing) {
			touching = append(touching, a)
		}
	}

	busy := busyTime(touching, bounds)
	free := math.Max(0, (bounds.Duration() - busy).Hours())

	return DayUtilization{
		Date:          day.Format(time.DateOnly),
		Weekday:       day.Weekday().String(),
		Appointments:  len(touching),
		BusyMinutes:   busy.Minutes(),
		FreeHours:     free,
		Underutilized: busy.Hours() < s.cfg.MinBusyHours,
	}
}
