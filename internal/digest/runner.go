package digest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teemow/slotkeeper/internal/calendar"
	"github.com/teemow/slotkeeper/internal/config"
	"github.com/teemow/slotkeeper/internal/instrumentation"
	"github.com/teemow/slotkeeper/internal/logging"
	"github.com/teemow/slotkeeper/internal/scheduler"
)

// Analyzer is the part of the scheduler the digest needs.
type Analyzer interface {
	ListCalendars(ctx context.Context, agentID string) ([]calendar.Calendar, error)
	AnalyzeRange(ctx context.Context, calendarID int64, startDate, endDate time.Time, weekdaysOnly bool) (scheduler.RangeAnalysis, error)
	Now() time.Time
}

// Report is the digest of one calendar.
type Report struct {
	CalendarID    int64                      `json:"calendar_id"`
	CalendarName  string                     `json:"calendar_name"`
	Analysis      scheduler.RangeAnalysis    `json:"analysis"`
	Underutilized []scheduler.DayUtilization `json:"underutilized"`
}

// Runner produces utilization digests, on demand or on a cron schedule.
type Runner struct {
	analyzer Analyzer
	cfg      config.Digest
	logger   logging.Logger
	metrics  *instrumentation.Metrics
	loc      *time.Location

	mu   sync.Mutex
	cron *cron.Cron
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithLocation sets the zone used for calendars without one of their own.
func WithLocation(loc *time.Location) Option {
	return func(r *Runner) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// NewRunner creates a Runner. It does not start the schedule.
func NewRunner(a Analyzer, cfg config.Digest, opts ...Option) *Runner {
	r := &Runner{
		analyzer: a,
		cfg:      cfg,
		logger:   logging.DefaultLogger(),
		loc:      time.UTC,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Horizon returns the first and last of the next n weekdays after now,
// as dates in loc.
func Horizon(now time.Time, loc *time.Location, n int) (first, last time.Time) {
	y, m, d := now.In(loc).Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)

	for found := 0; found < n; {
		day = day.AddDate(0, 0, 1)
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		if found == 0 {
			first = day
		}
		last = day
		found++
	}
	return first, last
}

// RunOnce analyzes the upcoming weekdays of every calendar. A calendar that
// fails is logged and skipped; the joined errors are returned together
// with the reports that succeeded.
func (r *Runner) RunOnce(ctx context.Context) ([]Report, error) {
	started := time.Now()

	cals, err := r.analyzer.ListCalendars(ctx, "")
	if err != nil {
		r.metrics.RecordDigestRun(ctx, instrumentation.StatusError)
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	now := r.analyzer.Now()
	reports := make([]Report, 0, len(cals))
	var errs []error

	for _, cal := range cals {
		first, last := Horizon(now, cal.Location(r.loc), r.cfg.HorizonDays)

		analysis, err := r.analyzer.AnalyzeRange(ctx, cal.ID, first, last, true)
		if err != nil {
			r.logger.Warn("digest failed for calendar",
				logging.KeyCalendarID, cal.ID,
				logging.KeyError, err.Error())
			errs = append(errs, fmt.Errorf("calendar %d: %w", cal.ID, err))
			continue
		}

		rep := Report{
			CalendarID:    cal.ID,
			CalendarName:  cal.Name,
			Analysis:      analysis,
			Underutilized: []scheduler.DayUtilization{},
		}
		for _, day := range analysis.Days {
			if day.Underutilized {
				rep.Underutilized = append(rep.Underutilized, day)
			}
		}
		r.logReport(rep)
		r.metrics.RecordUnderutilizedDays(ctx, cal.ID, len(rep.Underutilized))
		reports = append(reports, rep)
	}

	err = errors.Join(errs...)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	r.metrics.RecordDigestRun(ctx, status)
	r.logger.Info("digest completed",
		"calendars", len(reports),
		logging.KeyStatus, status,
		logging.KeyDuration, time.Since(started))
	return reports, err
}

func (r *Runner) logReport(rep Report) {
	args := []interface{}{
		logging.KeyCalendarID, rep.CalendarID,
		"calendar", rep.CalendarName,
		"from", rep.Analysis.StartDate,
		"to", rep.Analysis.EndDate,
	}
	if lb := rep.Analysis.LeastBusy; lb != nil {
		args = append(args, "least_busy", lb.Date, "least_busy_free_hours", lb.FreeHours)
	}
	r.logger.Info("calendar digest", args...)

	for _, day := range rep.Underutilized {
		r.logger.Info("underutilized day",
			logging.KeyCalendarID, rep.CalendarID,
			"date", day.Date,
			"weekday", day.Weekday,
			"busy_minutes", day.BusyMinutes)
	}
}

// Start schedules RunOnce on the configured cron expression. It is a no-op
// when no schedule is configured. The jobs use ctx, so cancelling it aborts
// a running digest but does not stop the schedule; call Stop for that.
func (r *Runner) Start(ctx context.Context) error {
	if r.cfg.Schedule == "" {
		r.logger.Info("digest schedule not configured, periodic digest disabled")
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return fmt.Errorf("digest runner already started")
	}

	cl := cronLogger{logger: r.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(r.cfg.Schedule, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("scheduled digest failed", logging.KeyError, err.Error())
		}
	}); err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", r.cfg.Schedule, err)
	}

	c.Start()
	r.cron = c
	r.logger.Info("digest schedule started", "schedule", r.cfg.Schedule)
	return nil
}

// Stop stops the schedule and waits for a running digest to finish or for
// ctx to expire.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the schedule is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cron != nil
}
