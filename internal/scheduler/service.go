package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/slotkeeper/internal/calendar"
	"github.com/teemow/slotkeeper/internal/config"
	"github.com/teemow/slotkeeper/internal/instrumentation"
	"github.com/teemow/slotkeeper/internal/logging"
	"github.com/teemow/slotkeeper/internal/store"
)

// Service is the scheduling engine. It is safe for concurrent use; all
// read-modify-write sequences go through store.Store.Update.
type Service struct {
	store    store.Store
	cfg      config.Scheduling
	strategy Strategies
	now      func() time.Time
	logger   *slog.Logger
	metrics  *instrumentation.Metrics

	ensureMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now. Tests use it to pin "now".
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithDefaultStrategy sets the strategies ResolveConflicts callers fall back
// to when they pass none.
func WithDefaultStrategy(st Strategies) Option {
	return func(s *Service) {
		s.strategy = st
	}
}

// New creates a Service on top of st.
func New(st store.Store, cfg config.Scheduling, opts ...Option) *Service {
	s := &Service{
		store:    st,
		cfg:      cfg,
		strategy: DefaultStrategies(),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithComponent(s.logger, "scheduler")
	return s
}

// Config returns the scheduling rules the service applies.
func (s *Service) Config() config.Scheduling {
	return s.cfg
}

// DefaultStrategy returns the strategies used when a caller passes none.
func (s *Service) DefaultStrategy() Strategies {
	return s.strategy
}

// Now returns the current time at storage precision.
func (s *Service) Now() time.Time {
	return calendar.NormalizeTime(s.now())
}

// location returns the local clock of a calendar.
func (s *Service) location(c calendar.Calendar) *time.Location {
	return c.Location(s.cfg.Location())
}

// calendarLocation loads a calendar and its local clock.
func (s *Service) calendarLocation(ctx context.Context, r store.Reader, calendarID int64) (calendar.Calendar, *time.Location, error) {
	c, err := r.GetCalendar(ctx, calendarID)
	if err != nil {
		return calendar.Calendar{}, nil, err
	}
	return c, s.location(c), nil
}

// businessHours returns the opening and closing instants on the local day
// of t.
func (s *Service) businessHours(t time.Time) (open, closing time.Time) {
	return s.cfg.BusinessStart.On(t), s.cfg.BusinessEnd.On(t)
}

// lunchHour returns the lunch break on the local day of t.
func (s *Service) lunchHour(t time.Time) calendar.TimeRange {
	return calendar.TimeRange{Start: s.cfg.LunchStart.On(t), End: s.cfg.LunchEnd.On(t)}
}

// withinBusinessHours reports whether [start, end) lies inside business
// hours of a single local day in loc.
func (s *Service) withinBusinessHours(start, end time.Time, loc *time.Location) bool {
	ls := start.In(loc)
	open, closing := s.businessHours(ls)
	return !ls.Before(open) && !end.After(closing)
}

// dayIn returns local midnight in loc of the calendar date named by t.
func dayIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
