package store

import (
	"context"
	"time"

	"github.com/teemow/slotkeeper/internal/calendar"
	"github.com/teemow/slotkeeper/internal/instrumentation"
)

// InstrumentedStore records a span and operation metrics for every call to
// the wrapped store.
type InstrumentedStore struct {
	next    Store
	metrics *instrumentation.Metrics
}

// NewInstrumented wraps s. A nil metrics only records spans.
func NewInstrumented(s Store, metrics *instrumentation.Metrics) *InstrumentedStore {
	return &InstrumentedStore{next: s, metrics: metrics}
}

// Unwrap returns the wrapped store.
func (s *InstrumentedStore) Unwrap() Store {
	return s.next
}

func (s *InstrumentedStore) observe(ctx context.Context, op string, b *instrumentation.SpanAttributeBuilder, fn func(ctx context.Context) error) error {
	ctx, span := instrumentation.StartStoreSpan(ctx, op, b.Build()...)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	s.metrics.RecordStoreOperation(ctx, op, instrumentation.StatusFromError(err), time.Since(start))

	if err != nil && !calendar.IsNotFound(err) {
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	return err
}

func (s *InstrumentedStore) CreateCalendar(ctx context.Context, c calendar.Calendar) (out calendar.Calendar, err error) {
	err = s.observe(ctx, instrumentation.OperationCreateCalendar, instrumentation.NewSpanAttributeBuilder(), func(ctx context.Context) error {
		out, err = s.next.CreateCalendar(ctx, c)
		return err
	})
	return out, err
}

func (s *InstrumentedStore) GetCalendar(ctx context.Context, id int64) (out calendar.Calendar, err error) {
	b := instrumentation.NewSpanAttributeBuilder().WithCalendar(id)
	err = s.observe(ctx, instrumentation.OperationGetCalendar, b, func(ctx context.Context) error {
		out, err = s.next.GetCalendar(ctx, id)
		return err
	})
	return out, err
}

func (s *InstrumentedStore) ListCalendars(ctx context.Context, agentID string) (out []calendar.Calendar, err error) {
	err = s.observe(ctx, instrumentation.OperationListCalendars, instrumentation.NewSpanAttributeBuilder(), func(ctx context.Context) error {
		out, err = s.next.ListCalendars(ctx, agentID)
		return err
	})
	return out, err
}

func (s *InstrumentedStore) GetAppointment(ctx context.Context, id int64) (out calendar.Appointment, err error) {
	b := instrumentation.NewSpanAttributeBuilder().WithAppointment(id)
	err = s.observe(ctx, instrumentation.OperationGetAppointment, b, func(ctx context.Context) error {
		out, err = s.next.GetAppointment(ctx, id)
		return err
	})
	return out, err
}

func (s *InstrumentedStore) QueryAppointments(ctx context.Context, q Query) (out []calendar.Appointment, err error) {
	b := instrumentation.NewSpanAttributeBuilder().WithCalendar(q.CalendarID)
	err = s.observe(ctx, instrumentation.OperationQueryAppointments, b, func(ctx context.Context) error {
		out, err = s.next.QueryAppointments(ctx, q)
		return err
	})
	return out, err
}

// Update instruments the transaction as a whole. Calls made through tx are
// not recorded individually.
func (s *InstrumentedStore) Update(ctx context.Context, calendarID int64, fn func(tx Tx) error) error {
	b := instrumentation.NewSpanAttributeBuilder().WithCalendar(calendarID)
	return s.observe(ctx, instrumentation.OperationUpdate, b, func(ctx context.Context) error {
		return s.next.Update(ctx, calendarID, fn)
	})
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	return s.observe(ctx, instrumentation.OperationPing, instrumentation.NewSpanAttributeBuilder(), s.next.Ping)
}

func (s *InstrumentedStore) Close() error {
	return s.next.Close()
}
