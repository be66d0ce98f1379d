package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/teemow/slotkeeper/internal/calendar"
)

// MemoryStore keeps everything in process memory. Writers are serialized and
// a transaction's changes become visible only when it commits.
type MemoryStore struct {
	mu           sync.RWMutex
	calendars    map[int64]calendar.Calendar
	appointments map[int64]calendar.Appointment
	nextCalendar int64
	nextAppt     int64

	writeMu sync.Mutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calendars:    make(map[int64]calendar.Calendar),
		appointments: make(map[int64]calendar.Appointment),
		nextCalendar: 1,
		nextAppt:     1,
	}
}

func (s *MemoryStore) CreateCalendar(_ context.Context, c calendar.Calendar) (calendar.Calendar, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Second)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	c.ID = s.nextCalendar
	s.nextCalendar++
	s.calendars[c.ID] = c
	return c, nil
}

func (s *MemoryStore) GetCalendar(_ context.Context, id int64) (calendar.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.calendars[id]
	if !ok {
		return calendar.Calendar{}, calendar.NotFoundf("calendar %d", id)
	}
	return c, nil
}

func (s *MemoryStore) ListCalendars(_ context.Context, agentID string) ([]calendar.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]calendar.Calendar, 0, len(s.calendars))
	for _, c := range s.calendars {
		if agentID == "" || c.AgentID == agentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetAppointment(_ context.Context, id int64) (calendar.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.appointments[id]
	if !ok {
		return calendar.Appointment{}, calendar.NotFoundf("appointment %d", id)
	}
	return a, nil
}

func (s *MemoryStore) QueryAppointments(_ context.Context, q Query) ([]calendar.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.query(nil, q), nil
}

// query runs q against the committed state overlaid with staged changes.
// Callers hold s.mu.
func (s *MemoryStore) query(staged map[int64]calendar.Appointment, q Query) []calendar.Appointment {
	var out []calendar.Appointment
	for id, a := range s.appointments {
		if override, ok := staged[id]; ok {
			a = override
		}
		if matches(a, q) {
			out = append(out, a)
		}
	}
	for id, a := range staged {
		if _, committed := s.appointments[id]; committed {
			continue
		}
		if matches(a, q) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out
}

func (s *MemoryStore) Update(ctx context.Context, calendarID int64, fn func(tx Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return calendar.Persistence(err)
	}

	s.mu.RLock()
	next := s.nextAppt
	s.mu.RUnlock()

	tx := &memoryTx{store: s, staged: make(map[int64]calendar.Appointment), nextID: next}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range tx.staged {
		s.appointments[id] = a
	}
	s.nextAppt = tx.nextID
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

type memoryTx struct {
	store  *MemoryStore
	staged map[int64]calendar.Appointment
	nextID int64
}

func (t *memoryTx) GetCalendar(ctx context.Context, id int64) (calendar.Calendar, error) {
	return t.store.GetCalendar(ctx, id)
}

func (t *memoryTx) GetAppointment(ctx context.Context, id int64) (calendar.Appointment, error) {
	if a, ok := t.staged[id]; ok {
		return a, nil
	}
	return t.store.GetAppointment(ctx, id)
}

func (t *memoryTx) QueryAppointments(_ context.Context, q Query) ([]calendar.Appointment, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.query(t.staged, q), nil
}

func (t *memoryTx) InsertAppointment(ctx context.Context, a calendar.Appointment) (calendar.Appointment, error) {
	if _, err := t.store.GetCalendar(ctx, a.CalendarID); err != nil {
		return calendar.Appointment{}, err
	}
	a.ID = t.nextID
	t.nextID++
	t.staged[a.ID] = a
	return a, nil
}

func (t *memoryTx) SaveAppointment(ctx context.Context, a calendar.Appointment) error {
	if _, err := t.GetAppointment(ctx, a.ID); err != nil {
		return err
	}
	t.staged[a.ID] = a
	return nil
}

func sortAppointments(list []calendar.Appointment) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].Start.Equal(list[j].Start) {
			return list[i].Start.Before(list[j].Start)
		}
		return list[i].ID < list[j].ID
	})
}
