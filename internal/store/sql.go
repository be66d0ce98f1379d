package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teemow/slotkeeper/internal/calendar"
)

// SQLStore persists calendars and appointments in SQLite or PostgreSQL.
// Timestamps are stored as Unix seconds.
type SQLStore struct {
	db      *DB
	locker  Locker
	closers []func() error
}

// NewSQLStore creates a store on a migrated database. A nil locker defaults
// to a LocalLocker.
func NewSQLStore(db *DB, locker Locker) *SQLStore {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &SQLStore{db: db, locker: locker}
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const calendarColumns = `id, agent_id, name, time_zone, created_at, updated_at`

const appointmentColumns = `id, calendar_id, title, start_at, end_at, status, priority,
	description, location, created_at, updated_at`

func (s *SQLStore) CreateCalendar(ctx context.Context, c calendar.Calendar) (calendar.Calendar, error) {
	now := time.Now().UTC().Truncate(time.Second)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	if c.TimeZone == "" {
		c.TimeZone = "UTC"
	}

	q := s.rebind(`INSERT INTO calendars (agent_id, name, time_zone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`)
	err := s.db.QueryRowContext(ctx, q,
		c.AgentID, c.Name, c.TimeZone, c.CreatedAt.Unix(), c.UpdatedAt.Unix(),
	).Scan(&c.ID)
	if err != nil {
		return calendar.Calendar{}, calendar.Persistence(fmt.Errorf("failed to create calendar: %w", err))
	}
	return c, nil
}

func (s *SQLStore) GetCalendar(ctx context.Context, id int64) (calendar.Calendar, error) {
	return getCalendar(ctx, s.db, s.rebind, id)
}

func (s *SQLStore) ListCalendars(ctx context.Context, agentID string) ([]calendar.Calendar, error) {
	q := `SELECT ` + calendarColumns + ` FROM calendars`
	var args []any
	if agentID != "" {
		q += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, calendar.Persistence(fmt.Errorf("failed to list calendars: %w", err))
	}
	defer rows.Close()

	var out []calendar.Calendar
	for rows.Next() {
		c, err := scanCalendar(rows)
		if err != nil {
			return nil, calendar.Persistence(err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, calendar.Persistence(err)
	}
	return out, nil
}

func (s *SQLStore) GetAppointment(ctx context.Context, id int64) (calendar.Appointment, error) {
	return getAppointment(ctx, s.db, s.rebind, id)
}

func (s *SQLStore) QueryAppointments(ctx context.Context, q Query) ([]calendar.Appointment, error) {
	return queryAppointments(ctx, s.db, s.rebind, q)
}

func (s *SQLStore) Update(ctx context.Context, calendarID int64, fn func(tx Tx) error) error {
	unlock, err := s.locker.Lock(ctx, CalendarLockKey(calendarID))
	if err != nil {
		return err
	}
	defer unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return calendar.Persistence(fmt.Errorf("failed to begin transaction: %w", err))
	}

	if s.db.Driver() == "postgres" {
		// Row lock on the calendar serializes writers from other processes.
		var id int64
		err := sqlTx.QueryRowContext(ctx, `SELECT id FROM calendars WHERE id = $1 FOR UPDATE`, calendarID).Scan(&id)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			_ = sqlTx.Rollback()
			return calendar.Persistence(fmt.Errorf("failed to lock calendar %d: %w", calendarID, err))
		}
	}

	if err := fn(&sqlTxWrapper{tx: sqlTx, rebind: s.rebind}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return calendar.Persistence(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return calendar.Persistence(err)
	}
	return nil
}

// Close closes the database and any resources registered with closeWith.
func (s *SQLStore) Close() error {
	errs := []error{s.db.Close()}
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func (s *SQLStore) closeWith(fn func() error) {
	s.closers = append(s.closers, fn)
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.db.Driver() != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type sqlTxWrapper struct {
	tx     *sql.Tx
	rebind func(string) string
}

func (t *sqlTxWrapper) GetCalendar(ctx context.Context, id int64) (calendar.Calendar, error) {
	return getCalendar(ctx, t.tx, t.rebind, id)
}

func (t *sqlTxWrapper) GetAppointment(ctx context.Context, id int64) (calendar.Appointment, error) {
	return getAppointment(ctx, t.tx, t.rebind, id)
}

func (t *sqlTxWrapper) QueryAppointments(ctx context.Context, q Query) ([]calendar.Appointment, error) {
	return queryAppointments(ctx, t.tx, t.rebind, q)
}

func (t *sqlTxWrapper) InsertAppointment(ctx context.Context, a calendar.Appointment) (calendar.Appointment, error) {
	q := t.rebind(`INSERT INTO appointments
		(calendar_id, title, start_at, end_at, status, priority, description, location, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := t.tx.QueryRowContext(ctx, q,
		a.CalendarID, a.Title, a.Start.Unix(), a.End.Unix(), string(a.Status), a.Priority,
		a.Description, a.Location, a.CreatedAt.Unix(), a.UpdatedAt.Unix(),
	).Scan(&a.ID)
	if err != nil {
		return calendar.Appointment{}, calendar.Persistence(fmt.Errorf("failed to insert appointment: %w", err))
	}
	return a, nil
}

func (t *sqlTxWrapper) SaveAppointment(ctx context.Context, a calendar.Appointment) error {
	q := t.rebind(`UPDATE appointments SET
		title = ?, start_at = ?, end_at = ?, status = ?, priority = ?,
		description = ?, location = ?, updated_at = ?
		WHERE id = ?`)
	res, err := t.tx.ExecContext(ctx, q,
		a.Title, a.Start.Unix(), a.End.Unix(), string(a.Status), a.Priority,
		a.Description, a.Location, a.UpdatedAt.Unix(), a.ID,
	)
	if err != nil {
		return calendar.Persistence(fmt.Errorf("failed to save appointment %d: %w", a.ID, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return calendar.Persistence(err)
	}
	if n == 0 {
		return calendar.NotFoundf("appointment %d", a.ID)
	}
	return nil
}

func getCalendar(ctx context.Context, db querier, rebind func(string) string, id int64) (calendar.Calendar, error) {
	row := db.QueryRowContext(ctx, rebind(`SELECT `+calendarColumns+` FROM calendars WHERE id = ?`), id)
	c, err := scanCalendar(row)
	if errors.Is(err, sql.ErrNoRows) {
		return calendar.Calendar{}, calendar.NotFoundf("calendar %d", id)
	}
	if err != nil {
		return calendar.Calendar{}, calendar.Persistence(err)
	}
	return c, nil
}

func getAppointment(ctx context.Context, db querier, rebind func(string) string, id int64) (calendar.Appointment, error) {
	row := db.QueryRowContext(ctx, rebind(`SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`), id)
	a, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return calendar.Appointment{}, calendar.NotFoundf("appointment %d", id)
	}
	if err != nil {
		return calendar.Appointment{}, calendar.Persistence(err)
	}
	return a, nil
}

func queryAppointments(ctx context.Context, db querier, rebind func(string) string, q Query) ([]calendar.Appointment, error) {
	where := []string{"calendar_id = ?"}
	args := []any{q.CalendarID}

	if !q.Start.IsZero() {
		where = append(where, "end_at > ?")
		args = append(args, q.Start.Unix())
	}
	if !q.End.IsZero() {
		where = append(where, "start_at < ?")
		args = append(args, q.End.Unix())
	}
	if q.MaxPriority > 0 {
		where = append(where, "priority <= ?")
		args = append(args, q.MaxPriority)
	}
	if q.ExcludeID != 0 {
		where = append(where, "id <> ?")
		args = append(args, q.ExcludeID)
	}
	if len(q.Statuses) > 0 {
		marks := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY start_at, id`

	rows, err := db.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, calendar.Persistence(fmt.Errorf("failed to query appointments: %w", err))
	}
	defer rows.Close()

	var out []calendar.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, calendar.Persistence(err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, calendar.Persistence(err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCalendar(row scanner) (calendar.Calendar, error) {
	var (
		c                calendar.Calendar
		created, updated int64
	)
	if err := row.Scan(&c.ID, &c.AgentID, &c.Name, &c.TimeZone, &created, &updated); err != nil {
		return calendar.Calendar{}, err
	}
	c.CreatedAt = fromUnix(created)
	c.UpdatedAt = fromUnix(updated)
	return c, nil
}

func scanAppointment(row scanner) (calendar.Appointment, error) {
	var (
		a                            calendar.Appointment
		start, end, created, updated int64
		status                       string
	)
	err := row.Scan(&a.ID, &a.CalendarID, &a.Title, &start, &end, &status, &a.Priority,
		&a.Description, &a.Location, &created, &updated)
	if err != nil {
		return calendar.Appointment{}, err
	}
	a.Start = fromUnix(start)
	a.End = fromUnix(end)
	a.Status = calendar.Status(status)
	a.CreatedAt = fromUnix(created)
	a.UpdatedAt = fromUnix(updated)
	return a, nil
}

func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
