package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/teemow/slotkeeper/internal/calendar"
)

// Locker serializes read-modify-write cycles on a calendar.
type Locker interface {
	// Lock blocks until the key is held or ctx is done. The returned function
	// releases the lock.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// CalendarLockKey is the lock key of a calendar.
func CalendarLockKey(calendarID int64) string {
	return fmt.Sprintf("calendar:%d", calendarID)
}

// LocalLocker is a keyed mutex for a single process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker creates a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, calendar.Persistence(fmt.Errorf("failed to acquire lock %s: %w", key, ctx.Err()))
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
