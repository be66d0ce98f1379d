package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teemow/slotkeeper/internal/config"
)

// New builds the store selected by cfg.Database, runs pending migrations and
// attaches the configured calendar locker.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Database.Driver == config.DriverMemory {
		logger.Info("Using in-memory appointment store")
		return NewMemoryStore(), nil
	}

	db, err := Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	var locker Locker
	var closeLocker func() error
	switch cfg.Lock.Backend {
	case config.LockRedis:
		rdb, err := NewRedisClient(cfg.Lock)
		if err != nil {
			db.Close()
			return nil, err
		}
		locker = NewRedisLocker(rdb, cfg.Lock, logger)
		closeLocker = rdb.Close
		logger.Info("Using Redis calendar locks", "addr", cfg.Lock.RedisAddr)
	case config.LockLocal, "":
		locker = NewLocalLocker()
	default:
		db.Close()
		return nil, fmt.Errorf("unsupported lock backend: %s", cfg.Lock.Backend)
	}

	s := NewSQLStore(db, locker)
	if closeLocker != nil {
		s.closeWith(closeLocker)
	}
	logger.Info("Opened appointment store", "driver", db.Driver())
	return s, nil
}
