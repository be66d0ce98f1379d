package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"github.com/google/uuid"

	"github.com/teemow/slotkeeper/internal/calendar"
	"github.com/teemow/slotkeeper/internal/config"
)

const (
	defaultRedisAddr     = "localhost:6379"
	defaultRedisPoolSize = 10
	redisPingTimeout     = 5 * time.Second
	redisReleaseTimeout  = 5 * time.Second
)

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(cfg config.Lock) (*redis.Client, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = defaultRedisAddr
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: defaultRedisPoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// RedisLocker coordinates calendar locks between replicas sharing one
// database. Locks expire after the configured TTL when a holder dies.
type RedisLocker struct {
	rs     *redsync.Redsync
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

// NewRedisLocker creates a RedisLocker on top of a connected client.
func NewRedisLocker(client *redis.Client, cfg config.Lock, logger *slog.Logger) *RedisLocker {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	retry := cfg.RetryInterval
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		prefix: cfg.KeyPrefix,
		ttl:    ttl,
		retry:  retry,
		logger: logger,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	name := fmt.Sprintf("%slock:%s", l.prefix, key)

	// Keep retrying for up to one TTL; ctx cancels earlier.
	tries := int(l.ttl/l.retry) + 1

	mutex := l.rs.NewMutex(name,
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(tries),
		redsync.WithRetryDelay(l.retry),
		redsync.WithGenValueFunc(func() (string, error) {
			return uuid.NewString(), nil
		}),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return nil, calendar.Persistence(fmt.Errorf("failed to acquire lock %s: %w", key, err))
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), redisReleaseTimeout)
		defer cancel()
		if ok, err := mutex.UnlockContext(releaseCtx); err != nil || !ok {
			l.logger.Warn("failed to release calendar lock",
				slog.String("key", key),
				slog.Bool("released", ok),
				slog.Any("error", err))
		}
	}, nil
}
