package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/diewo77/go-conventions/internal/logger"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
)

// Options configures RedisLocker.
type Options struct {
	// Expiry is how long the lock is held before auto-expiring.
	Expiry      time.Duration
	Tries       int
	RetryDelay  time.Duration
	DriftFactor float64
}

// DefaultOptions suits the short transactions of the convention services.
func DefaultOptions() Options {
	return Options{
		Expiry:      10 * time.Second,
		Tries:       3,
		RetryDelay:  500 * time.Millisecond,
		DriftFactor: 0.01,
	}
}

// RedisLocker is a distributed Locker backed by redsync.
type RedisLocker struct {
	rs   *redsync.Redsync
	opts Options
	log  *logger.Logger
}

// NewRedisLocker builds a locker on an existing go-redis client.
func NewRedisLocker(client goredislib.UniversalClient, opts Options, log *logger.Logger) *RedisLocker {
	return &RedisLocker{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
		log:  logger.OrNop(log).Component("lock"),
	}
}

// WithLock acquires key, runs fn and releases the lock even when fn fails.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	mutex := l.rs.NewMutex(
		key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
		redsync.WithDriftFactor(l.opts.DriftFactor),
	)
	if err := mutex.LockContext(ctx); err != nil {
		l.log.Warn("lock acquisition failed", "key", key, "error", err)
		return fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, err)
	}
	defer func() {
		if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); !ok || err != nil {
			l.log.Error("lock release failed", "key", key, "ok", ok, "error", err)
		}
	}()
	return fn()
}
