// Package lock serializes mutations of transactions across processes with
// Redis locks.
package lock

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/etnz/tradebook"
)

// DefaultExpiry is how long a lock is held at most if its owner never
// releases it.
const DefaultExpiry = 10 * time.Second

// Redis is a tradebook.Locker backed by redsync.
type Redis struct {
	rs     *redsync.Redsync
	expiry time.Duration
	logger *zap.Logger
}

// Option configures a Redis locker.
type Option func(*Redis)

// WithExpiry sets the lock expiry.
func WithExpiry(d time.Duration) Option { return func(r *Redis) { r.expiry = d } }

// WithLogger sets the logger. Default is no logging.
func WithLogger(l *zap.Logger) Option { return func(r *Redis) { r.logger = l } }

// New returns a locker using client.
func New(client goredislib.UniversalClient, opts ...Option) *Redis {
	r := &Redis{
		rs:     redsync.New(goredis.NewPool(client)),
		expiry: DefaultExpiry,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dial connects to the Redis server at addr and checks it answers.
func Dial(ctx context.Context, addr string, opts ...Option) (*Redis, error) {
	client := goredislib.NewClient(&goredislib.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cannot reach redis at %s: %w", addr, err)
	}
	return New(client, opts...), nil
}

// TryLock implements tradebook.Locker. Keys are acquired in order, each with a
// single attempt. If one is busy, those already acquired are released and the
// error wraps tradebook.ErrLocked.
func (r *Redis) TryLock(ctx context.Context, keys ...string) (func(), error) {
	keys = slices.Compact(slices.Sorted(slices.Values(keys)))
	held := make([]*redsync.Mutex, 0, len(keys))
	release := func() {
		for _, m := range held {
			if ok, err := m.Unlock(); !ok || err != nil {
				r.logger.Warn("failed to release lock", zap.String("lock_key", m.Name()), zap.Bool("unlock_ok", ok), zap.Error(err))
			}
		}
	}
	for _, key := range keys {
		m := r.rs.NewMutex(key, redsync.WithExpiry(r.expiry), redsync.WithTries(1))
		if err := m.LockContext(ctx); err != nil {
			release()
			if contended(err) {
				r.logger.Debug("lock already held", zap.String("lock_key", key))
				return nil, fmt.Errorf("%s: %w", key, tradebook.ErrLocked)
			}
			return nil, fmt.Errorf("cannot acquire lock %s: %w", key, err)
		}
		held = append(held, m)
	}
	r.logger.Debug("locks acquired", zap.Strings("lock_keys", keys))

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// contended tells a busy lock from a failure to talk to Redis.
func contended(err error) bool {
	return errors.Is(err, redsync.ErrFailed) || strings.Contains(err.Error(), "lock already taken")
}
