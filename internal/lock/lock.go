// Package lock serialises rollup appends across processes.
//
// The rollup table's primary key already makes a duplicate append a no-op;
// a Locker additionally keeps two schedulers from computing the same day at
// once. Without a Redis address the Nop locker is used.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another holder owns the lock past the wait budget.
var ErrHeld = errors.New("lock: held by another process")

// Release frees an obtained lock.
type Release func(ctx context.Context) error

// Locker obtains a named exclusive lock.
type Locker interface {
	Obtain(ctx context.Context, key string) (Release, error)
}

// Nop always succeeds immediately.
type Nop struct{}

// Obtain implements Locker.
func (Nop) Obtain(context.Context, string) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

// obtainer is the subset of *redislock.Client used here.
type obtainer interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// Redis is a Locker backed by bsm/redislock.
type Redis struct {
	client obtainer
	rdb    *redis.Client

	// TTL bounds how long a crashed holder can block others.
	TTL time.Duration
	// Wait is the total time spent retrying before giving up with ErrHeld.
	Wait time.Duration
	// Prefix namespaces keys ("salesrollup:lock:" by default).
	Prefix string
}

// NewRedis connects to addr and verifies it with PING.
func NewRedis(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("lock: redis ping %s: %w", addr, err)
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{
		client: redislock.New(rdb),
		rdb:    rdb,
		TTL:    ttl,
		Wait:   30 * time.Second,
		Prefix: "salesrollup:lock:",
	}, nil
}

// Key returns the namespaced Redis key for name.
func (r *Redis) Key(name string) string {
	prefix := r.Prefix
	if prefix == "" {
		prefix = "salesrollup:lock:"
	}
	return prefix + name
}

// Obtain implements Locker. It retries with linear backoff until Wait elapses.
func (r *Redis) Obtain(ctx context.Context, key string) (Release, error) {
	wait := r.Wait
	if wait <= 0 {
		wait = 30 * time.Second
	}
	backoff := 250 * time.Millisecond
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(backoff), int(wait/backoff)),
	}

	l, err := r.client.Obtain(ctx, r.Key(key), r.TTL, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrHeld, key)
	}
	if err != nil {
		return nil, fmt.Errorf("lock: obtain %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		if err := l.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("lock: release %s: %w", key, err)
		}
		return nil
	}, nil
}

// Close closes the underlying Redis connection.
func (r *Redis) Close() error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}

var (
	_ Locker = Nop{}
	_ Locker = (*Redis)(nil)
)
