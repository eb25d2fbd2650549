package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticket-marketplace/monitoring"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RegistrationLocker serializes webhook invocations that mutate the same
// registration. Acquire returns a release func; on failure it returns a no-op
// release and lets the caller proceed, since the conditional updates in the
// store remain safe without the lease.
type RegistrationLocker interface {
	Acquire(ctx context.Context, registrationID string) func()
}

type RedisLocker struct {
	locker *redislock.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		locker: redislock.New(client),
		ttl:    ttl,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, registrationID string) func() {
	key := fmt.Sprintf("reg-lease:%s", registrationID)

	lock, err := l.locker.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
	})
	if err != nil {
		slog.Warn("could not obtain registration lease, relying on conditional updates",
			"registration_id", registrationID,
			"error", err)
		monitoring.TrackLeaseFailure()
		return func() {}
	}

	return func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			slog.Warn("failed to release registration lease",
				"registration_id", registrationID,
				"error", err)
		}
	}
}

// NopLocker satisfies RegistrationLocker without locking.
type NopLocker struct{}

func (NopLocker) Acquire(ctx context.Context, registrationID string) func() {
	return func() {}
}
