// Package lock keeps two reconciliation runs from executing at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"booking-reconciler/internal/domain"
	"booking-reconciler/internal/logger"
)

// ReleaseFunc gives a held lock back.
type ReleaseFunc func(ctx context.Context) error

type RunLocker interface {
	// Acquire returns domain.ErrRunInProgress when another holder owns key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
}

type redisLocker struct {
	client *redislock.Client
}

// NewRedisLocker shares the lock across every process pointed at the same
// Redis, so a cron pod and an admin trigger on the API pod exclude each other.
func NewRedisLocker(rdb redis.UniversalClient) RunLocker {
	return &redisLocker{client: redislock.New(rdb)}
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	lk, err := l.client.Obtain(ctx, "lock:"+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%s: %w", key, domain.ErrRunInProgress)
	}
	if err != nil {
		logger.ExternalServiceResult("redis", "obtain_lock", err, "key", key)
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	logger.ExternalServiceResult("redis", "obtain_lock", nil, "key", key, "ttl", ttl.String())
	return func(ctx context.Context) error {
		err := lk.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			logger.Warn("Run lock expired before release", "key", key)
			return nil
		}
		return err
	}, nil
}

type localLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocalLocker only excludes runs within this process. Used when no Redis
// address is configured.
func NewLocalLocker() RunLocker {
	return &localLocker{held: make(map[string]time.Time), now: time.Now}
}

func (l *localLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if expires, ok := l.held[key]; ok && l.now().Before(expires) {
		return nil, fmt.Errorf("%s: %w", key, domain.ErrRunInProgress)
	}
	expires := l.now().Add(ttl)
	l.held[key] = expires
	return func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(expires) {
			delete(l.held, key)
		}
		return nil
	}, nil
}
