package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"

	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/pkg/logger"
)

// ErrLocked is returned by a Locker when another worker holds the lock.
var ErrLocked = errors.New("sync already running")

// Locker serializes syncs of one restaurant and vendor across workers.
type Locker interface {
	Lock(ctx context.Context, vendor domain.POSSystem, restaurantID string) (unlock func(), err error)
}

// noLocker lets every sync run. Concurrent syncs are still safe because
// ledger writes resolve identity conflicts in the database.
type noLocker struct{}

func (noLocker) Lock(context.Context, domain.POSSystem, string) (func(), error) {
	return func() {}, nil
}

// RedisLocker holds a Redis lock for the duration of a sync. The lease is
// extended every third of its ttl until the sync unlocks.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewRedisLocker creates a locker. ttl bounds how long a crashed worker can
// block a tenant.
func NewRedisLocker(client *redislock.Client, ttl time.Duration, log *logger.Logger) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, logger: log.WithComponent("sync-lock")}
}

func lockKey(vendor domain.POSSystem, restaurantID string) string {
	return fmt.Sprintf("sync:%s:%s", vendor, restaurantID)
}

// Lock obtains the lock without waiting.
func (l *RedisLocker) Lock(ctx context.Context, vendor domain.POSSystem, restaurantID string) (func(), error) {
	key := lockKey(vendor, restaurantID)
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.keepAlive(context.WithoutCancel(ctx), lock, key, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			_ = lock.Release(context.WithoutCancel(ctx))
		})
	}, nil
}

func (l *RedisLocker) keepAlive(ctx context.Context, lock *redislock.Lock, key string, stop <-chan struct{}) {
	interval := l.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := lock.Refresh(ctx, l.ttl, nil); err != nil {
				// another worker may start the same sync once the lease lapses
				l.logger.Warn().Err(err).Str("lock", key).Msg("failed to extend sync lock")
				return
			}
		}
	}
}
