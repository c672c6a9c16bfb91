// Package lock serializes work on a single gift card or order.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"giftledger/internal/cache"
)

// ErrNotAcquired is returned when the lock could not be taken before ctx ended.
var ErrNotAcquired = errors.New("lock: not acquired")

// Locker grants exclusive access keyed by card or order id. Ids are uuids, so
// the two never collide.
// The returned release func must be called on every exit path.
type Locker interface {
	Lock(ctx context.Context, key uuid.UUID) (release func(), err error)
}

// MutexLocker keeps one channel-backed mutex per key for the life of the process.
type MutexLocker struct {
	mutexes sync.Map
}

// NewMutexLocker creates an in-process locker.
func NewMutexLocker() *MutexLocker {
	return &MutexLocker{}
}

// getMutex returns the mutex for a specific ID.
func (l *MutexLocker) getMutex(key uuid.UUID) chan struct{} {
	value, _ := l.mutexes.LoadOrStore(key.String(), make(chan struct{}, 1))
	return value.(chan struct{})
}

// Lock blocks until the key is free or ctx is done.
func (l *MutexLocker) Lock(ctx context.Context, key uuid.UUID) (func(), error) {
	mu := l.getMutex(key)
	select {
	case mu <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-mu }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrNotAcquired, ctx.Err())
	}
}

// RedisLocker takes a token lock in Redis so several processes serialize on the same card.
type RedisLocker struct {
	client *cache.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker creates a distributed locker. ttl bounds how long a crashed holder blocks others.
func NewRedisLocker(client *cache.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 25 * time.Millisecond}
}

// Lock polls until the key is free or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key uuid.UUID) (func(), error) {
	name := "lock:" + key.String()
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.TryLock(ctx, name, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("lock: acquire %s: %w", name, err)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					// release must outlive a cancelled request context
					releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
					defer cancel()
					_ = l.client.Unlock(releaseCtx, name, token)
				})
			}, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrNotAcquired, ctx.Err())
		}
	}
}
