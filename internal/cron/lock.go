package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 10 * time.Minute

// ErrLockLost means the lock expired and another holder took it before the
// run finished.
var ErrLockLost = errors.New("cron lock lost before release")

// Unlock releases a lock obtained from TryLock.
type Unlock func(ctx context.Context) error

// Lock gives one replica at a time the right to run a cycle.
type Lock interface {
	TryLock(ctx context.Context) (Unlock, bool, error)
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(name string) string
}

// RedisLock is a SET NX lock with a TTL. A crashed holder frees it when the
// TTL runs out.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
}

func NewRedisLock(store lockStore, name string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("lock store required")
	case name == "":
		return nil, errors.New("lock name required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: store.LockKey(name), ttl: ttl}, nil
}

// TryLock never blocks. The returned Unlock only deletes the key while it
// still holds this call's token.
func (l *RedisLock) TryLock(ctx context.Context) (Unlock, bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func(ctx context.Context) error {
		current, err := l.store.Get(ctx, l.key)
		switch {
		case errors.Is(err, redis.Nil):
			return ErrLockLost
		case err != nil:
			return fmt.Errorf("read %s: %w", l.key, err)
		case current != token:
			return ErrLockLost
		}
		return l.store.Del(ctx, l.key)
	}, true, nil
}
