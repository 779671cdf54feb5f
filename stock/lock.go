package stock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix     = "catalog:stock:lock:"
	lockRetryInterval = 50 * time.Millisecond
	lockTTL           = 10 * time.Second
)

// EntityLocker 以 SKU 為粒度序列化庫存異動：同一個 SKU 的操作互斥，
// 不同 SKU 之間完全不互相等待
type EntityLocker interface {
	// Acquire blocks until the lock for key is held, the context is done, or
	// the wait timeout expires. The returned function releases the lock.
	Acquire(ctx context.Context, key string) (func(), error)
}

// KeyedLock is an in-process EntityLocker backed by one mutex per key.
// It serializes stock operations within a single instance; multi-instance
// deployments should use RedisLock instead.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
	wait  time.Duration
}

func NewKeyedLock(wait time.Duration) *KeyedLock {
	return &KeyedLock{
		locks: make(map[string]chan struct{}),
		wait:  wait,
	}
}

func (l *KeyedLock) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire lock for %s: %w", key, ctx.Err())
	case <-timer.C:
		return nil, fmt.Errorf("acquire lock for %s: %w", key, ErrLockTimeout)
	}
}

// releaseScript 只在持有者 token 相符時刪除鎖，避免釋放到別人的鎖
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLock is an EntityLocker backed by Redis SET NX, for deployments where
// more than one instance mutates the same stock rows.
type RedisLock struct {
	client *redis.Client
	wait   time.Duration
}

func NewRedisLock(client *redis.Client, wait time.Duration) *RedisLock {
	return &RedisLock{
		client: client,
		wait:   wait,
	}
}

func (l *RedisLock) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := lockKeyPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock for %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("acquire lock for %s: %w", key, ErrLockTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock for %s: %w", key, ctx.Err())
		case <-time.After(lockRetryInterval):
		}
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{lockKey}, token).Err()
	}
	return release, nil
}
