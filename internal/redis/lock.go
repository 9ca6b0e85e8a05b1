package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("slot lock not acquired")
)

// Locker guards booking critical sections per slot.
type Locker interface {
	WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisSlotLocker creates a locker that uses a per slot Redis key. The lock is not
// waited for: a held key fails fast with ErrLockNotAcquired.
func NewRedisSlotLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisSlotLocker{
		client: client,
		ttl:    ttl,
		prefix: "clinic:lock:slot:",
	}
}

func (l *redisSlotLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	key := l.prefix + slotID.String()
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire slot lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		// Release even if the request context is already cancelled
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

// LocalSlotLocker is a single-process Locker with the same fail-fast semantics, used when
// the service runs without Redis.
type LocalSlotLocker struct {
	mu   sync.Mutex
	held map[uuid.UUID]struct{}
}

func NewLocalSlotLocker() *LocalSlotLocker {
	return &LocalSlotLocker{held: make(map[uuid.UUID]struct{})}
}

func (l *LocalSlotLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if _, busy := l.held[slotID]; busy {
		l.mu.Unlock()
		return ErrLockNotAcquired
	}
	l.held[slotID] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, slotID)
		l.mu.Unlock()
	}()

	return fn(ctx)
}
