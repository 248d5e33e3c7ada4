package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lmejias/vidsift/pkg/config"
	"github.com/lmejias/vidsift/pkg/logging"
)

// lockTTL bounds how long a crashed worker can hold a lock
const lockTTL = 30 * time.Minute

// releaseScript deletes the key only if this holder still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker grants locks via SET NX so workers on different hosts can
// coordinate. Held locks expire after a TTL in case the holder crashes.
type RedisLocker struct {
	client *redis.Client
	logger *logging.Logger
}

// NewRedisLocker connects to redis and verifies the connection
func NewRedisLocker(cfg config.LockConfig, logger *logging.Logger) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	return &RedisLocker{client: client, logger: logger}, nil
}

// NewRedisLockerFromClient wraps an existing redis client
func NewRedisLockerFromClient(client *redis.Client, logger *logging.Logger) *RedisLocker {
	return &RedisLocker{client: client, logger: logger}
}

// Acquire sets the lock key if absent. Returns ErrLockHeld if another
// holder owns it.
func (rl *RedisLocker) Acquire(ctx context.Context, key string) (Lock, error) {
	holder := uuid.NewString()
	ok, err := rl.client.SetNX(ctx, key, holder, lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrLockHeld)
	}

	rl.logger.Debug("lock acquired", map[string]interface{}{"key": key})
	return &redisLock{client: rl.client, key: key, holder: holder}, nil
}

type redisLock struct {
	client   *redis.Client
	key      string
	holder   string
	released bool
}

// Release deletes the key if this holder still owns it
func (l *redisLock) Release() error {
	if l.released {
		return nil
	}
	l.released = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.holder).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	return nil
}
