// Package lock serializes power operations across opencraft replicas.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another power operation holds the lock.
var ErrLocked = errors.New("another power operation is in progress")

// Locker hands out a mutually exclusive lease on a key.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// Only the holder's token may delete the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX. The TTL bounds how long a
// crashed holder can block other operations.
type RedisLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisLocker connects to Redis and returns a locker.
func NewRedisLocker(redisURL string, ttl time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisLocker{rdb: rdb, ttl: ttl, prefix: "opencraft:lock:"}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	token := uuid.NewString()
	fullKey := l.prefix + key

	ok, err := l.rdb.SetNX(ctx, fullKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SETNX %s failed: %w", fullKey, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.rdb, []string{fullKey}, token).Err(); err != nil {
			return fmt.Errorf("redis release %s failed: %w", fullKey, err)
		}
		return nil
	}
	return release, nil
}

// Close closes the Redis connection.
func (l *RedisLocker) Close() error {
	return l.rdb.Close()
}
