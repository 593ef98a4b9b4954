package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the key's expiry only if it still holds our token
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis implements Locker with SET NX PX, shared across processes
type Redis struct {
	client *redis.Client
}

// NewRedis connects to redisURL and verifies the connection
func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Redis{client: client}, nil
}

// NewRedisWithClient creates a Locker from an existing Redis client
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Acquire takes key for ttl, failing with ErrLocked if it is already held
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return &Lease{
		Key: key,
		extend: func(ctx context.Context, ttl time.Duration) error {
			n, err := extendScript.Run(ctx, r.client, []string{key}, token, ttl.Milliseconds()).Int()
			if err != nil {
				return fmt.Errorf("extend lock %s: %w", key, err)
			}
			if n == 0 {
				return ErrLost
			}
			return nil
		},
		release: func(ctx context.Context) error {
			if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
				return fmt.Errorf("release lock %s: %w", key, err)
			}
			return nil
		},
	}, nil
}

// Close closes the Redis connection
func (r *Redis) Close() error {
	return r.client.Close()
}
