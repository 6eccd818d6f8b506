package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisTTL   = 30 * time.Second
	defaultRetryDelay = 25 * time.Millisecond
)

// Deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process talking to the same Redis.
type Redis struct {
	client     redis.UniversalClient
	ttl        time.Duration
	retryDelay time.Duration
	prefix     string
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithTTL bounds how long a crashed holder can keep a key locked.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

// WithRetryDelay sets the pause between acquisition attempts.
func WithRetryDelay(delay time.Duration) RedisOption {
	return func(r *Redis) {
		r.retryDelay = delay
	}
}

// WithPrefix sets the key prefix. Default is "prism:lock".
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client:     client,
		ttl:        defaultRedisTTL,
		retryDelay: defaultRetryDelay,
		prefix:     "prism:lock",
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Lock waits for key and holds it for at most the TTL; the token is not renewed. A mutation
// outliving the TTL is still caught by the repository's version check on Update.
func (r *Redis) Lock(ctx context.Context, key string) (Release, error) {
	redisKey := r.prefix + ":" + key
	token := uuid.NewString()

	for {
		acquired, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx failed: %w", err)
		}

		if acquired {
			break
		}

		timer := time.NewTimer(r.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()

			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}

	var (
		once   sync.Once
		relErr error
	)

	return func(ctx context.Context) error {
		once.Do(func() {
			deleted, err := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Int()
			switch {
			case err != nil:
				relErr = fmt.Errorf("redis release failed: %w", err)
			case deleted == 0:
				relErr = fmt.Errorf("release %s: %w", key, ErrNotHeld)
			}
		})

		return relErr
	}, nil
}
