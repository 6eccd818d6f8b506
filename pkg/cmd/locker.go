package cmd

import (
	"context"
	"fmt"

	"github.com/prismpsa/prism-workflow/pkg/lock"
	"github.com/redis/go-redis/v9"
)

// NewLocker returns an in-process locker when redisURL is empty and a Redis locker otherwise.
// The returned close function releases the Redis client.
func NewLocker(ctx context.Context, redisURL string) (lock.Locker, func() error, error) {
	if redisURL == "" {
		return lock.NewMemory(), func() error { return nil }, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return lock.NewRedis(client), client.Close, nil
}
