package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// NewRedisStorage connects to Redis, retrying with exponential backoff until
// maxWait elapses so the service can start before its Redis is ready.
func NewRedisStorage(ctx context.Context, addr string, maxWait time.Duration) (*redis.Client, error) {
	conn := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxWait

	err := backoff.Retry(func() error {
		return conn.Ping(ctx).Err()
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return conn, nil
}
