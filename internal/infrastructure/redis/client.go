package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/dbakare/gromart/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
)

// NewClient connects to Redis and verifies the connection with retries.
// The same client backs the job queue, the per-order locks and the webhook
// rate limiter.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	})

	attempts := cfg.ConnectRetries
	if attempts <= 0 {
		attempts = 5
	}
	delay := cfg.ConnectRetryDelay
	if delay <= 0 {
		delay = 1 * time.Second
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		if i < attempts {
			select {
			case <-time.After(time.Duration(i) * delay):
			case <-ctx.Done():
				client.Close()
				return nil, ctx.Err()
			}
		}
	}

	client.Close()
	return nil, fmt.Errorf("redis unreachable after %d attempts: %w", attempts, lastErr)
}
