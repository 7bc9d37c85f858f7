package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock calls are tiny; fail fast rather than hold a webhook request open.
const (
	LockClientName   = "possync-locks"
	LockDialTimeout  = 3 * time.Second
	LockReadTimeout  = time.Second
	LockWriteTimeout = time.Second
)

// NewRedisClient connects the client used for per-record sync locks.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis URL: %w", err)
	}
	opts.ClientName = LockClientName
	opts.DialTimeout = LockDialTimeout
	opts.ReadTimeout = LockReadTimeout
	opts.WriteTimeout = LockWriteTimeout

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error pinging redis: %w", err)
	}

	return client, nil
}
