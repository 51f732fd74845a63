// Package redispkg provides Redis client setup.
package redispkg

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrEmptyURL indicates that no Redis URL was configured.
var ErrEmptyURL = errors.New("redis url is required")

// Setup configures a Redis client from url and verifies connectivity.
func Setup(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
