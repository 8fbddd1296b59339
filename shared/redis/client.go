package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Connect initializes a Redis client from a redis:// URL or a host:port
// address and verifies it with a ping.
func Connect(ctx context.Context, redisURL string, logger *slog.Logger) (*goredis.Client, error) {
	var client *goredis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := goredis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = goredis.NewClient(opt)
	} else {
		client = goredis.NewClient(&goredis.Options{Addr: redisURL})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("Successfully connected to Redis",
		slog.String("addr", client.Options().Addr),
	)

	return client, nil
}
