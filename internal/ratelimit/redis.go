package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/franchiseos/leadhub/internal/config"
)

// RedisStore keeps windows as expiring counters so every hub instance sees
// the same totals.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisClient connects and pings the configured server.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := client.Ping(pingCtx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Incr counts one event in the current window. The expiry is (re)applied
// with NX on every call, so a counter whose TTL was lost to a failed EXPIRE
// or a crash between the two commands still resets. Needs Redis 7.0+.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	fullKey := s.prefix + "ratelimit:" + key
	n, err := s.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	if err := s.client.ExpireNX(ctx, fullKey, window).Err(); err != nil {
		return n, fmt.Errorf("redis expire: %w", err)
	}
	return n, nil
}
