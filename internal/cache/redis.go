package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mgate/internal/config"
	"mgate/internal/logger"
)

// RedisLimiter backs the inbound fixed-window rate limit with Redis so a
// multi-instance deployment shares one budget per client. Optional: when no
// Redis address is configured the middleware keeps windows in memory.
type RedisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter connects to Redis and verifies the connection.
func NewRedisLimiter(cfg *config.RedisConfig) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("redis rate-limit backend connected")
	return &RedisLimiter{client: client}, nil
}

// Allow increments the fixed window counter for key and reports whether this
// request is within limit. The window key expires on its own so idle clients
// cost nothing.
func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	bucket := fmt.Sprintf("ratelimit:%s:%d", key, time.Now().Unix()/int64(window.Seconds()))

	count, err := r.client.Incr(ctx, bucket).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, bucket, window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(limit), nil
}

// Close releases the connection pool.
func (r *RedisLimiter) Close() error {
	return r.client.Close()
}
