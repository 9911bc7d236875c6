package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/wa-relay/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects the limiter/cache backend. It returns (nil, nil)
// when no address is configured so callers can run without Redis.
func NewRedisClient(c config.RedisConfig) (*redis.Client, error) {
	if c.Addr == "" {
		return nil, nil
	}
	dial := c.DialTimeout
	if dial <= 0 {
		dial = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        c.Addr,
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: dial,
	})
	ctx, cancel := context.WithTimeout(context.Background(), dial)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", c.Addr, err)
	}

	return rdb, nil
}
