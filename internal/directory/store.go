package directory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmehdipour/wa-relay/internal/model"
	"github.com/jmehdipour/wa-relay/internal/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache is the read-through cache in front of the tenants table.
// Get returns (nil, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Store looks tenants up in MySQL, optionally through a cache. Only hits are
// cached so a newly provisioned tenant is visible on its first event. A
// tenant deactivated in MySQL keeps resolving until its cache entry expires,
// so ttl bounds how long a deactivation takes to apply.
type Store struct {
	repo  repository.TenantsRepository
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

var _ Lookup = (*Store)(nil)

// NewStore builds a Store. cache may be nil; ttl <= 0 also disables caching.
func NewStore(repo repository.TenantsRepository, cache Cache, ttl time.Duration, log *zap.Logger) *Store {
	if ttl <= 0 {
		cache = nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{repo: repo, cache: cache, ttl: ttl, log: log}
}

func cacheKey(routingKey string) string { return "tenant:" + routingKey }

func (s *Store) Lookup(ctx context.Context, routingKey string) (*model.Tenant, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheKey(routingKey)); err != nil {
			s.log.Debug("tenant cache get failed", zap.String("phone_number_id", routingKey), zap.Error(err))
		} else if raw != nil {
			var t model.Tenant
			if err := json.Unmarshal(raw, &t); err == nil {
				return &t, nil
			}
		}
	}

	t, err := s.repo.GetActiveByRoutingKey(ctx, routingKey)
	if err != nil || t == nil {
		return t, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(t); err == nil {
			if err := s.cache.Set(ctx, cacheKey(routingKey), raw, s.ttl); err != nil {
				s.log.Debug("tenant cache set failed", zap.String("phone_number_id", routingKey), zap.Error(err))
			}
		}
	}
	return t, nil
}

// RedisCache adapts go-redis to Cache.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, val, ttl).Err()
}
