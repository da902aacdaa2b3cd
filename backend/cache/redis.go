package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"evalsurvey/backend/config"
	"evalsurvey/backend/models"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix     = "evalsurvey:tree:"
	redisGenerationKey = "evalsurvey:tree-generation"
)

// RedisStore shares the cached tree between API replicas.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(cfg *config.Config) (*RedisStore, error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb, ttl: cfg.TreeCacheTTL}, nil
}

func redisKey(gen uint64, key string) string {
	return redisKeyPrefix + strconv.FormatUint(gen, 10) + ":" + key
}

// Generation is shared by every replica, so a load that raced an
// invalidation on another replica writes a key nobody reads again.
func (s *RedisStore) Generation(ctx context.Context) (uint64, error) {
	gen, err := s.rdb.Get(ctx, redisGenerationKey).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (s *RedisStore) Get(ctx context.Context, gen uint64, key string) ([]models.Domain, bool, error) {
	raw, err := s.rdb.Get(ctx, redisKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var tree []models.Domain
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, false, fmt.Errorf("decode cached tree: %w", err)
	}
	return tree, true, nil
}

func (s *RedisStore) Set(ctx context.Context, gen uint64, key string, tree []models.Domain) error {
	raw, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, redisKey(gen, key), raw, s.ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Incr(ctx, redisGenerationKey).Err(); err != nil {
		return err
	}
	iter := s.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
