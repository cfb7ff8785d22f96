package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/amirasaad/ledgersync/pkg/cache"
	"github.com/amirasaad/ledgersync/pkg/config"
	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to the configured Redis and pings it.
func NewRedisClient(ctx context.Context, cfg *config.Redis) (*redis.Client, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("redis: url is required")
	}
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opt.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opt.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opt.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opt.WriteTimeout = cfg.WriteTimeout
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis connection failed: %v", domain.ErrTransport, err)
	}
	return client, nil
}

// RedisHashStore implements cache.HashStore with Redis hashes.
type RedisHashStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisHashStore stores every key under prefix + ":".
func NewRedisHashStore(client *redis.Client, prefix string, logger *slog.Logger) *RedisHashStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisHashStore{client: client, prefix: prefix, logger: logger.With("component", "redis-hash-store")}
}

func (r *RedisHashStore) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func transportErr(op, key string, err error) error {
	return fmt.Errorf("%w: redis %s %s: %v", domain.ErrTransport, op, key, err)
}

func (r *RedisHashStore) GetField(ctx context.Context, key, field string) (string, bool, error) {
	val, err := r.client.HGet(ctx, r.key(key), field).Result()
	if errors.Is(err, redis.Nil) {
		r.logger.Debug("Redis hash miss", "key", key, "field", field)
		return "", false, nil
	}
	if err != nil {
		r.logger.Error("Redis hash get error", "key", key, "error", err)
		return "", false, transportErr("HGET", key, err)
	}
	return val, true, nil
}

func (r *RedisHashStore) GetAll(ctx context.Context, key string) (map[string]string, error) {
	vals, err := r.client.HGetAll(ctx, r.key(key)).Result()
	if err != nil {
		r.logger.Error("Redis hash getall error", "key", key, "error", err)
		return nil, transportErr("HGETALL", key, err)
	}
	return vals, nil
}

func (r *RedisHashStore) PutAll(ctx context.Context, key string, fields map[string]string) error {
	if err := r.client.HSet(ctx, r.key(key), toArgs(fields)...).Err(); err != nil {
		r.logger.Error("Redis hash put error", "key", key, "error", err)
		return transportErr("HSET", key, err)
	}
	return nil
}

// Replace runs DEL and HSET in one MULTI/EXEC so readers never see a partial hash.
func (r *RedisHashStore) Replace(ctx context.Context, key string, fields map[string]string) error {
	k := r.key(key)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		if len(fields) > 0 {
			pipe.HSet(ctx, k, toArgs(fields)...)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Redis hash replace error", "key", key, "error", err)
		return transportErr("MULTI", key, err)
	}
	return nil
}

func (r *RedisHashStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		r.logger.Error("Redis hash delete error", "key", key, "error", err)
		return transportErr("DEL", key, err)
	}
	return nil
}

func toArgs(fields map[string]string) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

var _ cache.HashStore = (*RedisHashStore)(nil)
