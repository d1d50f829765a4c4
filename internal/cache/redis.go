package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the shared-store implementation, for deployments that want cache
// coherency across instances. Errors degrade to cache misses.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedis(cfg RedisConfig, ttl time.Duration, log *slog.Logger) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	if log == nil {
		log = slog.Default()
	}

	return &Redis{rdb: rdb, ttl: ttl, log: log}
}

// Ping checks redis connectivity, for startup diagnostics.
func (c *Redis) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Redis) Close() error {
	return c.rdb.Close()
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.rdb.Get(ctx, key).Bytes()

	if err != nil {
		if err != redis.Nil {
			c.log.Debug("redis get failed", "err", err)
		}

		return nil, false
	}

	return val, true
}

func (c *Redis) Set(ctx context.Context, key string, val []byte) {
	if err := c.rdb.Set(ctx, key, val, c.ttl).Err(); err != nil {
		c.log.Debug("redis set failed", "err", err)
	}
}

func (c *Redis) Delete(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		c.log.Debug("redis del failed", "err", err)
	}
}
