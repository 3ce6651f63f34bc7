// Package redis implements the persistent token backend on top of Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AnnaKryuchkova/product-console/internal/config"
	"github.com/AnnaKryuchkova/product-console/internal/errs"
)

const defaultTimeout = 5 * time.Second

// Connect dials cfg.Addr and pings it so a wrong address fails at startup.
// cfg.Timeout bounds the dial, every command and the ping.
func Connect(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (*redis.Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	if err := ping(ctx, client, timeout); err != nil {
		_ = client.Close()
		log.Warn("redis unreachable", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB), zap.Error(err))
		return nil, err
	}
	log.Info("redis connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB), zap.String("prefix", cfg.Prefix))
	return client, nil
}

func ping(ctx context.Context, c redis.Cmdable, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Store keeps values under <prefix><key> with no expiry.
type Store struct {
	client redis.Cmdable
	prefix string
}

// NewStore wraps a Redis client (or any Cmdable, e.g. a mock).
func NewStore(client redis.Cmdable, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return b, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
