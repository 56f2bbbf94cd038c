package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
	// TTL - время жизни сессии; ключ продлевается при каждом Set.
	TTL time.Duration
}

type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis constructs a redis-backed session credential store.
func NewRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "detector:session:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}, nil
}

func (s *RedisStore) For(sessionID string) Provider {
	return &redisProvider{s: s, key: s.prefix + sessionID + ":" + Key}
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

type redisProvider struct {
	s   *RedisStore
	key string
}

func (p *redisProvider) Get(ctx context.Context) (string, error) {
	v, err := p.s.client.Get(ctx, p.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("credential get: %w", err)
	}
	return v, nil
}

func (p *redisProvider) Set(ctx context.Context, secret string) error {
	v, err := normalize(secret)
	if err != nil {
		return err
	}
	if err := p.s.client.Set(ctx, p.key, v, p.s.ttl).Err(); err != nil {
		return fmt.Errorf("credential set: %w", err)
	}
	return nil
}

func (p *redisProvider) Clear(ctx context.Context) error {
	if err := p.s.client.Del(ctx, p.key).Err(); err != nil {
		return fmt.Errorf("credential clear: %w", err)
	}
	return nil
}
