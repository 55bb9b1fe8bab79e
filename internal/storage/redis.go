package storage

import (
	"context"
	"fmt"

	"oauth2-client/internal/common/errors"
	"oauth2-client/internal/common/utils"
	"oauth2-client/internal/oauth2"
	"oauth2-client/internal/redis"
)

// RedisConfig selects the shared Redis store.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	PoolSize int
	// Prefix namespaces every key. Defaults to "oauth2:".
	Prefix string
	Clock  utils.Clock
}

func (c *RedisConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("redis address is required")
	}
	if c.DB < 0 {
		return fmt.Errorf("redis db must not be negative, got %d", c.DB)
	}
	return nil
}

func (c *RedisConfig) GetType() string { return "redis" }

type redisStorage struct {
	*oauth2.RedisStore
	client *redis.Client
}

func (s *redisStorage) Close() error {
	return s.client.Close()
}

func (s *redisStorage) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

type redisFactory struct{}

func (f *redisFactory) Create(config StorageConfig) (Storage, error) {
	cfg, ok := config.(*RedisConfig)
	if !ok {
		return nil, invalidConfigType("redis", config)
	}

	client, err := redis.NewClient(&redis.Config{
		Address:  cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err != nil {
		return nil, errors.ConnectionError("redis store unavailable", err)
	}

	store := oauth2.NewRedisStore(client.Redis(), cfg.Clock)
	if cfg.Prefix != "" {
		store = store.WithPrefix(cfg.Prefix)
	}

	return &redisStorage{RedisStore: store, client: client}, nil
}

func (f *redisFactory) GetType() string { return "redis" }

func init() {
	Register("redis", &redisFactory{})
}

func invalidConfigType(want string, got StorageConfig) error {
	return errors.ConfigError(fmt.Sprintf("invalid config type %T for %s storage", got, want))
}
