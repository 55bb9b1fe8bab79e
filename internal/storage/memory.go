package storage

import (
	"context"

	"oauth2-client/internal/common/utils"
	"oauth2-client/internal/oauth2"
)

// MemoryConfig selects the in-process store. Tokens do not survive a restart.
type MemoryConfig struct {
	Clock utils.Clock
}

func (c *MemoryConfig) Validate() error { return nil }

func (c *MemoryConfig) GetType() string { return "memory" }

type memoryStorage struct {
	*oauth2.MemoryStore
}

func (memoryStorage) Close() error { return nil }

func (memoryStorage) Health(ctx context.Context) error { return nil }

type memoryFactory struct{}

func (f *memoryFactory) Create(config StorageConfig) (Storage, error) {
	cfg, ok := config.(*MemoryConfig)
	if !ok {
		return nil, invalidConfigType("memory", config)
	}
	return memoryStorage{oauth2.NewMemoryStore(cfg.Clock)}, nil
}

func (f *memoryFactory) GetType() string { return "memory" }

func init() {
	Register("memory", &memoryFactory{})
}
