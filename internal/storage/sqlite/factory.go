package sqlite

import (
	"fmt"

	"oauth2-client/internal/storage"
)

type Factory struct{}

func (f *Factory) Create(config storage.StorageConfig) (storage.Storage, error) {
	sqliteConfig, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("invalid config type for SQLite storage")
	}

	return NewStore(sqliteConfig)
}

func (f *Factory) GetType() string {
	return "sqlite"
}

func init() {
	storage.Register("sqlite", &Factory{})
}
