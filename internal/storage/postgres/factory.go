package postgres

import (
	"context"
	"fmt"
	"time"

	"oauth2-client/internal/storage"
)

type Factory struct{}

// Create connects with a 10 second deadline.
func (f *Factory) Create(config storage.StorageConfig) (storage.Storage, error) {
	pgConfig, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("invalid config type for PostgreSQL storage")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return NewStore(ctx, pgConfig)
}

func (f *Factory) GetType() string {
	return "postgres"
}

func init() {
	storage.Register("postgres", &Factory{})
}
