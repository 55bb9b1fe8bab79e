// Package storage selects and constructs the persistence backend that holds
// applications and token history.
//
// Backends register a StorageFactory under a type name ("memory", "redis",
// "sqlite", "postgres"); sub-packages register themselves from init so that
// importing them is enough to make the type available.
package storage

import (
	"context"

	"oauth2-client/internal/oauth2"
)

// Storage is a token and application store with a managed connection.
type Storage interface {
	oauth2.Store
	oauth2.ApplicationWriter

	Close() error
	Health(ctx context.Context) error
}

// StorageConfig is a backend-specific configuration.
type StorageConfig interface {
	Validate() error
	GetType() string
}

// StorageFactory builds a Storage from its configuration.
type StorageFactory interface {
	Create(config StorageConfig) (Storage, error)
	GetType() string
}
