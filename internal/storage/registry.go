package storage

import (
	"fmt"
	"sort"
	"sync"

	"oauth2-client/internal/common/errors"
)

type Registry struct {
	factories map[string]StorageFactory
	mu        sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]StorageFactory),
	}
}

func (r *Registry) Register(storageType string, factory StorageFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[storageType] = factory
}

// Create validates config and builds the storage registered under its type.
func (r *Registry) Create(config StorageConfig) (Storage, error) {
	if config == nil {
		return nil, errors.ConfigError("storage config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid %s storage config: %v", config.GetType(), err))
	}

	r.mu.RLock()
	factory, exists := r.factories[config.GetType()]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.ConfigError(fmt.Sprintf("storage type %s not registered", config.GetType()))
	}

	return factory.Create(config)
}

// GetAvailableTypes returns the registered type names, sorted.
func (r *Registry) GetAvailableTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for storageType := range r.factories {
		types = append(types, storageType)
	}
	sort.Strings(types)
	return types
}

func (r *Registry) IsRegistered(storageType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[storageType]
	return exists
}

var DefaultRegistry = NewRegistry()

func Register(storageType string, factory StorageFactory) {
	DefaultRegistry.Register(storageType, factory)
}

func Create(config StorageConfig) (Storage, error) {
	return DefaultRegistry.Create(config)
}

func GetAvailableTypes() []string {
	return DefaultRegistry.GetAvailableTypes()
}
