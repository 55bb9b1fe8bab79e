package circuitbreaker

import (
	"context"
	"sort"
	"sync"

	"oauth2-client/internal/common/logging"
)

// GoBreakerManager owns a set of named breakers. It is created by its owner
// (never global) so that tests can reset every breaker between cases.
type GoBreakerManager struct {
	breakers map[string]*GoBreakerAdapter
	logger   logging.Logger
	mu       sync.RWMutex
}

// NewGoBreakerManager creates a new manager using gobreaker
func NewGoBreakerManager(logger logging.Logger) *GoBreakerManager {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &GoBreakerManager{
		breakers: make(map[string]*GoBreakerAdapter),
		logger:   logger,
	}
}

// GetOrCreate gets an existing circuit breaker or creates a new one. The
// config only applies on creation.
func (m *GoBreakerManager) GetOrCreate(name string, config Config) *GoBreakerAdapter {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()
	if exists {
		return breaker
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if breaker, exists := m.breakers[name]; exists {
		return breaker
	}

	breaker = NewGoBreaker(name, config, m.logger)
	m.breakers[name] = breaker
	return breaker
}

// Get retrieves an existing circuit breaker by name
func (m *GoBreakerManager) Get(name string) (*GoBreakerAdapter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	breaker, exists := m.breakers[name]
	return breaker, exists
}

// Execute executes a function with circuit breaker protection
func (m *GoBreakerManager) Execute(ctx context.Context, name string, config Config, fn func() error) error {
	return m.GetOrCreate(name, config).Execute(ctx, fn)
}

// AllStats returns statistics for all circuit breakers, sorted by name
func (m *GoBreakerManager) AllStats() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make([]Stats, 0, len(m.breakers))
	for _, breaker := range m.breakers {
		stats = append(stats, breaker.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })

	return stats
}

// Reset resets all circuit breakers to closed state
func (m *GoBreakerManager) Reset() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, breaker := range m.breakers {
		breaker.Reset()
		m.logger.Debug("Circuit breaker reset",
			logging.Field{Key: "breaker", Value: name},
		)
	}
}

// IsOpen checks if a circuit breaker is in open state
func (m *GoBreakerManager) IsOpen(name string) bool {
	if breaker, exists := m.Get(name); exists {
		return breaker.IsOpen()
	}
	return false
}
