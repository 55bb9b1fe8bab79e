package oauth2

import (
	"context"
	"sync"

	"oauth2-client/internal/common/errors"
	"oauth2-client/internal/common/utils"
)

// TokenStore persists token history. Writes are append-only.
type TokenStore interface {
	// FindLatestToken returns the most recently created token for the
	// application (ties broken by the higher id), or nil when none exists.
	FindLatestToken(ctx context.Context, application string) (*AccessToken, error)
	// SaveToken inserts token as a new record, assigning ID and CreatedAt,
	// and returns the stored record.
	SaveToken(ctx context.Context, token *AccessToken) (*AccessToken, error)
}

// ApplicationStore resolves application configuration by name.
type ApplicationStore interface {
	// FindApplication returns the named application or a not_found error.
	FindApplication(ctx context.Context, name string) (*Application, error)
}

// ApplicationWriter is implemented by stores that can be seeded with
// application records, e.g. from the YAML registry.
type ApplicationWriter interface {
	SaveApplication(ctx context.Context, app *Application) error
}

// Store is the storage collaborator consumed by the Factory.
type Store interface {
	TokenStore
	ApplicationStore
}

// MemoryStore keeps applications and token history in process memory.
// Suitable for tests and single-process deployments that can afford a
// fresh token after restart.
type MemoryStore struct {
	mu           sync.RWMutex
	applications map[string]*Application
	tokens       map[string][]*AccessToken
	nextID       int64
	clock        utils.Clock
}

// NewMemoryStore creates an empty in-memory store. A nil clock uses the
// system clock for creation timestamps.
func NewMemoryStore(clock utils.Clock) *MemoryStore {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &MemoryStore{
		applications: make(map[string]*Application),
		tokens:       make(map[string][]*AccessToken),
		clock:        clock,
	}
}

// SaveApplication inserts or replaces an application record.
func (s *MemoryStore) SaveApplication(ctx context.Context, app *Application) error {
	if app == nil || app.Name == "" {
		return errors.ValidationError("application name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applications[app.Name] = app.Clone()
	return nil
}

// FindApplication implements ApplicationStore.
func (s *MemoryStore) FindApplication(ctx context.Context, name string) (*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.applications[name]
	if !ok {
		return nil, errors.NotFoundError("application " + name)
	}
	return app.Clone(), nil
}

// FindLatestToken implements TokenStore.
func (s *MemoryStore) FindLatestToken(ctx context.Context, application string) (*AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *AccessToken
	for _, tok := range s.tokens[application] {
		if latest == nil || newer(tok, latest) {
			latest = tok
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

// SaveToken implements TokenStore.
func (s *MemoryStore) SaveToken(ctx context.Context, token *AccessToken) (*AccessToken, error) {
	if token == nil || token.Application == "" {
		return nil, errors.ValidationError("token must reference an application")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	stored := *token
	stored.ID = s.nextID
	stored.CreatedAt = s.clock.Now()
	s.tokens[token.Application] = append(s.tokens[token.Application], &stored)

	result := stored
	return &result, nil
}

// TokenCount returns the number of token records held for application.
func (s *MemoryStore) TokenCount(application string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens[application])
}

// newer orders tokens by creation time, then id.
func newer(a, b *AccessToken) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
