package storage

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"oauth2-client/internal/oauth2"
)

// cachedStorage serves FindApplication from process memory for ttl. Token
// reads always go to the backing store. Lookups that fail are not cached.
type cachedStorage struct {
	Storage
	applications *gocache.Cache
}

// WithApplicationCache wraps store with a local application cache. A
// non-positive ttl returns store unchanged.
func WithApplicationCache(store Storage, ttl time.Duration) Storage {
	if ttl <= 0 {
		return store
	}
	return &cachedStorage{
		Storage:      store,
		applications: gocache.New(ttl, 2*ttl),
	}
}

func (s *cachedStorage) FindApplication(ctx context.Context, name string) (*oauth2.Application, error) {
	if cached, found := s.applications.Get(name); found {
		return cached.(*oauth2.Application).Clone(), nil
	}

	app, err := s.Storage.FindApplication(ctx, name)
	if err != nil {
		return nil, err
	}

	s.applications.SetDefault(name, app.Clone())
	return app, nil
}

func (s *cachedStorage) SaveApplication(ctx context.Context, app *oauth2.Application) error {
	err := s.Storage.SaveApplication(ctx, app)
	if app != nil {
		s.applications.Delete(app.Name)
	}
	return err
}
