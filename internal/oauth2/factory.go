package oauth2

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
	"oauth2-client/internal/circuitbreaker"
	commonhttp "oauth2-client/internal/common/http"
	"oauth2-client/internal/common/logging"
	"oauth2-client/internal/common/utils"
)

// DefaultFetchTimeout bounds a shared token fetch.
const DefaultFetchTimeout = 30 * time.Second

// Factory hands out RequestClients bound to a valid token. It owns the
// per-application breakers and the re-authentication fuse, so every client
// of one application shares the same containment state.
type Factory struct {
	store      Store
	fetcher    Fetcher
	httpClient HTTPDoer
	clock      utils.Clock
	logger     logging.Logger

	breakers       *circuitbreaker.GoBreakerManager
	tokenBreaker   circuitbreaker.Config
	requestBreaker circuitbreaker.Config
	reauthWindow   time.Duration
	fetchTimeout   time.Duration
	fuse           *ReauthFuse
	signals        map[string]ExpirySignal

	fetchGroup  singleflight.Group
	reauthGroup singleflight.Group
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithFetcher replaces the token fetcher.
func WithFetcher(fetcher Fetcher) FactoryOption {
	return func(f *Factory) { f.fetcher = fetcher }
}

// WithHTTPClient sets the transport used for resource server calls.
func WithHTTPClient(client HTTPDoer) FactoryOption {
	return func(f *Factory) { f.httpClient = client }
}

// WithClock sets the clock used for expiry decisions.
func WithClock(clock utils.Clock) FactoryOption {
	return func(f *Factory) { f.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) FactoryOption {
	return func(f *Factory) { f.logger = logger }
}

// WithBreakerConfigs overrides the token endpoint and request breaker presets.
func WithBreakerConfigs(token, request circuitbreaker.Config) FactoryOption {
	return func(f *Factory) {
		f.tokenBreaker = token
		f.requestBreaker = request
	}
}

// WithReauthWindow sets the fuse window. Zero disables the fuse.
func WithReauthWindow(window time.Duration) FactoryOption {
	return func(f *Factory) { f.reauthWindow = window }
}

// WithFetchTimeout bounds a shared token fetch. Zero leaves it unbounded.
func WithFetchTimeout(timeout time.Duration) FactoryOption {
	return func(f *Factory) { f.fetchTimeout = timeout }
}

// WithExpirySignal overrides the expiry signal for one application.
func WithExpirySignal(application string, signal ExpirySignal) FactoryOption {
	return func(f *Factory) { f.signals[application] = signal }
}

// NewFactory creates a factory over store.
func NewFactory(store Store, opts ...FactoryOption) *Factory {
	f := &Factory{
		store:          store,
		clock:          utils.SystemClock{},
		logger:         logging.GetGlobalLogger(),
		tokenBreaker:   circuitbreaker.TokenEndpointConfig,
		requestBreaker: circuitbreaker.RequestConfig,
		reauthWindow:   DefaultReauthWindow,
		fetchTimeout:   DefaultFetchTimeout,
		signals:        make(map[string]ExpirySignal),
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.httpClient == nil {
		f.httpClient = commonhttp.NewHTTPClientWithTimeout(30 * time.Second)
	}
	if f.fetcher == nil {
		f.fetcher = NewTokenFetcher(WithFetcherClock(f.clock), WithFetcherLogger(f.logger))
	}
	f.breakers = circuitbreaker.NewGoBreakerManager(f.logger)
	f.fuse = NewReauthFuse(f.reauthWindow, f.clock)

	return f
}

// GetClient returns a client for the named application carrying a token that
// is valid now. A new token is fetched and persisted first when none is
// stored or the latest one needs refresh. Concurrent callers for the same
// application share one fetch.
func (f *Factory) GetClient(ctx context.Context, name string) (*RequestClient, error) {
	latest, err := f.store.FindLatestToken(ctx, name)
	if err != nil {
		return nil, err
	}

	app, err := f.store.FindApplication(ctx, name)
	if err != nil {
		return nil, err
	}

	token := latest
	if NeedsRefresh(latest, f.clock.Now()) {
		reason := "expired"
		if latest == nil {
			reason = "no_token"
		}

		v, err := f.share(ctx, &f.fetchGroup, name, func(fctx context.Context) (interface{}, error) {
			// a fetch that completed after our first read already satisfies us
			if current, err := f.store.FindLatestToken(fctx, name); err == nil && !NeedsRefresh(current, f.clock.Now()) {
				return current, nil
			}
			return f.fetchAndSave(fctx, app, reason)
		})
		if err != nil {
			return nil, err
		}
		token = v.(*AccessToken)
	}

	return f.newClient(app, token), nil
}

// Reset closes every breaker and clears the fuse.
func (f *Factory) Reset() {
	f.breakers.Reset()
	f.fuse.Reset()
}

// Breakers exposes the breaker manager for stats.
func (f *Factory) Breakers() *circuitbreaker.GoBreakerManager {
	return f.breakers
}

func (f *Factory) newClient(app *Application, token *AccessToken) *RequestClient {
	signal, ok := f.signals[app.Name]
	if !ok {
		signal = SignalFor(app)
	}

	return &RequestClient{
		app:        app,
		httpClient: f.httpClient,
		signal:     signal,
		breaker:    f.breakers.GetOrCreate(requestBreakerName(app.Name), f.requestBreaker),
		refresher:  f,
		clock:      f.clock,
		logger:     f.logger,
		token:      token,
	}
}

// reauthenticate replaces stale after the resource server rejected it.
// A token persisted by another worker since stale was issued is adopted
// without contacting the provider. Otherwise the fuse is consulted before
// a new fetch, and only a fetch that succeeds restarts its window.
func (f *Factory) reauthenticate(ctx context.Context, app *Application, stale *AccessToken) (*AccessToken, error) {
	v, err := f.share(ctx, &f.reauthGroup, app.Name, func(fctx context.Context) (interface{}, error) {
		latest, err := f.store.FindLatestToken(fctx, app.Name)
		if err == nil && latest != nil && stale != nil &&
			latest.ID != stale.ID && newer(latest, stale) && !latest.IsExpired(f.clock.Now()) {
			f.logger.Info("Adopting token refreshed by another worker",
				logging.String("application", app.Name),
				logging.String("token", latest.String()),
			)
			return latest, nil
		}

		if err := f.fuse.Check(app.Name); err != nil {
			f.logger.Warn("Re-authentication refused",
				logging.String("application", app.Name),
				logging.Duration("window", f.fuse.Window()),
			)
			return nil, err
		}

		token, err := f.fetchAndSave(fctx, app, "expiry_signal")
		if err != nil {
			return nil, err
		}
		f.fuse.Record(app.Name)
		return token, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*AccessToken), nil
}

// share runs fn once per key across concurrent callers. fn gets a context
// that keeps the caller's values but not its cancellation, bounded by
// fetchTimeout, so one caller giving up does not fail the others. Each
// caller still stops waiting when its own ctx is done.
func (f *Factory) share(ctx context.Context, group *singleflight.Group, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	ch := group.DoChan(key, func() (interface{}, error) {
		var (
			fctx   context.Context
			cancel context.CancelFunc
		)
		if f.fetchTimeout > 0 {
			fctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), f.fetchTimeout)
		} else {
			fctx, cancel = context.WithCancel(context.WithoutCancel(ctx))
		}
		defer cancel()
		return fn(fctx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// fetchAndSave obtains a token through the application's token breaker and
// persists it. Configuration errors surface before the breaker is touched.
func (f *Factory) fetchAndSave(ctx context.Context, app *Application, reason string) (*AccessToken, error) {
	if err := app.Validate(); err != nil {
		return nil, err
	}

	var fetched *AccessToken
	err := f.breakers.Execute(ctx, tokenBreakerName(app.Name), f.tokenBreaker, func() error {
		token, err := f.fetcher.FetchToken(ctx, app)
		fetched = token
		return err
	})
	if err != nil {
		f.logger.Error("Token fetch failed", err,
			logging.String("application", app.Name),
			logging.String("reason", reason),
		)
		return nil, err
	}

	saved, err := f.store.SaveToken(ctx, fetched)
	if err != nil {
		f.logger.Error("Failed to persist token", err,
			logging.String("application", app.Name),
		)
		return nil, err
	}

	f.logger.Info("Token refreshed",
		logging.String("application", app.Name),
		logging.String("reason", reason),
		logging.String("token", saved.String()),
	)
	return saved, nil
}

func tokenBreakerName(application string) string {
	return "token:" + application
}

func requestBreakerName(application string) string {
	return "request:" + application
}
