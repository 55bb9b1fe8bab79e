package app

import (
	"context"
	"fmt"

	"oauth2-client/internal/circuitbreaker"
	commonhttp "oauth2-client/internal/common/http"
	"oauth2-client/internal/common/logging"
	"oauth2-client/internal/config"
	"oauth2-client/internal/oauth2"
	"oauth2-client/internal/storage"
)

// App holds all the application dependencies
type App struct {
	Config  *config.Config
	Storage storage.Storage
	Factory *oauth2.Factory
	Logger  logging.Logger
}

// New wires the token store, the application registry and the client
// factory. cfg must already be validated.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.String("component", "app")),
	}

	if err := app.initializeStorage(); err != nil {
		return nil, err
	}

	if err := app.seedApplications(ctx); err != nil {
		app.Cleanup()
		return nil, err
	}

	app.initializeFactory()

	return app, nil
}

// seedApplications imports the YAML registry into the store. Entries replace
// stored applications of the same name.
func (app *App) seedApplications(ctx context.Context) error {
	if app.Config.ApplicationsFile == "" {
		return nil
	}

	apps, err := config.LoadApplications(app.Config.ApplicationsFile)
	if err != nil {
		return err
	}

	for _, application := range apps {
		if err := app.Storage.SaveApplication(ctx, application); err != nil {
			return fmt.Errorf("failed to import application %s: %w", application.Name, err)
		}
	}

	names := make([]string, 0, len(apps))
	for _, application := range apps {
		names = append(names, application.Name)
	}
	app.Logger.Info("Applications imported",
		logging.String("file", app.Config.ApplicationsFile),
		logging.Strings("applications", names),
	)
	return nil
}

func (app *App) initializeFactory() {
	cfg := app.Config

	fetcher := oauth2.NewTokenFetcher(
		oauth2.WithFetcherHTTPClient(commonhttp.NewHTTPClientWithTimeout(cfg.TokenHTTPTimeout)),
		oauth2.WithFetcherLogger(app.Logger),
	)

	tokenBreaker := circuitbreaker.TokenEndpointConfig
	tokenBreaker.MaxFailures = cfg.TokenBreakerMaxFailures
	tokenBreaker.Timeout = cfg.BreakerResetTimeout

	requestBreaker := circuitbreaker.RequestConfig
	requestBreaker.MaxFailures = cfg.RequestBreakerMaxFailures
	requestBreaker.Timeout = cfg.BreakerResetTimeout

	app.Factory = oauth2.NewFactory(app.Storage,
		oauth2.WithFetcher(fetcher),
		oauth2.WithHTTPClient(commonhttp.NewHTTPClientWithTimeout(cfg.RequestHTTPTimeout)),
		oauth2.WithLogger(app.Logger),
		oauth2.WithBreakerConfigs(tokenBreaker, requestBreaker),
		oauth2.WithReauthWindow(cfg.ReauthFuseWindow),
		oauth2.WithFetchTimeout(cfg.TokenHTTPTimeout),
	)

	app.Logger.Info("Client factory ready",
		logging.Int("token_breaker_max_failures", tokenBreaker.MaxFailures),
		logging.Int("request_breaker_max_failures", requestBreaker.MaxFailures),
		logging.Duration("breaker_reset_timeout", cfg.BreakerResetTimeout),
		logging.Duration("reauth_fuse_window", cfg.ReauthFuseWindow),
	)
}

// Health checks the token store.
func (app *App) Health(ctx context.Context) error {
	return app.Storage.Health(ctx)
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.Storage != nil {
		if err := app.Storage.Close(); err != nil {
			app.Logger.Warn("Failed to close storage", logging.Err(err))
		}
	}
}
