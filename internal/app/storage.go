package app

import (
	"fmt"

	"oauth2-client/internal/common/logging"
	"oauth2-client/internal/storage"
	"oauth2-client/internal/storage/postgres"
	"oauth2-client/internal/storage/sqlite"
)

func (app *App) initializeStorage() error {
	store, err := storage.Create(app.storageConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.Storage = storage.WithApplicationCache(store, app.Config.ApplicationCacheTTL)
	return nil
}

func (app *App) storageConfig() storage.StorageConfig {
	cfg := app.Config

	switch cfg.StoreType {
	case "memory":
		app.Logger.Warn("Token store: memory, tokens are lost on restart")
		return &storage.MemoryConfig{}
	case "redis":
		app.Logger.Info("Token store: Redis",
			logging.String("address", cfg.RedisAddress),
			logging.Int("db", cfg.RedisDB),
		)
		if cfg.EncryptionKey != "" {
			app.Logger.Warn("CONFIG_ENCRYPTION_KEY is ignored by the Redis store")
		}
		return &storage.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		}
	case "postgres", "postgresql":
		app.Logger.Info("Token store: PostgreSQL",
			logging.String("host", cfg.PostgresHost),
			logging.Int("port", cfg.PostgresPort),
			logging.String("database", cfg.PostgresDB),
		)
		return &postgres.Config{
			Host:          cfg.PostgresHost,
			Port:          cfg.PostgresPort,
			Database:      cfg.PostgresDB,
			Username:      cfg.PostgresUser,
			Password:      cfg.PostgresPassword,
			SSLMode:       cfg.PostgresSSLMode,
			EncryptionKey: cfg.EncryptionKey,
		}
	default:
		app.Logger.Info("Token store: SQLite", logging.String("path", cfg.DatabasePath))
		return &sqlite.Config{
			DatabasePath:  cfg.DatabasePath,
			EncryptionKey: cfg.EncryptionKey,
		}
	}
}
