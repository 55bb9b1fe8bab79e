// Package postgres persists applications and token history in PostgreSQL
// through a pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"oauth2-client/internal/common/errors"
	"oauth2-client/internal/common/utils"
	"oauth2-client/internal/oauth2"
	"oauth2-client/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS applications (
    name TEXT PRIMARY KEY,
    client_id TEXT NOT NULL,
    client_secret TEXT NOT NULL,
    authorization_grant_type TEXT NOT NULL,
    service_host TEXT NOT NULL,
    token_uri TEXT NOT NULL,
    scope TEXT NOT NULL DEFAULT '',
    extra_settings JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS access_tokens (
    id BIGSERIAL PRIMARY KEY,
    application TEXT NOT NULL,
    token TEXT NOT NULL,
    token_type TEXT NOT NULL,
    scope TEXT NOT NULL DEFAULT '',
    expires TIMESTAMPTZ,
    raw TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_access_tokens_latest
    ON access_tokens (application, created_at DESC, id DESC);
`

// Store implements storage.Storage. Timestamps are truncated to the
// microsecond precision of TIMESTAMPTZ before they are written.
type Store struct {
	pool   *pgxpool.Pool
	config *Config
	codec  *storage.SecretCodec
	clock  utils.Clock
}

func NewStore(ctx context.Context, config *Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid PostgreSQL config: %v", err))
	}

	codec, err := storage.NewSecretCodec(config.EncryptionKey)
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(config.GetConnectionString())
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid PostgreSQL connection string: %v", err))
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.ConnectionError("failed to connect to PostgreSQL database", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.ConnectionError("failed to ping PostgreSQL database", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	clock := config.Clock
	if clock == nil {
		clock = utils.SystemClock{}
	}

	return &Store{
		pool:   pool,
		config: config,
		codec:  codec,
		clock:  clock,
	}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) now() time.Time {
	return s.clock.Now().Truncate(time.Microsecond)
}

// SaveApplication inserts or replaces the application by name.
func (s *Store) SaveApplication(ctx context.Context, app *oauth2.Application) error {
	if app == nil || app.Name == "" {
		return errors.ValidationError("application name is required")
	}

	secret, err := s.codec.Seal(app.ClientSecret)
	if err != nil {
		return err
	}
	extra, err := json.Marshal(app.ExtraSettings)
	if err != nil {
		return errors.InternalError("failed to serialize extra settings", err)
	}

	now := s.now()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO applications (name, client_id, client_secret, authorization_grant_type,
			service_host, token_uri, scope, extra_settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (name) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			client_secret = EXCLUDED.client_secret,
			authorization_grant_type = EXCLUDED.authorization_grant_type,
			service_host = EXCLUDED.service_host,
			token_uri = EXCLUDED.token_uri,
			scope = EXCLUDED.scope,
			extra_settings = EXCLUDED.extra_settings,
			updated_at = EXCLUDED.updated_at`,
		app.Name, app.ClientID, secret, string(app.GrantType),
		app.ServiceHost, app.TokenURI, app.Scope, string(extra), now)
	if err != nil {
		return errors.ConnectionError("failed to save application", err)
	}
	return nil
}

func (s *Store) FindApplication(ctx context.Context, name string) (*oauth2.Application, error) {
	var (
		app       oauth2.Application
		grantType string
		secret    string
		extra     []byte
	)

	err := s.pool.QueryRow(ctx, `
		SELECT name, client_id, client_secret, authorization_grant_type,
			service_host, token_uri, scope, extra_settings::text
		FROM applications WHERE name = $1`, name).
		Scan(&app.Name, &app.ClientID, &secret, &grantType,
			&app.ServiceHost, &app.TokenURI, &app.Scope, &extra)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFoundError("application " + name)
	}
	if err != nil {
		return nil, errors.ConnectionError("failed to load application", err)
	}

	app.GrantType = oauth2.GrantType(grantType)
	if app.ClientSecret, err = s.codec.Open(secret); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(extra, &app.ExtraSettings); err != nil {
		return nil, errors.InternalError("failed to deserialize extra settings", err)
	}

	return &app, nil
}

func (s *Store) FindLatestToken(ctx context.Context, application string) (*oauth2.AccessToken, error) {
	var (
		token   oauth2.AccessToken
		value   string
		raw     string
		expires *time.Time
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, application, token, token_type, scope, expires, raw, created_at
		FROM access_tokens
		WHERE application = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, application).
		Scan(&token.ID, &token.Application, &value, &token.TokenType,
			&token.Scope, &expires, &raw, &token.CreatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ConnectionError("failed to load token", err)
	}

	if token.Token, err = s.codec.Open(value); err != nil {
		return nil, err
	}
	if raw, err = s.codec.Open(raw); err != nil {
		return nil, err
	}
	if raw != "" {
		token.Raw = json.RawMessage(raw)
	}
	if expires != nil {
		t := expires.UTC()
		token.Expires = &t
	}
	token.CreatedAt = token.CreatedAt.UTC()

	return &token, nil
}

// SaveToken appends token to the history.
func (s *Store) SaveToken(ctx context.Context, token *oauth2.AccessToken) (*oauth2.AccessToken, error) {
	if token == nil || token.Application == "" {
		return nil, errors.ValidationError("token must reference an application")
	}

	value, err := s.codec.Seal(token.Token)
	if err != nil {
		return nil, err
	}
	raw, err := s.codec.Seal(string(token.Raw))
	if err != nil {
		return nil, err
	}

	stored := *token
	stored.CreatedAt = s.now()

	err = s.pool.QueryRow(ctx, `
		INSERT INTO access_tokens (application, token, token_type, scope, expires, raw, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		stored.Application, value, stored.TokenType, stored.Scope, stored.Expires, raw,
		stored.CreatedAt).Scan(&stored.ID)
	if err != nil {
		return nil, errors.ConnectionError("failed to save token", err)
	}

	return &stored, nil
}
