// Package sqlite persists applications and token history in a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"oauth2-client/internal/common/errors"
	"oauth2-client/internal/common/utils"
	"oauth2-client/internal/oauth2"
	"oauth2-client/internal/storage"
)

// Store implements storage.Storage. Timestamps are stored as Unix
// nanoseconds in UTC.
type Store struct {
	db     *sql.DB
	config *Config
	codec  *storage.SecretCodec
	clock  utils.Clock
}

func NewStore(config *Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid SQLite config: %v", err))
	}

	codec, err := storage.NewSecretCodec(config.EncryptionKey)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection: SQLite serializes writers and :memory: is per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	clock := config.Clock
	if clock == nil {
		clock = utils.SystemClock{}
	}

	store := &Store{
		db:     db,
		config: config,
		codec:  codec,
		clock:  clock,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS applications (
			name TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			client_secret TEXT NOT NULL,
			authorization_grant_type TEXT NOT NULL,
			service_host TEXT NOT NULL,
			token_uri TEXT NOT NULL,
			scope TEXT NOT NULL DEFAULT '',
			extra_settings TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS access_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			application TEXT NOT NULL,
			token TEXT NOT NULL,
			token_type TEXT NOT NULL,
			scope TEXT NOT NULL DEFAULT '',
			expires INTEGER,
			raw TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_access_tokens_latest
			ON access_tokens (application, created_at DESC, id DESC)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
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

	now := s.clock.Now().UnixNano()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO applications (name, client_id, client_secret, authorization_grant_type,
			service_host, token_uri, scope, extra_settings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			client_id = excluded.client_id,
			client_secret = excluded.client_secret,
			authorization_grant_type = excluded.authorization_grant_type,
			service_host = excluded.service_host,
			token_uri = excluded.token_uri,
			scope = excluded.scope,
			extra_settings = excluded.extra_settings,
			updated_at = excluded.updated_at`,
		app.Name, app.ClientID, secret, string(app.GrantType),
		app.ServiceHost, app.TokenURI, app.Scope, string(extra), now, now)
	if err != nil {
		return errors.InternalError("failed to save application", err)
	}
	return nil
}

func (s *Store) FindApplication(ctx context.Context, name string) (*oauth2.Application, error) {
	var (
		app       oauth2.Application
		grantType string
		secret    string
		extra     string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT name, client_id, client_secret, authorization_grant_type,
			service_host, token_uri, scope, extra_settings
		FROM applications WHERE name = ?`, name).
		Scan(&app.Name, &app.ClientID, &secret, &grantType,
			&app.ServiceHost, &app.TokenURI, &app.Scope, &extra)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFoundError("application " + name)
	}
	if err != nil {
		return nil, errors.InternalError("failed to load application", err)
	}

	app.GrantType = oauth2.GrantType(grantType)
	if app.ClientSecret, err = s.codec.Open(secret); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(extra), &app.ExtraSettings); err != nil {
		return nil, errors.InternalError("failed to deserialize extra settings", err)
	}

	return &app, nil
}

func (s *Store) FindLatestToken(ctx context.Context, application string) (*oauth2.AccessToken, error) {
	var (
		token     oauth2.AccessToken
		value     string
		raw       string
		expires   sql.NullInt64
		createdAt int64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, application, token, token_type, scope, expires, raw, created_at
		FROM access_tokens
		WHERE application = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, application).
		Scan(&token.ID, &token.Application, &value, &token.TokenType,
			&token.Scope, &expires, &raw, &createdAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.InternalError("failed to load token", err)
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
	if expires.Valid {
		t := time.Unix(0, expires.Int64).UTC()
		token.Expires = &t
	}
	token.CreatedAt = time.Unix(0, createdAt).UTC()

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

	var expires sql.NullInt64
	if token.Expires != nil {
		expires = sql.NullInt64{Int64: token.Expires.UnixNano(), Valid: true}
	}

	stored := *token
	stored.CreatedAt = s.clock.Now()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO access_tokens (application, token, token_type, scope, expires, raw, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		stored.Application, value, stored.TokenType, stored.Scope, expires, raw,
		stored.CreatedAt.UnixNano())
	if err != nil {
		return nil, errors.InternalError("failed to save token", err)
	}

	if stored.ID, err = result.LastInsertId(); err != nil {
		return nil, errors.InternalError("failed to read token id", err)
	}

	return &stored, nil
}
