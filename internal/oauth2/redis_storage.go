package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	goredis "github.com/go-redis/redis/v8"
	"oauth2-client/internal/common/errors"
	"oauth2-client/internal/common/utils"
)

// RedisStore implements Store on Redis so that several processes share one
// token history.
//
// Key layout (prefix defaults to "oauth2:"):
//
//	<prefix>application:<name>  JSON Application
//	<prefix>token:seq           INCR counter for token ids
//	<prefix>token:<id>          JSON AccessToken
//	<prefix>tokens:<name>       sorted set, score = created_at (µs), member = zero-padded id
//
// Equal scores sort by member, so the zero-padded id breaks creation-time ties.
type RedisStore struct {
	client goredis.Cmdable
	prefix string
	clock  utils.Clock
}

// NewRedisStore creates a Redis-backed store. A nil clock uses the system clock.
func NewRedisStore(client goredis.Cmdable, clock utils.Clock) *RedisStore {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &RedisStore{
		client: client,
		prefix: "oauth2:",
		clock:  clock,
	}
}

// WithPrefix returns a copy of the store using a different key namespace.
func (s *RedisStore) WithPrefix(prefix string) *RedisStore {
	copied := *s
	copied.prefix = prefix
	return &copied
}

func (s *RedisStore) applicationKey(name string) string {
	return s.prefix + "application:" + name
}

func (s *RedisStore) tokenKey(id int64) string {
	return fmt.Sprintf("%stoken:%d", s.prefix, id)
}

func (s *RedisStore) historyKey(name string) string {
	return s.prefix + "tokens:" + name
}

// SaveApplication stores the application as JSON, replacing any previous record.
func (s *RedisStore) SaveApplication(ctx context.Context, app *Application) error {
	if app == nil || app.Name == "" {
		return errors.ValidationError("application name is required")
	}
	data, err := json.Marshal(app)
	if err != nil {
		return errors.InternalError("failed to serialize application", err)
	}
	if err := s.client.Set(ctx, s.applicationKey(app.Name), data, 0).Err(); err != nil {
		return errors.ConnectionError("failed to save application", err)
	}
	return nil
}

// FindApplication implements ApplicationStore.
func (s *RedisStore) FindApplication(ctx context.Context, name string) (*Application, error) {
	data, err := s.client.Get(ctx, s.applicationKey(name)).Bytes()
	if err == goredis.Nil {
		return nil, errors.NotFoundError("application " + name)
	}
	if err != nil {
		return nil, errors.ConnectionError("failed to load application", err)
	}

	var app Application
	if err := json.Unmarshal(data, &app); err != nil {
		return nil, errors.InternalError("failed to deserialize application", err)
	}
	return &app, nil
}

// FindLatestToken implements TokenStore.
func (s *RedisStore) FindLatestToken(ctx context.Context, application string) (*AccessToken, error) {
	members, err := s.client.ZRevRange(ctx, s.historyKey(application), 0, 0).Result()
	if err != nil {
		return nil, errors.ConnectionError("failed to read token history", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	id, err := strconv.ParseInt(members[0], 10, 64)
	if err != nil {
		return nil, errors.InternalError("corrupt token history entry "+members[0], err)
	}

	data, err := s.client.Get(ctx, s.tokenKey(id)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ConnectionError("failed to load token", err)
	}

	var token AccessToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, errors.InternalError("failed to deserialize token", err)
	}
	return &token, nil
}

// SaveToken implements TokenStore. The record and its history entry are
// written in one MULTI/EXEC transaction.
func (s *RedisStore) SaveToken(ctx context.Context, token *AccessToken) (*AccessToken, error) {
	if token == nil || token.Application == "" {
		return nil, errors.ValidationError("token must reference an application")
	}

	id, err := s.client.Incr(ctx, s.prefix+"token:seq").Result()
	if err != nil {
		return nil, errors.ConnectionError("failed to allocate token id", err)
	}

	stored := *token
	stored.ID = id
	stored.CreatedAt = s.clock.Now()

	data, err := json.Marshal(&stored)
	if err != nil {
		return nil, errors.InternalError("failed to serialize token", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.tokenKey(id), data, 0)
		pipe.ZAdd(ctx, s.historyKey(stored.Application), &goredis.Z{
			Score:  float64(stored.CreatedAt.UnixMicro()),
			Member: fmt.Sprintf("%020d", id),
		})
		return nil
	})
	if err != nil {
		return nil, errors.ConnectionError("failed to save token", err)
	}

	return &stored, nil
}
