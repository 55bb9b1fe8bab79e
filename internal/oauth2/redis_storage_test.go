package oauth2

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oauth2-client/internal/common/errors"
	"oauth2-client/internal/common/utils"
)

func setupRedisStore(t *testing.T, clock utils.Clock) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, clock), mr
}

func TestRedisStore_KeyLayout(t *testing.T) {
	store, mr := setupRedisStore(t, utils.NewFixedClock(testNow))
	ctx := context.Background()

	saved, err := store.SaveToken(ctx, &AccessToken{Application: "billing", Token: "abc", TokenType: "Bearer"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.ID)

	assert.True(t, mr.Exists("oauth2:token:1"))
	members, err := mr.ZMembers("oauth2:tokens:billing")
	require.NoError(t, err)
	assert.Equal(t, []string{"00000000000000000001"}, members)
}

func TestRedisStore_Prefix(t *testing.T) {
	store, mr := setupRedisStore(t, nil)
	ctx := context.Background()

	tenant := store.WithPrefix("tenant-a:")
	_, err := tenant.SaveToken(ctx, &AccessToken{Application: "billing", Token: "abc", TokenType: "Bearer"})
	require.NoError(t, err)

	assert.True(t, mr.Exists("tenant-a:token:1"))

	latest, err := store.FindLatestToken(ctx, "billing")
	require.NoError(t, err)
	assert.Nil(t, latest, "default namespace must not see the tenant's history")
}

func TestRedisStore_ConnectionFailure(t *testing.T) {
	store, mr := setupRedisStore(t, nil)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := store.FindLatestToken(ctx, "billing")
	assert.True(t, errors.IsType(err, errors.ErrTypeConnection))
}
