package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oauth2-client/internal/common/errors"
	"oauth2-client/internal/common/utils"
	"oauth2-client/internal/oauth2"
)

// ContractStore is what every storage backend offers.
type ContractStore interface {
	oauth2.Store
	oauth2.ApplicationWriter
}

// RunStoreContract exercises the behaviour every backend must share. clock
// must be the clock the store stamps CreatedAt with. The store must be empty.
func RunStoreContract(t *testing.T, store ContractStore, clock *utils.FixedClock) {
	ctx := context.Background()
	app := NewApplicationBuilder("billing").
		WithJWTBearer("svc@example.com").
		WithExtra("tenant", "eu").
		Build()

	t.Run("application round trip", func(t *testing.T) {
		require.NoError(t, store.SaveApplication(ctx, app))

		found, err := store.FindApplication(ctx, "billing")
		require.NoError(t, err)
		assert.Equal(t, app, found)
	})

	t.Run("application replaced", func(t *testing.T) {
		changed := *app
		changed.Scope = "read"
		require.NoError(t, store.SaveApplication(ctx, &changed))

		found, err := store.FindApplication(ctx, "billing")
		require.NoError(t, err)
		assert.Equal(t, "read", found.Scope)
		require.NoError(t, store.SaveApplication(ctx, app))
	})

	t.Run("unknown application", func(t *testing.T) {
		_, err := store.FindApplication(ctx, "missing")
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
	})

	t.Run("no tokens yet", func(t *testing.T) {
		latest, err := store.FindLatestToken(ctx, "billing")
		require.NoError(t, err)
		assert.Nil(t, latest)
	})

	t.Run("latest by creation time", func(t *testing.T) {
		first := NewToken("billing", "first", clock.Now().Add(time.Hour))
		first.Raw = []byte(`{"access_token":"first"}`)
		savedFirst, err := store.SaveToken(ctx, first)
		require.NoError(t, err)
		assert.NotZero(t, savedFirst.ID)
		assert.True(t, savedFirst.CreatedAt.Equal(clock.Now()))

		clock.Advance(time.Second)
		savedSecond, err := store.SaveToken(ctx, NewToken("billing", "second", time.Time{}))
		require.NoError(t, err)
		assert.Greater(t, savedSecond.ID, savedFirst.ID)

		latest, err := store.FindLatestToken(ctx, "billing")
		require.NoError(t, err)
		assert.Equal(t, "second", latest.Token)
		assert.Nil(t, latest.Expires)
	})

	t.Run("ties broken by id", func(t *testing.T) {
		clock.Advance(time.Second)
		_, err := store.SaveToken(ctx, NewToken("billing", "tie-a", time.Time{}))
		require.NoError(t, err)
		_, err = store.SaveToken(ctx, NewToken("billing", "tie-b", time.Time{}))
		require.NoError(t, err)

		latest, err := store.FindLatestToken(ctx, "billing")
		require.NoError(t, err)
		assert.Equal(t, "tie-b", latest.Token)
	})

	t.Run("fields survive storage", func(t *testing.T) {
		clock.Advance(time.Second)
		expires := clock.Now().Add(30 * time.Minute).Truncate(time.Microsecond)
		token := NewToken("billing", "full", expires)
		token.TokenType = "MAC"
		token.Scope = "read"
		token.Raw = []byte(`{"access_token":"full","token_type":"MAC"}`)
		_, err := store.SaveToken(ctx, token)
		require.NoError(t, err)

		latest, err := store.FindLatestToken(ctx, "billing")
		require.NoError(t, err)
		assert.Equal(t, "MAC", latest.TokenType)
		assert.Equal(t, "read", latest.Scope)
		assert.Equal(t, "billing", latest.Application)
		require.NotNil(t, latest.Expires)
		assert.True(t, expires.Equal(*latest.Expires))
		assert.JSONEq(t, `{"access_token":"full","token_type":"MAC"}`, string(latest.Raw))
	})

	t.Run("histories are per application", func(t *testing.T) {
		latest, err := store.FindLatestToken(ctx, "shipping")
		require.NoError(t, err)
		assert.Nil(t, latest)
	})

	t.Run("token without application is rejected", func(t *testing.T) {
		_, err := store.SaveToken(ctx, &oauth2.AccessToken{Token: "orphan"})
		assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
	})
}
