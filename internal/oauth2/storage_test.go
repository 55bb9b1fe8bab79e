package oauth2

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oauth2-client/internal/common/utils"
)

func TestMemoryStore_AppendOnly(t *testing.T) {
	store := NewMemoryStore(utils.NewFixedClock(testNow))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.SaveToken(ctx, &AccessToken{Application: "billing", Token: "t", TokenType: "Bearer"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, store.TokenCount("billing"))

	latest, err := store.FindLatestToken(ctx, "billing")
	require.NoError(t, err)
	assert.Equal(t, int64(20), latest.ID)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	saved, err := store.SaveToken(ctx, &AccessToken{Application: "billing", Token: "original", TokenType: "Bearer"})
	require.NoError(t, err)
	saved.Token = "mutated"

	latest, err := store.FindLatestToken(ctx, "billing")
	require.NoError(t, err)
	assert.Equal(t, "original", latest.Token)
}
