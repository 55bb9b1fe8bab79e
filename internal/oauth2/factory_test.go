package oauth2

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oauth2-client/internal/common/errors"
)

func TestFactory_GetClient_FetchesWhenNoToken(t *testing.T) {
	h := newHarness(t, issueTokens(3600), alwaysStatus(http.StatusOK, `{}`))

	client, err := h.factory.GetClient(context.Background(), "billing")
	require.NoError(t, err)

	assert.Equal(t, 1, h.provider.Calls())
	assert.Equal(t, 1, h.store.TokenCount("billing"))

	latest, err := h.store.FindLatestToken(context.Background(), "billing")
	require.NoError(t, err)
	assert.Equal(t, latest.ID, client.Token().ID, "token must be persisted before the client is returned")
	assert.Equal(t, "token-1", client.Token().Token)
	assert.Equal(t, "billing", client.Application().Name)
}

func TestFactory_GetClient_ReusesValidToken(t *testing.T) {
	h := newHarness(t, issueTokens(3600), alwaysStatus(http.StatusOK, `{}`))
	h.seedToken(t, "cached", timePtr(testNow.Add(time.Hour)))

	client, err := h.factory.GetClient(context.Background(), "billing")
	require.NoError(t, err)

	assert.Equal(t, 0, h.provider.Calls())
	assert.Equal(t, 1, h.store.TokenCount("billing"))
	assert.Equal(t, "cached", client.Token().Token)
}

func TestFactory_GetClient_RefreshesInsideMargin(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
	}{
		{"30 seconds left", testNow.Add(30 * time.Second)},
		{"exactly the margin left", testNow.Add(ExpiryMargin)},
		{"already expired", testNow.Add(-time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, issueTokens(3600), alwaysStatus(http.StatusOK, `{}`))
			h.seedToken(t, "stale", timePtr(tt.expires))

			client, err := h.factory.GetClient(context.Background(), "billing")
			require.NoError(t, err)

			assert.Equal(t, 1, h.provider.Calls())
			assert.Equal(t, 2, h.store.TokenCount("billing"))
			assert.Equal(t, "token-1", client.Token().Token)
		})
	}
}

func TestFactory_GetClient_TokenWithoutExpiry(t *testing.T) {
	h := newHarness(t, issueTokens(3600), alwaysStatus(http.StatusOK, `{}`))
	h.seedToken(t, "forever", nil)

	h.clock.Advance(30 * 24 * time.Hour)
	client, err := h.factory.GetClient(context.Background(), "billing")
	require.NoError(t, err)

	assert.Equal(t, 0, h.provider.Calls())
	assert.Equal(t, "forever", client.Token().Token)
}

func TestFactory_GetClient_OnlyLatestCounts(t *testing.T) {
	h := newHarness(t, issueTokens(3600), alwaysStatus(http.StatusOK, `{}`))
	h.seedToken(t, "older-but-valid", timePtr(testNow.Add(time.Hour)))
	h.clock.Advance(time.Second)
	h.seedToken(t, "newer-but-stale", timePtr(testNow.Add(10*time.Second)))

	client, err := h.factory.GetClient(context.Background(), "billing")
	require.NoError(t, err)

	assert.Equal(t, 1, h.provider.Calls())
	assert.Equal(t, "token-1", client.Token().Token)
}

func TestFactory_GetClient_UnknownApplication(t *testing.T) {
	h := newHarness(t, issueTokens(3600), alwaysStatus(http.StatusOK, `{}`))

	_, err := h.factory.GetClient(context.Background(), "missing")
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
	assert.Equal(t, 0, h.provider.Calls())
}

func TestFactory_GetClient_ConfigErrorsSkipNetworkAndBreaker(t *testing.T) {
	h := newHarness(t, issueTokens(3600), alwaysStatus(http.StatusOK, `{}`))
	broken := jwtBearerApp("/keys/private.pem")
	broken.TokenURI = h.provider.TokenURI()
	broken.ExtraSettings.Subject = ""
	require.NoError(t, h.store.SaveApplication(context.Background(), broken))

	for i := 0; i < 5; i++ {
		_, err := h.factory.GetClient(context.Background(), "crm")
		assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	}

	assert.Equal(t, 0, h.provider.Calls())
	assert.False(t, h.factory.Breakers().IsOpen("token:crm"))
}

func TestFactory_GetClient_ProviderRejectsResponse(t *testing.T) {
	h := newHarness(t, func(n int, form url.Values) (int, interface{}) {
		return http.StatusOK, map[string]string{"token_type": "Bearer"}
	}, alwaysStatus(http.StatusOK, `{}`))

	_, err := h.factory.GetClient(context.Background(), "billing")
	assert.True(t, errors.IsType(err, errors.ErrTypeProviderResponse))
	assert.Equal(t, 0, h.store.TokenCount("billing"), "nothing is persisted on failure")
}

func TestFactory_TokenBreaker(t *testing.T) {
	h := newHarness(t, func(n int, form url.Values) (int, interface{}) {
		return http.StatusBadGateway, map[string]string{}
	}, alwaysStatus(http.StatusOK, `{}`))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.factory.GetClient(ctx, "billing")
		assert.True(t, errors.IsType(err, errors.ErrTypeConnection))
	}

	_, err := h.factory.GetClient(ctx, "billing")
	assert.True(t, errors.IsType(err, errors.ErrTypeCircuitOpen))
	assert.Equal(t, 3, h.provider.Calls(), "an open breaker performs no I/O")

	h.factory.Reset()
	_, err = h.factory.GetClient(ctx, "billing")
	assert.True(t, errors.IsType(err, errors.ErrTypeConnection))
	assert.Equal(t, 4, h.provider.Calls())
}

func TestFactory_GetClient_ConcurrentCallersShareOneFetch(t *testing.T) {
	h := newHarness(t, issueTokens(3600), alwaysStatus(http.StatusOK, `{}`))
	h.provider.mu.Lock()
	h.provider.delay = 100 * time.Millisecond
	h.provider.mu.Unlock()

	const workers = 10
	var wg sync.WaitGroup
	tokens := make([]string, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client, err := h.factory.GetClient(context.Background(), "billing")
			if assert.NoError(t, err) {
				tokens[i] = client.Token().Token
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, h.provider.Calls())
	assert.Equal(t, 1, h.store.TokenCount("billing"))
	for _, tok := range tokens {
		assert.Equal(t, "token-1", tok)
	}
}

func TestFactory_GetClient_CanceledCallerLeavesSharedFetchRunning(t *testing.T) {
	h := newHarness(t, issueTokens(3600), alwaysStatus(http.StatusOK, `{}`))
	h.provider.mu.Lock()
	h.provider.delay = 200 * time.Millisecond
	h.provider.mu.Unlock()

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := h.factory.GetClient(leaderCtx, "billing")
		leaderErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	follower := make(chan *RequestClient, 1)
	go func() {
		client, err := h.factory.GetClient(context.Background(), "billing")
		assert.NoError(t, err)
		follower <- client
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	client := <-follower
	require.NotNil(t, client)
	assert.Equal(t, "token-1", client.Token().Token)
	assert.Equal(t, 1, h.provider.Calls())
	assert.Equal(t, 1, h.store.TokenCount("billing"), "the fetch finished and was persisted")
}

func TestFactory_FetchTimeout(t *testing.T) {
	h := newHarness(t, issueTokens(3600), alwaysStatus(http.StatusOK, `{}`), WithFetchTimeout(50*time.Millisecond))
	h.provider.mu.Lock()
	h.provider.delay = 300 * time.Millisecond
	h.provider.mu.Unlock()

	_, err := h.factory.GetClient(context.Background(), "billing")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConnection))
	assert.Equal(t, 0, h.store.TokenCount("billing"))
}
