package oauth2_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"oauth2-client/internal/common/utils"
	"oauth2-client/internal/oauth2"
	"oauth2-client/internal/testutil"
)

func TestMemoryStore_Contract(t *testing.T) {
	clock := utils.NewFixedClock(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))
	testutil.RunStoreContract(t, oauth2.NewMemoryStore(clock), clock)
}

func TestRedisStore_Contract(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := utils.NewFixedClock(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))
	testutil.RunStoreContract(t, oauth2.NewRedisStore(client, clock), clock)
}
