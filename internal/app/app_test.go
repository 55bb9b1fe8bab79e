package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oauth2-client/internal/common/errors"
	"oauth2-client/internal/config"
)

type upstream struct {
	tokenCalls atomic.Int32
	provider   *httptest.Server
	resource   *httptest.Server
	lastBody   atomic.Value
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}

	auth := mux.NewRouter()
	auth.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		n := u.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": fmt.Sprintf("token-%d", n),
			"token_type":   "Bearer",
			"expires_in":   3600,
			"scope":        "read",
		})
	}).Methods(http.MethodPost)
	u.provider = httptest.NewServer(auth)
	t.Cleanup(u.provider.Close)

	api := mux.NewRouter()
	api.HandleFunc("/api/invoices", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		u.lastBody.Store(string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"method":%q,"auth":%q}`, r.Method, r.Header.Get("Authorization"))
	})
	u.resource = httptest.NewServer(api)
	t.Cleanup(u.resource.Close)

	return u
}

func (u *upstream) registry(t *testing.T) string {
	t.Helper()
	t.Setenv("BILLING_SECRET", "s3cret")

	doc := fmt.Sprintf(`
applications:
  - name: billing
    client_id: billing-client
    client_secret: ${BILLING_SECRET}
    grant_type: client-credentials
    service_host: %s/api/
    token_uri: %s/oauth/token
    scope: read
`, u.resource.URL, u.provider.URL)

	path := filepath.Join(t.TempDir(), "applications.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func testConfig(storeType string) *config.Config {
	return &config.Config{
		LogLevel:                  "info",
		LogMaxSizeMB:              100,
		StoreType:                 storeType,
		TokenHTTPTimeout:          5 * time.Second,
		RequestHTTPTimeout:        5 * time.Second,
		TokenBreakerMaxFailures:   3,
		RequestBreakerMaxFailures: 2,
		BreakerResetTimeout:       10 * time.Second,
		ReauthFuseWindow:          10 * time.Second,
		ApplicationCacheTTL:       time.Minute,
	}
}

func TestNew_SeedsApplicationsAndProbes(t *testing.T) {
	u := newUpstream(t)
	cfg := testConfig("memory")
	cfg.ApplicationsFile = u.registry(t)
	require.NoError(t, cfg.Validate())

	ctx := context.Background()
	app, err := New(ctx, cfg)
	require.NoError(t, err)
	defer app.Cleanup()

	require.NoError(t, app.Health(ctx))

	stored, err := app.Storage.FindApplication(ctx, "billing")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", stored.ClientSecret)

	var out bytes.Buffer
	err = app.Probe(ctx, ProbeRequest{Application: "billing", Path: "invoices"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "200 OK\n")
	assert.Contains(t, out.String(), `"auth":"Bearer token-1"`)

	out.Reset()
	err = app.Probe(ctx, ProbeRequest{
		Application: "billing",
		Method:      "post",
		Path:        "invoices",
		Data:        `{"amount":42}`,
	}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"method":"POST"`)
	assert.Equal(t, `{"amount":42}`, u.lastBody.Load())

	assert.EqualValues(t, 1, u.tokenCalls.Load(), "stored token is reused across probes")
}

func TestNew_SQLiteStore(t *testing.T) {
	u := newUpstream(t)
	cfg := testConfig("sqlite")
	cfg.DatabasePath = filepath.Join(t.TempDir(), "oauth2.db")
	cfg.EncryptionKey = "correct horse battery staple"
	cfg.ApplicationsFile = u.registry(t)

	ctx := context.Background()
	app, err := New(ctx, cfg)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, app.Probe(ctx, ProbeRequest{Application: "billing", Path: "invoices"}, &out))
	app.Cleanup()

	// a second process start finds the persisted token
	reopened, err := New(ctx, cfg)
	require.NoError(t, err)
	defer reopened.Cleanup()

	out.Reset()
	require.NoError(t, reopened.Probe(ctx, ProbeRequest{Application: "billing", Path: "invoices"}, &out))
	assert.Contains(t, out.String(), "token-1")
	assert.EqualValues(t, 1, u.tokenCalls.Load())
}

func TestProbe_UnknownApplication(t *testing.T) {
	app, err := New(context.Background(), testConfig("memory"))
	require.NoError(t, err)
	defer app.Cleanup()

	err = app.Probe(context.Background(), ProbeRequest{Application: "crm", Path: "/"}, io.Discard)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}

func TestNew_InvalidRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "applications.yaml")
	require.NoError(t, os.WriteFile(path, []byte("applications:\n  - name: broken\n"), 0o600))

	cfg := testConfig("memory")
	cfg.ApplicationsFile = path

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}
