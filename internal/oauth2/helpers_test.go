package oauth2

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"oauth2-client/internal/common/logging"
	"oauth2-client/internal/common/utils"
)

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

// logBuffer is a goroutine-safe sink for captured log output.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(t *testing.T) (logging.Logger, *logBuffer) {
	t.Helper()
	buf := &logBuffer{}
	logger, err := logging.NewZapLogger(logging.LogConfig{Level: logging.DebugLevel, Output: buf})
	require.NoError(t, err)
	return logger, buf
}

func generatePEM(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return key, string(pem.EncodeToMemory(block))
}

func clientCredentialsApp(name, tokenURI, serviceHost string) *Application {
	return &Application{
		Name:         name,
		ClientID:     "client-" + name,
		ClientSecret: "secret-" + name,
		GrantType:    GrantClientCredentials,
		ServiceHost:  serviceHost,
		TokenURI:     tokenURI,
		Scope:        "read write",
	}
}

// tokenResponder decides the token endpoint's reply to its n-th call (1-based).
type tokenResponder func(n int, form url.Values) (int, interface{})

// issueTokens answers every call with a fresh "token-<n>" valid for ttl seconds.
func issueTokens(ttl int) tokenResponder {
	return func(n int, form url.Values) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{
			"access_token": fmt.Sprintf("token-%d", n),
			"token_type":   "Bearer",
			"expires_in":   ttl,
			"scope":        "read write",
		}
	}
}

type fakeProvider struct {
	server  *httptest.Server
	respond tokenResponder

	mu    sync.Mutex
	forms []url.Values
	delay time.Duration
}

func newFakeProvider(t *testing.T, respond tokenResponder) *fakeProvider {
	t.Helper()
	p := &fakeProvider{respond: respond}

	router := mux.NewRouter()
	router.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()

		p.mu.Lock()
		p.forms = append(p.forms, r.PostForm)
		n := len(p.forms)
		delay := p.delay
		p.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}

		status, body := p.respond(n, r.PostForm)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}).Methods(http.MethodPost)

	p.server = httptest.NewServer(router)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) TokenURI() string {
	return p.server.URL + "/oauth/token"
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.forms)
}

func (p *fakeProvider) Form(i int) url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.forms[i]
}

type recordedRequest struct {
	Method        string
	Path          string
	Query         url.Values
	Authorization string
	ContentType   string
	Header        http.Header
	Body          string
}

// resourceResponder decides the resource server's reply from the request.
type resourceResponder func(req recordedRequest) (int, string)

// rejectToken answers 401 while the stale token is presented, 200 otherwise.
func rejectToken(stale string) resourceResponder {
	return func(req recordedRequest) (int, string) {
		if req.Authorization == "Bearer "+stale {
			return http.StatusUnauthorized, `{"error":"token_expired"}`
		}
		return http.StatusOK, `{"ok":true}`
	}
}

func alwaysStatus(status int, body string) resourceResponder {
	return func(recordedRequest) (int, string) { return status, body }
}

type fakeResource struct {
	server  *httptest.Server
	respond resourceResponder

	mu       sync.Mutex
	requests []recordedRequest
}

func newFakeResource(t *testing.T, respond resourceResponder) *fakeResource {
	t.Helper()
	s := &fakeResource{respond: respond}

	router := mux.NewRouter()
	router.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		req := recordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.Query(),
			Authorization: r.Header.Get("Authorization"),
			ContentType:   r.Header.Get("Content-Type"),
			Header:        r.Header.Clone(),
			Body:          string(body),
		}

		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()

		status, out := s.respond(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(out))
	})

	s.server = httptest.NewServer(router)
	t.Cleanup(s.server.Close)
	return s
}

func (s *fakeResource) Requests() []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]recordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// harness wires a Factory to fake provider and resource servers over a
// memory store and a fixed clock.
type harness struct {
	clock    *utils.FixedClock
	store    *MemoryStore
	provider *fakeProvider
	resource *fakeResource
	factory  *Factory
	app      *Application
	logs     *logBuffer
}

func newHarness(t *testing.T, issue tokenResponder, serve resourceResponder, opts ...FactoryOption) *harness {
	t.Helper()

	h := &harness{
		clock:    utils.NewFixedClock(testNow),
		provider: newFakeProvider(t, issue),
		resource: newFakeResource(t, serve),
	}
	logger, logs := newTestLogger(t)
	h.logs = logs
	h.store = NewMemoryStore(h.clock)
	h.app = clientCredentialsApp("billing", h.provider.TokenURI(), h.resource.server.URL+"/api/")
	require.NoError(t, h.store.SaveApplication(t.Context(), h.app))

	fetcher := NewTokenFetcher(
		WithFetcherHTTPClient(h.provider.server.Client()),
		WithFetcherClock(h.clock),
		WithFetcherLogger(logger),
	)

	base := []FactoryOption{
		WithFetcher(fetcher),
		WithClock(h.clock),
		WithLogger(logger),
		WithHTTPClient(h.resource.server.Client()),
	}
	h.factory = NewFactory(h.store, append(base, opts...)...)
	return h
}

// seedToken stores a token for the harness application directly.
func (h *harness) seedToken(t *testing.T, value string, expires *time.Time) *AccessToken {
	t.Helper()
	saved, err := h.store.SaveToken(t.Context(), &AccessToken{
		Application: h.app.Name,
		Token:       value,
		TokenType:   "Bearer",
		Scope:       "read write",
		Expires:     expires,
	})
	require.NoError(t, err)
	return saved
}

func timePtr(t time.Time) *time.Time {
	return &t
}
