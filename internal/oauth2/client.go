package oauth2

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"oauth2-client/internal/circuitbreaker"
	"oauth2-client/internal/common/errors"
	commonhttp "oauth2-client/internal/common/http"
	"oauth2-client/internal/common/logging"
	"oauth2-client/internal/common/utils"
)

// reauthenticator obtains a replacement for a token the resource server
// rejected. Implemented by Factory.
type reauthenticator interface {
	reauthenticate(ctx context.Context, app *Application, stale *AccessToken) (*AccessToken, error)
}

// RequestClient performs authenticated calls against one application's
// service host. Every call detects token expiry from the response, refreshes
// at most once and retries the identical request once. Safe for concurrent use.
type RequestClient struct {
	app        *Application
	httpClient HTTPDoer
	signal     ExpirySignal
	breaker    *circuitbreaker.GoBreakerAdapter
	refresher  reauthenticator
	clock      utils.Clock
	logger     logging.Logger

	mu    sync.RWMutex
	token *AccessToken
}

type requestOptions struct {
	body   []byte
	header http.Header
	query  url.Values
	err    error
}

// RequestOption customizes a single call.
type RequestOption func(*requestOptions)

// WithBody sets a raw request body and its content type.
func WithBody(contentType string, body []byte) RequestOption {
	return func(o *requestOptions) {
		o.body = body
		if contentType != "" {
			o.header.Set("Content-Type", contentType)
		}
	}
}

// WithJSON marshals v as the request body.
func WithJSON(v interface{}) RequestOption {
	return func(o *requestOptions) {
		data, err := json.Marshal(v)
		if err != nil {
			o.err = err
			return
		}
		o.body = data
		o.header.Set("Content-Type", "application/json")
	}
}

// WithHeader adds a request header. Authorization is always overwritten by
// the carried token.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		o.header.Add(key, value)
	}
}

// WithQuery merges query parameters into the resolved URL.
func WithQuery(values url.Values) RequestOption {
	return func(o *requestOptions) {
		for k, vs := range values {
			for _, v := range vs {
				o.query.Add(k, v)
			}
		}
	}
}

// Application returns a copy of the bound application.
func (c *RequestClient) Application() Application {
	return *c.app.Clone()
}

// Token returns the token currently attached to calls.
func (c *RequestClient) Token() *AccessToken {
	c.mu.RLock()
	defer c.mu.RUnlock()
	copied := *c.token
	return &copied
}

// Get issues a GET.
func (c *RequestClient) Get(ctx context.Context, path string, opts ...RequestOption) (*commonhttp.Response, error) {
	return c.Do(ctx, http.MethodGet, path, opts...)
}

// Post issues a POST.
func (c *RequestClient) Post(ctx context.Context, path string, opts ...RequestOption) (*commonhttp.Response, error) {
	return c.Do(ctx, http.MethodPost, path, opts...)
}

// Put issues a PUT.
func (c *RequestClient) Put(ctx context.Context, path string, opts ...RequestOption) (*commonhttp.Response, error) {
	return c.Do(ctx, http.MethodPut, path, opts...)
}

// Patch issues a PATCH.
func (c *RequestClient) Patch(ctx context.Context, path string, opts ...RequestOption) (*commonhttp.Response, error) {
	return c.Do(ctx, http.MethodPatch, path, opts...)
}

// Delete issues a DELETE.
func (c *RequestClient) Delete(ctx context.Context, path string, opts ...RequestOption) (*commonhttp.Response, error) {
	return c.Do(ctx, http.MethodDelete, path, opts...)
}

// Do resolves path against the service host and performs the call inside
// the application's request breaker.
//
// Outcomes: the response (any status that is not an expiry signal), or an
// error of kind recovery_exhausted (signal persisted after one refresh, or
// the refresh failed), circuit_open, connection, or validation.
func (c *RequestClient) Do(ctx context.Context, method, path string, opts ...RequestOption) (*commonhttp.Response, error) {
	o := &requestOptions{header: http.Header{}, query: url.Values{}}
	for _, opt := range opts {
		opt(o)
	}
	if o.err != nil {
		return nil, errors.ValidationError("cannot encode request body: " + o.err.Error())
	}

	target, err := commonhttp.ResolveURL(c.app.ServiceHost, path)
	if err != nil {
		return nil, errors.ValidationError(err.Error())
	}
	if len(o.query) > 0 {
		u, _ := url.Parse(target)
		q := u.Query()
		for k, vs := range o.query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}

	ctx = logging.ContextWithRequestID(ctx, utils.NewRequestID())
	ctx = logging.ContextWithApplication(ctx, c.app.Name)
	logger := c.logger.WithContext(ctx)

	var resp *commonhttp.Response
	err = c.breaker.Execute(ctx, func() error {
		r, err := c.call(ctx, logger, method, target, o)
		resp = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// call is the per-call state machine: send -> (signal) refresh -> send.
// A token already past its usability window at attach time counts as the
// first signal and is refreshed before anything goes on the wire.
func (c *RequestClient) call(ctx context.Context, logger logging.Logger, method, target string, o *requestOptions) (*commonhttp.Response, error) {
	token := c.Token()
	refreshed := false

	if token.IsExpired(c.clock.Now()) {
		logger.Info("Carried token past its usability window, refreshing before send",
			logging.String("token", token.String()),
		)
		next, err := c.refresh(ctx, token)
		if err != nil {
			return nil, errors.RecoveryExhaustedError("token refresh failed", err)
		}
		token, refreshed = next, true
	}

	resp, err := c.send(ctx, method, target, o, token)
	if err != nil {
		return nil, err
	}
	if !c.signal(resp) {
		return resp, nil
	}

	if !refreshed {
		logger.Info("Expiry signal received, refreshing token",
			logging.String("method", method),
			logging.Int("status", resp.StatusCode),
		)
		next, err := c.refresh(ctx, token)
		if err != nil {
			logger.Warn("Token refresh failed after expiry signal",
				logging.Err(err),
			)
			return nil, errors.RecoveryExhaustedError("token refresh failed after expiry signal", err).
				WithContext("status", resp.StatusCode)
		}

		resp, err = c.send(ctx, method, target, o, next)
		if err != nil {
			return nil, err
		}
		if !c.signal(resp) {
			return resp, nil
		}
	}

	logger.Warn("Expiry signal persisted after token refresh",
		logging.String("method", method),
		logging.Int("status", resp.StatusCode),
	)
	return nil, errors.RecoveryExhaustedError("expiry signal persisted after token refresh", nil).
		WithContext("status", resp.StatusCode)
}

func (c *RequestClient) refresh(ctx context.Context, stale *AccessToken) (*AccessToken, error) {
	next, err := c.refresher.reauthenticate(ctx, c.app, stale)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.token == nil || !newer(c.token, next) {
		c.token = next
	}
	c.mu.Unlock()

	return next, nil
}

func (c *RequestClient) send(ctx context.Context, method, target string, o *requestOptions, token *AccessToken) (*commonhttp.Response, error) {
	var body io.Reader
	if o.body != nil {
		body = bytes.NewReader(o.body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.ValidationError("cannot build request: " + err.Error())
	}
	for k, vs := range o.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	token.OAuth2().SetAuthHeader(req)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.ConnectionError(method+" "+target+" failed", err)
	}

	buffered, err := commonhttp.ReadResponse(resp, started)
	if err != nil {
		return nil, errors.ConnectionError("response unreadable", err)
	}
	return buffered, nil
}
