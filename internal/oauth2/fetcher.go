package oauth2

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"oauth2-client/internal/common/errors"
	commonhttp "oauth2-client/internal/common/http"
	"oauth2-client/internal/common/logging"
	"oauth2-client/internal/common/utils"
	"oauth2-client/internal/crypto"
)

// HTTPDoer is the transport collaborator. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher exchanges an application's credentials for a fresh token.
type Fetcher interface {
	FetchToken(ctx context.Context, app *Application) (*AccessToken, error)
}

// TokenFetcher implements Fetcher for the client-credentials and jwt-bearer
// grant types. The returned token is normalized but not persisted.
type TokenFetcher struct {
	client HTTPDoer
	signer crypto.Signer
	clock  utils.Clock
	logger logging.Logger
}

// FetcherOption configures a TokenFetcher.
type FetcherOption func(*TokenFetcher)

// WithFetcherHTTPClient sets the transport used for token endpoint calls.
func WithFetcherHTTPClient(client HTTPDoer) FetcherOption {
	return func(f *TokenFetcher) { f.client = client }
}

// WithSigner sets the assertion signer.
func WithSigner(signer crypto.Signer) FetcherOption {
	return func(f *TokenFetcher) { f.signer = signer }
}

// WithFetcherClock sets the clock used for claims and expiry arithmetic.
func WithFetcherClock(clock utils.Clock) FetcherOption {
	return func(f *TokenFetcher) { f.clock = clock }
}

// WithFetcherLogger sets the logger.
func WithFetcherLogger(logger logging.Logger) FetcherOption {
	return func(f *TokenFetcher) { f.logger = logger }
}

// NewTokenFetcher creates a fetcher. Defaults: 30s bounded HTTP client,
// RS256 file/PEM signer, system clock, global logger.
func NewTokenFetcher(opts ...FetcherOption) *TokenFetcher {
	f := &TokenFetcher{
		client: commonhttp.NewHTTPClientWithTimeout(30 * time.Second),
		signer: crypto.NewRS256Signer(),
		clock:  utils.SystemClock{},
		logger: logging.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchToken implements Fetcher. The algorithm is chosen strictly from the
// application's grant type; configuration problems fail before any I/O.
func (f *TokenFetcher) FetchToken(ctx context.Context, app *Application) (*AccessToken, error) {
	if err := app.Validate(); err != nil {
		return nil, err
	}

	var (
		form url.Values
		err  error
	)
	switch app.GrantType {
	case GrantClientCredentials:
		form = clientCredentialsForm(app)
	case GrantJWTBearer:
		form, err = f.jwtBearerForm(app)
	default:
		err = errors.ConfigError(fmt.Sprintf("unsupported grant type %q", app.GrantType))
	}
	if err != nil {
		return nil, err
	}

	body, err := f.postForm(ctx, app, form)
	if err != nil {
		return nil, err
	}

	token, err := AccessTokenFromRaw(app, body, f.clock.Now(), f.logger)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("Token obtained",
		logging.String("application", app.Name),
		logging.String("grant_type", string(app.GrantType)),
		logging.String("token", token.String()),
	)
	return token, nil
}

func clientCredentialsForm(app *Application) url.Values {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", app.ClientID)
	form.Set("client_secret", app.ClientSecret)
	if scope := strings.TrimSpace(app.Scope); scope != "" {
		form.Set("scope", scope)
	}
	return form
}

func (f *TokenFetcher) jwtBearerForm(app *Application) (url.Values, error) {
	assertion, err := BuildAssertion(app, f.signer, f.clock.Now())
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", JWTBearerGrantType)
	form.Set("assertion", assertion)
	return form, nil
}

// tokenErrorResponse is the RFC 6749 §5.2 error body.
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (f *TokenFetcher) postForm(ctx context.Context, app *Application, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, app.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("cannot build token request: %v", err)).
			WithContext("application", app.Name)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.ConnectionError("token request failed", err).
			WithContext("application", app.Name)
	}

	buffered, err := commonhttp.ReadResponse(resp, started)
	if err != nil {
		return nil, errors.ConnectionError("token response unreadable", err).
			WithContext("application", app.Name)
	}

	if buffered.IsSuccess() {
		return buffered.Body, nil
	}

	var tokenErr tokenErrorResponse
	_ = buffered.JSON(&tokenErr)

	f.logger.Warn("Token endpoint rejected request",
		logging.String("application", app.Name),
		logging.Int("status", buffered.StatusCode),
		logging.String("error", tokenErr.Error),
		logging.String("description", tokenErr.ErrorDescription),
	)

	if buffered.StatusCode >= http.StatusInternalServerError {
		return nil, errors.ConnectionError(
			fmt.Sprintf("token endpoint unavailable (status %d)", buffered.StatusCode), nil).
			WithContext("application", app.Name)
	}

	msg := fmt.Sprintf("token endpoint returned status %d", buffered.StatusCode)
	if tokenErr.ErrorDescription != "" {
		msg += ": " + tokenErr.ErrorDescription
	}
	return nil, errors.AuthError(msg).
		WithCode(tokenErr.Error).
		WithContext("application", app.Name).
		WithContext("status", buffered.StatusCode)
}
