package oauth2

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	xoauth2 "golang.org/x/oauth2"
	"oauth2-client/internal/common/errors"
)

// TimeoutSeconds is the safety margin subtracted from a token's literal
// expiry. A token stops being usable this long before it expires so that
// in-flight requests do not carry a token that dies on the wire.
const TimeoutSeconds = 60

// ExpiryMargin is TimeoutSeconds as a duration.
const ExpiryMargin = TimeoutSeconds * time.Second

// GrantType selects the protocol exchange used to obtain tokens.
type GrantType string

const (
	// GrantClientCredentials is the backend-application client_credentials exchange.
	GrantClientCredentials GrantType = "client-credentials"
	// GrantJWTBearer is the RFC 7523 JWT-Bearer assertion exchange.
	GrantJWTBearer GrantType = "jwt-bearer"
)

// Valid reports whether g is a supported grant type.
func (g GrantType) Valid() bool {
	return g == GrantClientCredentials || g == GrantJWTBearer
}

// Expiry signal policy names accepted in ExtraSettings.ExpirySignal.
const (
	SignalUnauthorized = "unauthorized"
	SignalForbidden    = "forbidden"
	SignalInvalidGrant = "invalid_grant"
	SignalClientError  = "client_error"
)

// ExtraSettings holds provider-specific options. Known options are typed;
// anything else goes into Extra.
type ExtraSettings struct {
	// Subject is the JWT "sub" claim. Required for jwt-bearer.
	Subject string `json:"subject,omitempty" yaml:"subject,omitempty"`
	// Audience overrides the "aud" claim derived from the token URI.
	Audience string `json:"audience,omitempty" yaml:"audience,omitempty"`
	// ExpirySignal names the response predicate that marks a token as
	// expired. Empty selects the grant type default.
	ExpirySignal string `json:"expiry_signal,omitempty" yaml:"expiry_signal,omitempty"`
	// Extra is the open key-value escape hatch.
	Extra map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Application is a client's registered identity with one authorization
// server. It is read-only from the token manager's point of view.
type Application struct {
	Name          string        `json:"name"`
	ClientID      string        `json:"client_id"`
	ClientSecret  string        `json:"client_secret"`
	GrantType     GrantType     `json:"authorization_grant_type"`
	ServiceHost   string        `json:"service_host"`
	TokenURI      string        `json:"token_uri"`
	Scope         string        `json:"scope,omitempty"`
	ExtraSettings ExtraSettings `json:"extra_settings"`
}

// Validate checks the fields required by the application's grant type. It
// runs before any network call; failures are configuration errors.
func (a *Application) Validate() error {
	if a.Name == "" {
		return errors.ConfigError("application name is required")
	}
	if !a.GrantType.Valid() {
		return errors.ConfigError(fmt.Sprintf("unsupported grant type %q", a.GrantType)).
			WithContext("application", a.Name)
	}
	if a.ClientID == "" {
		return errors.ConfigError("client_id is required").WithContext("application", a.Name)
	}
	if a.ClientSecret == "" {
		return errors.ConfigError("client_secret is required").WithContext("application", a.Name)
	}
	if err := requireAbsoluteURL("token_uri", a.TokenURI); err != nil {
		return err.WithContext("application", a.Name)
	}
	if err := requireAbsoluteURL("service_host", a.ServiceHost); err != nil {
		return err.WithContext("application", a.Name)
	}
	if a.GrantType == GrantJWTBearer && strings.TrimSpace(a.ExtraSettings.Subject) == "" {
		return errors.ConfigError("jwt-bearer application requires extra_settings.subject").
			WithContext("application", a.Name)
	}
	switch a.ExtraSettings.ExpirySignal {
	case "", SignalUnauthorized, SignalForbidden, SignalInvalidGrant, SignalClientError:
	default:
		return errors.ConfigError(fmt.Sprintf("unknown expiry_signal %q", a.ExtraSettings.ExpirySignal)).
			WithContext("application", a.Name)
	}
	return nil
}

func requireAbsoluteURL(field, raw string) *errors.AppError {
	if raw == "" {
		return errors.ConfigError(field + " is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.ConfigError(fmt.Sprintf("%s %q is not an absolute URL", field, raw))
	}
	return nil
}

// Clone returns a deep copy of the application.
func (a *Application) Clone() *Application {
	clone := *a
	if a.ExtraSettings.Extra != nil {
		clone.ExtraSettings.Extra = make(map[string]string, len(a.ExtraSettings.Extra))
		for k, v := range a.ExtraSettings.Extra {
			clone.ExtraSettings.Extra[k] = v
		}
	}
	return &clone
}

// RequestedScopes returns the requested scope as a set.
func (a *Application) RequestedScopes() []string {
	return scopeSet(a.Scope)
}

// Audience returns the JWT "aud" claim: the configured override, or the
// scheme://host of the token URI.
func (a *Application) Audience() (string, error) {
	if a.ExtraSettings.Audience != "" {
		return a.ExtraSettings.Audience, nil
	}
	u, err := url.Parse(a.TokenURI)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", errors.ConfigError(fmt.Sprintf("token_uri %q is not an absolute URL", a.TokenURI))
	}
	return u.Scheme + "://" + u.Host, nil
}

// AccessToken is one token obtained for an Application. Records are never
// mutated; a newer record supersedes older ones.
type AccessToken struct {
	// ID is assigned by the store, monotonically increasing.
	ID int64 `json:"id"`
	// Application is the owning application's name.
	Application string `json:"application"`
	Token       string `json:"token"`
	TokenType   string `json:"token_type"`
	// Scope is the granted scope, space-delimited, possibly empty.
	Scope string `json:"scope"`
	// Expires is nil when the provider gave no expiry.
	Expires *time.Time `json:"expires,omitempty"`
	// Raw is the unmodified provider response.
	Raw json.RawMessage `json:"raw,omitempty"`
	// CreatedAt is assigned by the store.
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired reports whether the token is outside its usability window at
// now. A token with no expiry is never expired.
func (t *AccessToken) IsExpired(now time.Time) bool {
	if t.Expires == nil {
		return false
	}
	return !now.Before(t.Expires.Add(-ExpiryMargin))
}

// NeedsRefresh applies the cache policy to the most recent token on record.
func NeedsRefresh(latest *AccessToken, now time.Time) bool {
	return latest == nil || latest.IsExpired(now)
}

// OAuth2 converts the token for use with golang.org/x/oauth2 helpers.
func (t *AccessToken) OAuth2() *xoauth2.Token {
	tok := &xoauth2.Token{
		AccessToken: t.Token,
		TokenType:   t.TokenType,
	}
	if t.Expires != nil {
		tok.Expiry = *t.Expires
	}
	return tok
}

// String describes the token without revealing it.
func (t *AccessToken) String() string {
	expires := "never"
	if t.Expires != nil {
		expires = t.Expires.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("AccessToken(id=%d, application=%s, type=%s, scope=%q, expires=%s)",
		t.ID, t.Application, t.TokenType, t.Scope, expires)
}

// scopeSet splits a space-delimited scope into a sorted, de-duplicated list.
func scopeSet(scope string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, s := range strings.Fields(scope) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func sameScopes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
