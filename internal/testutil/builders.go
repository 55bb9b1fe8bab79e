package testutil

import (
	"time"

	"oauth2-client/internal/oauth2"
)

// ApplicationBuilder helps build test applications
type ApplicationBuilder struct {
	app *oauth2.Application
}

// NewApplicationBuilder creates a client-credentials application with
// placeholder endpoints.
func NewApplicationBuilder(name string) *ApplicationBuilder {
	return &ApplicationBuilder{
		app: &oauth2.Application{
			Name:         name,
			ClientID:     "client-" + name,
			ClientSecret: "secret-" + name,
			GrantType:    oauth2.GrantClientCredentials,
			ServiceHost:  "https://api.example.com/",
			TokenURI:     "https://auth.example.com/oauth/token",
			Scope:        "read write",
		},
	}
}

func (b *ApplicationBuilder) WithTokenURI(uri string) *ApplicationBuilder {
	b.app.TokenURI = uri
	return b
}

func (b *ApplicationBuilder) WithServiceHost(host string) *ApplicationBuilder {
	b.app.ServiceHost = host
	return b
}

func (b *ApplicationBuilder) WithSecret(secret string) *ApplicationBuilder {
	b.app.ClientSecret = secret
	return b
}

func (b *ApplicationBuilder) WithScope(scope string) *ApplicationBuilder {
	b.app.Scope = scope
	return b
}

// WithJWTBearer switches the grant type and sets the assertion subject.
func (b *ApplicationBuilder) WithJWTBearer(subject string) *ApplicationBuilder {
	b.app.GrantType = oauth2.GrantJWTBearer
	b.app.ExtraSettings.Subject = subject
	return b
}

func (b *ApplicationBuilder) WithExtra(key, value string) *ApplicationBuilder {
	if b.app.ExtraSettings.Extra == nil {
		b.app.ExtraSettings.Extra = make(map[string]string)
	}
	b.app.ExtraSettings.Extra[key] = value
	return b
}

func (b *ApplicationBuilder) Build() *oauth2.Application {
	copied := *b.app
	return &copied
}

// NewToken returns an unsaved token for application expiring at expires.
// A zero expires means no expiry.
func NewToken(application, value string, expires time.Time) *oauth2.AccessToken {
	token := &oauth2.AccessToken{
		Application: application,
		Token:       value,
		TokenType:   "Bearer",
		Scope:       "read write",
	}
	if !expires.IsZero() {
		token.Expires = &expires
	}
	return token
}
