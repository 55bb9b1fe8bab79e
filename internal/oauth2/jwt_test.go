package oauth2

import (
	"encoding/base64"
	"strconv"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oauth2-client/internal/common/errors"
	"oauth2-client/internal/crypto"
)

func jwtBearerApp(keyRef string) *Application {
	return &Application{
		Name:          "crm",
		ClientID:      "3MVG9-consumer-key",
		ClientSecret:  keyRef,
		GrantType:     GrantJWTBearer,
		ServiceHost:   "https://instance.example.com/",
		TokenURI:      "https://login.example.com/services/oauth2/token",
		ExtraSettings: ExtraSettings{Subject: "integration@example.com"},
	}
}

func TestBuildAssertion(t *testing.T) {
	key, pemText := generatePEM(t)
	app := jwtBearerApp(pemText)
	signer := crypto.NewRS256Signer()

	assertion, err := BuildAssertion(app, signer, testNow)
	require.NoError(t, err)

	parts := strings.Split(assertion, ".")
	require.Len(t, parts, 3)
	assert.NotContains(t, assertion, "=")

	t.Run("header", func(t *testing.T) {
		header, err := base64.RawURLEncoding.DecodeString(parts[0])
		require.NoError(t, err)
		assert.Equal(t, `{"alg":"RS256"}`, string(header))
	})

	t.Run("claims", func(t *testing.T) {
		claims, err := base64.RawURLEncoding.DecodeString(parts[1])
		require.NoError(t, err)

		exp := strconv.FormatInt(testNow.Add(AssertionLifetime).Unix(), 10)
		assert.Equal(t,
			`{"iss":"3MVG9-consumer-key","sub":"integration@example.com","aud":"https://login.example.com","exp":`+exp+`}`,
			string(claims))
	})

	t.Run("signature verifies", func(t *testing.T) {
		sig, err := base64.RawURLEncoding.DecodeString(parts[2])
		require.NoError(t, err)
		assert.NoError(t, jwt.SigningMethodRS256.Verify(parts[0]+"."+parts[1], sig, &key.PublicKey))
	})

	t.Run("deterministic", func(t *testing.T) {
		again, err := BuildAssertion(app, signer, testNow)
		require.NoError(t, err)
		assert.Equal(t, assertion, again)
	})

	t.Run("audience override", func(t *testing.T) {
		overridden := jwtBearerApp(pemText)
		overridden.ExtraSettings.Audience = "https://login.salesforce.com"

		out, err := BuildAssertion(overridden, signer, testNow)
		require.NoError(t, err)

		claims, err := base64.RawURLEncoding.DecodeString(strings.Split(out, ".")[1])
		require.NoError(t, err)
		assert.Contains(t, string(claims), `"aud":"https://login.salesforce.com"`)
	})
}

func TestBuildAssertion_ConfigErrors(t *testing.T) {
	_, pemText := generatePEM(t)
	signer := crypto.NewRS256Signer()

	t.Run("missing subject", func(t *testing.T) {
		app := jwtBearerApp(pemText)
		app.ExtraSettings.Subject = "  "

		_, err := BuildAssertion(app, signer, testNow)
		assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	})

	t.Run("unreadable key", func(t *testing.T) {
		app := jwtBearerApp("/nonexistent/private.pem")

		_, err := BuildAssertion(app, signer, testNow)
		assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	})
}
