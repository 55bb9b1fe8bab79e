package oauth2

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"oauth2-client/internal/common/errors"
	"oauth2-client/internal/crypto"
)

// AssertionLifetime is how far in the future the assertion's exp claim is
// set. Providers cap it (Salesforce allows at most three minutes).
const AssertionLifetime = 150 * time.Second

// JWTBearerGrantType is the grant_type value of the assertion exchange.
const JWTBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// assertionHeader is fixed; it is not marshalled so the bytes never change.
const assertionHeader = `{"alg":"RS256"}`

// assertionClaims field order is the serialized order.
type assertionClaims struct {
	Issuer   string `json:"iss"`
	Subject  string `json:"sub"`
	Audience string `json:"aud"`
	Expiry   int64  `json:"exp"`
}

// BuildAssertion returns the signed JWT-Bearer assertion for app at now:
// base64url(header).base64url(claims).base64url(signature), unpadded. The
// output is deterministic for fixed inputs.
func BuildAssertion(app *Application, signer crypto.Signer, now time.Time) (string, error) {
	subject := strings.TrimSpace(app.ExtraSettings.Subject)
	if subject == "" {
		return "", errors.ConfigError("jwt-bearer application requires extra_settings.subject").
			WithContext("application", app.Name)
	}

	audience, err := app.Audience()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(assertionClaims{
		Issuer:   app.ClientID,
		Subject:  subject,
		Audience: audience,
		Expiry:   now.Add(AssertionLifetime).Unix(),
	})
	if err != nil {
		return "", errors.InternalError("failed to encode assertion claims", err)
	}

	signingInput := encodeSegment([]byte(assertionHeader)) + "." + encodeSegment(payload)

	signature, err := signer.Sign([]byte(signingInput), app.ClientSecret)
	if err != nil {
		return "", err
	}

	return signingInput + "." + encodeSegment(signature), nil
}

func encodeSegment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
