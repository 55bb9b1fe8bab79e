package oauth2

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"oauth2-client/internal/common/errors"
	"oauth2-client/internal/common/logging"
	"oauth2-client/internal/common/utils"
)

// AccessTokenFromRaw normalizes a token endpoint response body into an
// AccessToken for app.
//
//   - access_token and token_type are mandatory; a response missing either is
//     logged with its full payload and rejected with a provider_response error.
//   - scope defaults to "". A granted set that differs from the requested set
//     is logged as a notice and accepted.
//   - expiry comes from expires_in (seconds from now), else expires_at (Unix
//     epoch, UTC), else stays unknown.
//   - a resolved expiry at or before now is rejected as a provider_response
//     error. Such a token cannot have been issued correctly.
func AccessTokenFromRaw(app *Application, body []byte, now time.Time, logger logging.Logger) (*AccessToken, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var raw map[string]interface{}
	if err := decoder.Decode(&raw); err != nil || raw == nil {
		logger.Error("Token response is not a JSON object", err,
			logging.String("application", app.Name),
			logging.String("raw", string(body)),
		)
		return nil, errors.ProviderResponseError("token response is not a JSON object").
			WithContext("application", app.Name)
	}

	accessToken, _ := raw["access_token"].(string)
	tokenType, _ := raw["token_type"].(string)

	var missing []string
	if accessToken == "" {
		missing = append(missing, "access_token")
	}
	if tokenType == "" {
		missing = append(missing, "token_type")
	}
	if len(missing) > 0 {
		logger.Error("Token response missing mandatory fields", nil,
			logging.String("application", app.Name),
			logging.Any("missing", missing),
			logging.String("raw", string(body)),
		)
		return nil, errors.ProviderResponseError("token response missing "+strings.Join(missing, ", ")).
			WithContext("application", app.Name)
	}

	scope, _ := raw["scope"].(string)
	requested := app.RequestedScopes()
	received := scopeSet(scope)
	if !sameScopes(requested, received) {
		logger.Warn("Received different scope than requested",
			logging.String("application", app.Name),
			logging.Strings("requested", requested),
			logging.Strings("received", received),
		)
	}

	expires, err := resolveExpiry(raw, now)
	if err != nil {
		logger.Error("Token response carries an unreadable expiry", err,
			logging.String("application", app.Name),
			logging.String("raw", string(body)),
		)
		return nil, errors.ProviderResponseError(err.Error()).WithContext("application", app.Name)
	}
	if expires != nil && !expires.After(now) {
		logger.Error("Token response is already expired on arrival", nil,
			logging.String("application", app.Name),
			logging.String("expires", expires.Format(time.RFC3339)),
			logging.String("now", now.Format(time.RFC3339)),
			logging.String("raw", string(body)),
		)
		return nil, errors.ProviderResponseError("token expired on arrival").
			WithContext("application", app.Name).
			WithContext("expires", expires.Format(time.RFC3339))
	}

	rawCopy := make(json.RawMessage, len(body))
	copy(rawCopy, body)

	return &AccessToken{
		Application: app.Name,
		Token:       accessToken,
		TokenType:   tokenType,
		Scope:       strings.Join(strings.Fields(scope), " "),
		Expires:     expires,
		Raw:         rawCopy,
	}, nil
}

// maxTokenLifetime caps a resolved expiry. Larger values overflow
// time.Duration and the stores' timestamp encodings.
const maxTokenLifetime = 100 * 365 * 24 * time.Hour

func resolveExpiry(raw map[string]interface{}, now time.Time) (*time.Time, error) {
	limit := now.Add(maxTokenLifetime).UTC()

	if value, ok := raw["expires_in"]; ok && value != nil {
		seconds, err := numeric(value)
		if err != nil {
			return nil, fmt.Errorf("expires_in: %w", err)
		}
		if seconds >= maxTokenLifetime.Seconds() {
			return &limit, nil
		}
		expires := now.Add(time.Duration(seconds * float64(time.Second))).UTC()
		return &expires, nil
	}

	if value, ok := raw["expires_at"]; ok && value != nil {
		epoch, err := numeric(value)
		if err != nil {
			return nil, fmt.Errorf("expires_at: %w", err)
		}
		if epoch >= utils.ToEpoch(limit) {
			return &limit, nil
		}
		expires := utils.FromEpoch(epoch)
		return &expires, nil
	}

	return nil, nil
}

// numeric accepts JSON numbers and numeric strings; some providers quote them.
func numeric(value interface{}) (float64, error) {
	var (
		f   float64
		err error
	)
	switch v := value.(type) {
	case json.Number:
		f, err = v.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", value)
	}
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a finite number", value)
	}
	return f, nil
}
