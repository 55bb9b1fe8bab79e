package oauth2

import (
	"encoding/json"
	"net/http"

	commonhttp "oauth2-client/internal/common/http"
)

// ExpirySignal inspects a resource server response and reports whether it
// means the bearer token has expired. The protocol defines no authoritative
// signal, so each provider gets an explicit predicate.
type ExpirySignal func(resp *commonhttp.Response) bool

// StatusSignal matches any of the given status codes.
func StatusSignal(codes ...int) ExpirySignal {
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return func(resp *commonhttp.Response) bool {
		_, ok := set[resp.StatusCode]
		return ok
	}
}

// UnauthorizedSignal treats 401 and 403 as expiry. Default for client-credentials.
var UnauthorizedSignal = StatusSignal(http.StatusUnauthorized, http.StatusForbidden)

// ForbiddenSignal treats only 403 as expiry.
var ForbiddenSignal = StatusSignal(http.StatusForbidden)

// InvalidGrantSignal matches a 400 whose JSON body has error "invalid_grant".
func InvalidGrantSignal(resp *commonhttp.Response) bool {
	if resp.StatusCode != http.StatusBadRequest {
		return false
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return false
	}
	return body.Error == "invalid_grant"
}

// ClientErrorSignal treats every 4xx as expiry. Broad: a malformed request
// or a 404 will also trigger a refresh. Only selected explicitly.
func ClientErrorSignal(resp *commonhttp.Response) bool {
	return resp.StatusCode >= 400 && resp.StatusCode < 500
}

// AnySignal matches when any of signals matches.
func AnySignal(signals ...ExpirySignal) ExpirySignal {
	return func(resp *commonhttp.Response) bool {
		for _, s := range signals {
			if s(resp) {
				return true
			}
		}
		return false
	}
}

// JWTBearerSignal is the jwt-bearer default: 400 invalid_grant or 401.
var JWTBearerSignal = AnySignal(InvalidGrantSignal, StatusSignal(http.StatusUnauthorized))

// SignalFor returns the predicate configured for app, falling back to the
// grant type default.
func SignalFor(app *Application) ExpirySignal {
	switch app.ExtraSettings.ExpirySignal {
	case SignalUnauthorized:
		return UnauthorizedSignal
	case SignalForbidden:
		return ForbiddenSignal
	case SignalInvalidGrant:
		return InvalidGrantSignal
	case SignalClientError:
		return ClientErrorSignal
	}

	if app.GrantType == GrantJWTBearer {
		return JWTBearerSignal
	}
	return UnauthorizedSignal
}
