// Package oauth2 manages OAuth 2.0 access tokens on the client side of
// server-to-server integrations and performs authenticated calls with them.
//
// # Overview
//
// An Application describes one registered identity with an authorization
// server. The Factory returns a RequestClient bound to a token that is valid
// now, fetching and persisting a new one when the latest token on record is
// missing or inside its expiry margin. The RequestClient attaches the token
// to every call, recognises responses that mean "token expired", refreshes
// once and retries the identical request once.
//
// # Grant Types
//
//   - client-credentials: form POST of client_id, client_secret and scope.
//   - jwt-bearer: RFC 7523 assertion signed with RS256. The application's
//     client_secret holds the private key, either as a PEM file path or as
//     inline PEM text. extra_settings.subject is required.
//
// # Cache Policy
//
// Tokens stop being usable TimeoutSeconds (60s) before their literal expiry.
// A token without an expiry is used until the resource server rejects it.
// Token history is append-only; the most recently created record wins.
//
// # Containment
//
// Each application has two breakers, "token:<name>" around the token
// endpoint and "request:<name>" around whole calls. Reactive
// re-authentication additionally passes through a ReauthFuse that refuses a
// second re-authentication of the same application within its window.
// Concurrent refreshes of one application collapse into a single fetch.
//
// # Usage
//
//	store := oauth2.NewMemoryStore(nil)
//	_ = store.SaveApplication(ctx, &oauth2.Application{
//	    Name:         "billing",
//	    ClientID:     "client-id",
//	    ClientSecret: "client-secret",
//	    GrantType:    oauth2.GrantClientCredentials,
//	    ServiceHost:  "https://api.example.com/",
//	    TokenURI:     "https://auth.example.com/oauth/token",
//	    Scope:        "read write",
//	})
//
//	factory := oauth2.NewFactory(store)
//	client, err := factory.GetClient(ctx, "billing")
//	if err != nil {
//	    return err
//	}
//	resp, err := client.Get(ctx, "v1/invoices", oauth2.WithQuery(url.Values{"limit": {"10"}}))
//
// # Errors
//
// Failures are *errors.AppError values from internal/common/errors. Callers
// branch with errors.IsType: config (raised before any I/O),
// provider_response, authentication, connection, recovery_exhausted,
// circuit_open, reauth_too_frequent and not_found.
//
// # Storage Backends
//
//   - MemoryStore: process-local.
//   - RedisStore: shared between processes.
//   - internal/storage/sqlite and internal/storage/postgres: SQL history with
//     optional client_secret encryption at rest.
package oauth2
