// Package errors defines the typed error taxonomy shared by every component.
//
// Each failure carries an ErrorType so callers can branch on the kind of
// failure (configuration, provider response, containment trip, transport)
// instead of matching message text.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeConnection represents transport-level failures
	ErrTypeConnection ErrorType = "connection"
	// ErrTypeValidation represents invalid caller input
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeConfig represents invalid or incomplete application configuration
	ErrTypeConfig ErrorType = "config"
	// ErrTypeAuth represents a token endpoint rejecting the presented credentials
	ErrTypeAuth ErrorType = "authentication"
	// ErrTypeProviderResponse represents a token response missing mandatory fields
	ErrTypeProviderResponse ErrorType = "provider_response"
	// ErrTypeRecoveryExhausted represents a call that still failed after one refresh-and-retry
	ErrTypeRecoveryExhausted ErrorType = "recovery_exhausted"
	// ErrTypeCircuitOpen represents a call rejected by an open circuit breaker
	ErrTypeCircuitOpen ErrorType = "circuit_open"
	// ErrTypeReauthTooFrequent represents a re-authentication refused by the safety fuse
	ErrTypeReauthTooFrequent ErrorType = "reauth_too_frequent"
	// ErrTypeNotFound represents resource not found errors
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeInternal represents internal system errors
	ErrTypeInternal ErrorType = "internal"
	// ErrTypeTimeout represents timeout errors
	ErrTypeTimeout ErrorType = "timeout"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// ConnectionError creates a new transport error
func ConnectionError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeConnection,
		Message: msg,
		Cause:   cause,
	}
}

// ValidationError creates a new validation error
func ValidationError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeValidation,
		Message: msg,
	}
}

// ConfigError creates a new configuration error. Configuration errors are
// raised before any network call and are never retried.
func ConfigError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeConfig,
		Message: msg,
	}
}

// AuthError creates a new authentication error
func AuthError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeAuth,
		Message: msg,
	}
}

// ProviderResponseError creates an error for a malformed token endpoint response
func ProviderResponseError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeProviderResponse,
		Message: msg,
	}
}

// RecoveryExhaustedError creates an error for a call that failed again after
// its single refresh-and-retry cycle.
func RecoveryExhaustedError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeRecoveryExhausted,
		Message: msg,
		Cause:   cause,
	}
}

// CircuitOpenError creates an error for a call rejected by an open breaker.
// retryAfter is the breaker cool-down.
func CircuitOpenError(breaker string, retryAfter time.Duration, cause error) *AppError {
	return (&AppError{
		Type:    ErrTypeCircuitOpen,
		Message: fmt.Sprintf("circuit breaker '%s' is open", breaker),
		Cause:   cause,
	}).WithContext("retry_after", retryAfter.String())
}

// TooFrequentReauthError creates an error for a refused re-authentication.
func TooFrequentReauthError(application string, window time.Duration) *AppError {
	return (&AppError{
		Type:    ErrTypeReauthTooFrequent,
		Message: fmt.Sprintf("re-authenticating too frequently for %s", application),
	}).WithContext("retry_after", window.String())
}

// NotFoundError creates a new not found error
func NotFoundError(resource string) *AppError {
	return &AppError{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// InternalError creates a new internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeInternal,
		Message: msg,
		Cause:   cause,
	}
}

// TimeoutError creates a new timeout error
func TimeoutError(operation string) *AppError {
	return &AppError{
		Type:    ErrTypeTimeout,
		Message: fmt.Sprintf("timeout during %s", operation),
	}
}

// IsType reports whether any AppError in err's chain has the given type.
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Type == errType {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// GetType returns the type of the outermost AppError, or ErrTypeInternal for
// errors outside the taxonomy.
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return ErrTypeInternal
	}

	return appErr.Type
}
