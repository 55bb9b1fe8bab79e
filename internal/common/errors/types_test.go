package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name:     "basic error",
			appError: ConfigError("jwt-bearer application requires extra_settings.subject"),
			want:     "config: jwt-bearer application requires extra_settings.subject",
		},
		{
			name:     "error with code",
			appError: AuthError("token endpoint rejected credentials").WithCode("invalid_client"),
			want:     "authentication: token endpoint rejected credentials: code=invalid_client",
		},
		{
			name:     "error with cause",
			appError: ConnectionError("token request failed", errors.New("connection refused")),
			want:     "connection: token request failed: cause=connection refused",
		},
		{
			name:     "error with context",
			appError: TooFrequentReauthError("billing", 10*time.Second),
			want:     "reauth_too_frequent: re-authenticating too frequently for billing: context={retry_after=10s}",
		},
		{
			name:     "not found",
			appError: NotFoundError("application billing"),
			want:     "not_found: application billing not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appError.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := RecoveryExhaustedError("token refresh failed", cause)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is should find the cause through Unwrap")
	}
}

func TestIsType(t *testing.T) {
	fuse := TooFrequentReauthError("billing", 10*time.Second)
	exhausted := RecoveryExhaustedError("token refresh failed", fuse)
	wrapped := fmt.Errorf("calling billing: %w", exhausted)

	tests := []struct {
		name    string
		err     error
		errType ErrorType
		want    bool
	}{
		{"nil error", nil, ErrTypeConfig, false},
		{"plain error", errors.New("boom"), ErrTypeInternal, false},
		{"direct match", fuse, ErrTypeReauthTooFrequent, true},
		{"outer kind", exhausted, ErrTypeRecoveryExhausted, true},
		{"inner kind through cause", exhausted, ErrTypeReauthTooFrequent, true},
		{"through fmt wrapping", wrapped, ErrTypeReauthTooFrequent, true},
		{"absent kind", exhausted, ErrTypeCircuitOpen, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsType(tt.err, tt.errType); got != tt.want {
				t.Errorf("IsType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom"), ErrTypeInternal},
		{"provider response", ProviderResponseError("missing access_token"), ErrTypeProviderResponse},
		{"outermost wins", RecoveryExhaustedError("retry failed", ConnectionError("send", nil)), ErrTypeRecoveryExhausted},
		{"wrapped", fmt.Errorf("ctx: %w", CircuitOpenError("request:billing", 10*time.Second, nil)), ErrTypeCircuitOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetType(tt.err); got != tt.want {
				t.Errorf("GetType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCircuitOpenError(t *testing.T) {
	err := CircuitOpenError("request:billing", 10*time.Second, nil)

	if err.Type != ErrTypeCircuitOpen {
		t.Errorf("Type = %q, want %q", err.Type, ErrTypeCircuitOpen)
	}
	if err.Context["retry_after"] != "10s" {
		t.Errorf("retry_after = %v, want 10s", err.Context["retry_after"])
	}
}
