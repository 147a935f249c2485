package exitcode

import (
	"fmt"
	"testing"
	"time"

	"github.com/felixgeelhaar/practicedesk/internal/errors"
)

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		expected int
	}{
		{"Success", Success, 0},
		{"GeneralError", GeneralError, 1},
		{"UsageError", UsageError, 2},
		{"AuthError", AuthError, 5},
		{"NetworkError", NetworkError, 6},
		{"RateLimited", RateLimited, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code != tt.expected {
				t.Errorf("Exit code %s = %d, want %d", tt.name, tt.code, tt.expected)
			}
		})
	}
}

func TestDetermineExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "nil error returns success",
			err:      nil,
			expected: Success,
		},
		{
			name:     "session expired",
			err:      errors.NewSessionExpiredError(errors.NewNoRefreshTokenError()),
			expected: AuthError,
		},
		{
			name:     "wrong password",
			err:      errors.New(errors.ErrCodeInvalidCredentials, "Invalid email or password"),
			expected: AuthError,
		},
		{
			name:     "rate limited",
			err:      fmt.Errorf("login: %w", errors.NewRateLimitError("/auth/login", time.Second)),
			expected: RateLimited,
		},
		{
			name:     "network",
			err:      errors.NewNetworkError("/auth/profile", fmt.Errorf("dial tcp: connection refused")),
			expected: NetworkError,
		},
		{
			name:     "unknown flag",
			err:      fmt.Errorf("unknown flag: --pasword"),
			expected: UsageError,
		},
		{
			name:     "arg count",
			err:      fmt.Errorf("accepts 1 arg(s), received 0"),
			expected: UsageError,
		},
		{
			name:     "request failed",
			err:      errors.New(errors.ErrCodeRequestFailed, "Patient not found").WithResponse(404, "/patients/x", nil),
			expected: GeneralError,
		},
		{
			name:     "token word alone is not an auth error",
			err:      fmt.Errorf("could not write token cache"),
			expected: GeneralError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineExitCode(tt.err); got != tt.expected {
				t.Errorf("DetermineExitCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestGetExitCodeDescription(t *testing.T) {
	for _, code := range []int{Success, GeneralError, UsageError, AuthError, NetworkError, RateLimited, Interrupted} {
		if GetExitCodeDescription(code) == "Unknown error" {
			t.Errorf("code %d has no description", code)
		}
	}
	if GetExitCodeDescription(42) != "Unknown error" {
		t.Error("unexpected description for unknown code")
	}
}
