package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Session errors (AUTH-001 to AUTH-099)
	ErrCodeAccessTokenRejected ErrorCode = "AUTH-001"
	ErrCodeSessionExpired      ErrorCode = "AUTH-002"
	ErrCodeNoRefreshToken      ErrorCode = "AUTH-003"
	ErrCodeInvalidCredentials  ErrorCode = "AUTH-004"

	// Throttling errors (RATE-001 to RATE-099)
	ErrCodeRateLimited ErrorCode = "RATE-001"

	// Transport errors (NET-001 to NET-099)
	ErrCodeNetwork ErrorCode = "NET-001"

	// API errors (API-001 to API-099)
	ErrCodeRequestFailed     ErrorCode = "API-001"
	ErrCodeMalformedResponse ErrorCode = "API-002"

	// Storage errors (STORE-001 to STORE-099)
	ErrCodeStore ErrorCode = "STORE-001"
)

// DeskError is the error type returned by every layer that talks to the
// practice platform. Status, Path and Payload are populated when the error
// originates from an HTTP response.
type DeskError struct {
	Code        ErrorCode
	Message     string
	Status      int
	Path        string
	RetryAfter  time.Duration
	Payload     map[string]any
	Suggestions []string
	Cause       error
}

// Error implements the error interface
func (e *DeskError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Status != 0 {
		b.WriteString(fmt.Sprintf(" (status %d)", e.Status))
	}

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *DeskError) Unwrap() error {
	return e.Cause
}

// New creates a new DeskError
func New(code ErrorCode, message string) *DeskError {
	return &DeskError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new DeskError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *DeskError {
	return &DeskError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *DeskError) WithSuggestion(suggestion string) *DeskError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithResponse records the HTTP context the error came from
func (e *DeskError) WithResponse(status int, path string, payload map[string]any) *DeskError {
	e.Status = status
	e.Path = path
	e.Payload = payload
	return e
}

// As returns the first DeskError in err's chain.
func As(err error) (*DeskError, bool) {
	var de *DeskError
	if stderrors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether any DeskError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var de *DeskError
		if !stderrors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Cause
	}
	return false
}

// IsRateLimited reports whether err is a rate-limit response.
func IsRateLimited(err error) bool {
	return HasCode(err, ErrCodeRateLimited)
}

// IsTerminal reports whether err ended the session (refresh impossible).
func IsTerminal(err error) bool {
	return HasCode(err, ErrCodeSessionExpired) || HasCode(err, ErrCodeNoRefreshToken)
}

// IsNetwork reports whether err is a transport-level failure.
func IsNetwork(err error) bool {
	return HasCode(err, ErrCodeNetwork)
}

// StatusOf returns the HTTP status attached to err, or 0.
func StatusOf(err error) int {
	if de, ok := As(err); ok {
		return de.Status
	}
	return 0
}

// Common error constructors for frequently used errors

// NewSessionExpiredError creates the terminal error handed to every caller
// waiting on a failed refresh.
func NewSessionExpiredError(cause error) *DeskError {
	return Wrap(ErrCodeSessionExpired, "session expired", cause).
		WithSuggestion("Run 'practicedesk auth login' to sign in again")
}

// NewNoRefreshTokenError creates the error for a refresh attempted without
// a stored refresh token.
func NewNoRefreshTokenError() *DeskError {
	return New(ErrCodeNoRefreshToken, "no refresh token available")
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(path string, retryAfter time.Duration) *DeskError {
	msg := fmt.Sprintf("rate limit exceeded for %s", path)
	if retryAfter > 0 {
		msg += fmt.Sprintf(" (retry after: %s)", retryAfter)
	}

	e := New(ErrCodeRateLimited, msg).
		WithSuggestion("Wait before retrying the request")
	e.Path = path
	e.RetryAfter = retryAfter
	return e
}

// NewNetworkError creates a transport failure error
func NewNetworkError(path string, cause error) *DeskError {
	e := Wrap(ErrCodeNetwork, fmt.Sprintf("request to %s failed", path), cause).
		WithSuggestion("Check your network connection and the API base URL")
	e.Path = path
	return e
}

// NewStoreError creates a session store failure error
func NewStoreError(op string, cause error) *DeskError {
	return Wrap(ErrCodeStore, fmt.Sprintf("session store %s failed", op), cause)
}
