package auth

import (
	"fmt"

	"github.com/felixgeelhaar/practicedesk/internal/errors"
)

// User-facing fallbacks used when the backend gave no usable message.
const (
	MessageRateLimited    = "Too many attempts. Please wait a moment and try again."
	MessageNetwork        = "Unable to reach the server. Check your connection and try again."
	MessageSessionExpired = "Your session has expired. Please sign in again."
	MessageFallback       = "Something went wrong. Please try again."
)

// AuthError is the structured failure returned by the controller's
// user-facing operations. Message is safe to show as is; Cause keeps the
// transport-level detail.
type AuthError struct {
	Code    errors.ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// NewAuthError normalizes err into an AuthError.
func NewAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*AuthError); ok {
		return ae
	}

	code := errors.ErrCodeRequestFailed
	if de, ok := errors.As(err); ok {
		code = de.Code
	}
	return &AuthError{
		Code:    code,
		Message: Message(err),
		Cause:   err,
	}
}

// extractor pulls a display message out of a loosely typed error payload.
type extractor func(payload map[string]any) string

// messageExtractors are tried in order; the first non-empty result wins.
var messageExtractors = []extractor{
	nestedErrorMessage,
	topLevelMessage,
	errorString,
}

func nestedErrorMessage(payload map[string]any) string {
	nested, ok := payload["error"].(map[string]any)
	if !ok {
		return ""
	}
	msg, _ := nested["message"].(string)
	return msg
}

func topLevelMessage(payload map[string]any) string {
	msg, _ := payload["message"].(string)
	return msg
}

func errorString(payload map[string]any) string {
	msg, _ := payload["error"].(string)
	return msg
}

// Message returns the message to show a user for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if ae, ok := err.(*AuthError); ok {
		return ae.Message
	}

	if de, ok := errors.As(err); ok && de.Payload != nil {
		for _, extract := range messageExtractors {
			if msg := extract(de.Payload); msg != "" {
				return msg
			}
		}
	}

	switch {
	case errors.IsRateLimited(err):
		return MessageRateLimited
	case errors.IsNetwork(err):
		return MessageNetwork
	case errors.IsTerminal(err):
		return MessageSessionExpired
	}
	return MessageFallback
}
