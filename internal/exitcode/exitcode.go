package exitcode

import (
	"os"
	"strings"

	"github.com/felixgeelhaar/practicedesk/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// AuthError indicates a rejected login or an ended session
	AuthError = 5

	// NetworkError indicates a network connectivity issue
	NetworkError = 6

	// RateLimited indicates the platform asked the client to slow down
	RateLimited = 7

	// Interrupted indicates the user cancelled the operation
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}

	code := DetermineExitCode(err)
	Exit(code)
}

// DetermineExitCode maps an error to an exit code. Coded errors are matched
// by code; cobra's usage errors are matched by message.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	switch {
	case errors.IsRateLimited(err):
		return RateLimited
	case errors.IsNetwork(err):
		return NetworkError
	case errors.IsTerminal(err),
		errors.HasCode(err, errors.ErrCodeInvalidCredentials),
		errors.HasCode(err, errors.ErrCodeAccessTokenRejected):
		return AuthError
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts ") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case RateLimited:
		return "Rate limited"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
