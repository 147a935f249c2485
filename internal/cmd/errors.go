package cmd

import (
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with actionable recovery suggestions
type ErrorWithSuggestion struct {
	Message     string
	Suggestions []string
	err         error
}

func (e *ErrorWithSuggestion) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, s := range e.Suggestions {
			b.WriteString("\n  • ")
			b.WriteString(s)
		}
	}

	if e.err != nil {
		b.WriteString("\n\nDetails: ")
		b.WriteString(e.err.Error())
	}

	return b.String()
}

func (e *ErrorWithSuggestion) Unwrap() error {
	return e.err
}

// NewErrorWithSuggestions creates an error with recovery suggestions
func NewErrorWithSuggestions(msg string, err error, suggestions ...string) error {
	return &ErrorWithSuggestion{
		Message:     msg,
		Suggestions: suggestions,
		err:         err,
	}
}

// ConfigLoadError creates a helpful error for configuration failures
func ConfigLoadError(path string, err error) error {
	where := "the environment"
	if path != "" {
		where = fmt.Sprintf("%q", path)
	}
	return NewErrorWithSuggestions(
		fmt.Sprintf("Failed to load configuration from %s", where),
		err,
		"Check ./practicedesk.yaml or the file named by $CONFIG_PATH",
		"Run 'practicedesk config env' to list the supported environment variables",
	)
}

// MissingInputError reports a value that must be passed as a flag because
// prompting is not possible.
func MissingInputError(flag string) error {
	return NewErrorWithSuggestions(
		fmt.Sprintf("required flag(s) \"%s\" not set", flag),
		nil,
		fmt.Sprintf("Pass --%s, or run in an interactive terminal to be prompted", flag),
	)
}
