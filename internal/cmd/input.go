package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/felixgeelhaar/practicedesk/internal/tui"
)

// Replaced in tests.
var (
	shouldPrompt      = tui.ShouldPrompt
	promptString      = tui.PromptForString
	promptCredentials = tui.PromptForCredentials
)

// valueOrPrompt returns value when set. Otherwise it asks with p, or fails
// naming flag when prompting is not possible.
func valueOrPrompt(value, flag string, p tui.Prompt) (string, error) {
	if value != "" {
		return value, nil
	}
	if !shouldPrompt() {
		return "", MissingInputError(flag)
	}
	p.Required = true
	return promptString(p)
}

// secretOrPrompt is valueOrPrompt for values that must not echo.
func secretOrPrompt(value, flag, message string) (string, error) {
	return valueOrPrompt(value, flag, tui.Prompt{Message: message, Secret: true})
}

// readSecretLine reads the first line of r, for --password-stdin.
func readSecretLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("no password on stdin")
	}
	return line, nil
}
