package log

import (
	"io"
	"os"
)

// Format represents the output format for logs
type Format int

const (
	// FormatJSON outputs logs in JSON format
	FormatJSON Format = iota
	// FormatConsole outputs logs in human-readable console format
	FormatConsole
)

// String returns the string representation of the format
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatConsole:
		return "console"
	default:
		return "json"
	}
}

// ParseFormat parses a string into a Format
func ParseFormat(s string) Format {
	switch s {
	case "json", "JSON":
		return FormatJSON
	case "console", "CONSOLE", "text", "TEXT":
		return FormatConsole
	default:
		return FormatJSON
	}
}

// Output represents where logs should be written
type Output struct {
	writer io.Writer
}

// Writer returns the underlying io.Writer
func (o Output) Writer() io.Writer {
	if o.writer == nil {
		return os.Stderr
	}
	return o.writer
}

// NewOutput creates an Output from an io.Writer
func NewOutput(w io.Writer) Output {
	return Output{writer: w}
}

// OutputStderr creates an Output that writes to stderr
func OutputStderr() Output {
	return Output{writer: os.Stderr}
}

// Config holds configuration for the logger
type Config struct {
	// Level is the minimum log level to output
	Level Level

	// Format is the output format (JSON or Console)
	Format Format

	// Output is where logs should be written. Stdout is reserved for
	// command output, so the default is stderr.
	Output Output

	// AddCaller includes source file and line number in logs
	AddCaller bool

	// ServiceName is attached to every entry when set
	ServiceName string
}

// DefaultConfig returns a sensible default configuration
// Logs at WARN level in console format to stderr
func DefaultConfig() Config {
	return Config{
		Level:       LevelWarn,
		Format:      FormatConsole,
		Output:      OutputStderr(),
		ServiceName: "practicedesk",
	}
}

// DevelopmentConfig returns a configuration suitable for development
// Logs at DEBUG level in console format with caller location
func DevelopmentConfig() Config {
	return Config{
		Level:       LevelDebug,
		Format:      FormatConsole,
		Output:      OutputStderr(),
		AddCaller:   true,
		ServiceName: "practicedesk",
	}
}

// ServerConfig returns the configuration used by the long-running proxy
// Logs at INFO level in JSON format
func ServerConfig() Config {
	return Config{
		Level:       LevelInfo,
		Format:      FormatJSON,
		Output:      OutputStderr(),
		ServiceName: "practicedesk",
	}
}
