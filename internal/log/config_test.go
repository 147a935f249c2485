package log

import (
	"bytes"
	"os"
	"testing"
)

func TestFormatString(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{FormatJSON, "json"},
		{FormatConsole, "console"},
		{Format(999), "json"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.format.String(); got != tt.want {
				t.Errorf("Format.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"json", FormatJSON},
		{"JSON", FormatJSON},
		{"console", FormatConsole},
		{"text", FormatConsole},
		{"invalid", FormatJSON},
		{"", FormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseFormat(tt.input); got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestOutputWriter(t *testing.T) {
	var zero Output
	if zero.Writer() != os.Stderr {
		t.Error("zero Output should write to stderr")
	}

	var buf bytes.Buffer
	if NewOutput(&buf).Writer() != &buf {
		t.Error("NewOutput should keep the given writer")
	}
}

func TestPresetConfigs(t *testing.T) {
	if c := DefaultConfig(); c.Level != LevelWarn || c.Format != FormatConsole {
		t.Errorf("unexpected default config: %+v", c)
	}
	if c := DevelopmentConfig(); c.Level != LevelDebug || !c.AddCaller {
		t.Errorf("unexpected development config: %+v", c)
	}
	if c := ServerConfig(); c.Level != LevelInfo || c.Format != FormatJSON {
		t.Errorf("unexpected server config: %+v", c)
	}
}
