package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/felixgeelhaar/practicedesk/internal/errors"
)

func newBufferLogger(buf *bytes.Buffer, level Level, format Format) *Logger {
	return New(Config{
		Level:       level,
		Format:      format,
		Output:      NewOutput(buf),
		ServiceName: "practicedesk",
	})
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v\nOutput: %s", err, buf.String())
	}
	return entry
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, LevelWarn, FormatJSON)

	logger.Debug("debug message")
	logger.Info("info message")
	if buf.Len() > 0 {
		t.Errorf("expected no output for debug/info at warn level, got: %s", buf.String())
	}

	logger.Warn("warn message")
	if buf.Len() == 0 {
		t.Error("expected output for warn message")
	}

	buf.Reset()
	logger.Error("error message")
	if buf.Len() == 0 {
		t.Error("expected output for error message")
	}
}

func TestJSONFormatOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, LevelInfo, FormatJSON)

	logger.Info("test message", "key1", "value1", "key2", 42)

	entry := decodeLine(t, &buf)
	if entry["msg"] != "test message" {
		t.Errorf("expected msg 'test message', got %v", entry["msg"])
	}
	if entry["level"] != "info" {
		t.Errorf("expected level 'info', got %v", entry["level"])
	}
	if entry["key1"] != "value1" {
		t.Errorf("expected key1 'value1', got %v", entry["key1"])
	}
	if entry["key2"] != float64(42) {
		t.Errorf("expected key2 42, got %v", entry["key2"])
	}
	if entry["service"] != "practicedesk" {
		t.Errorf("expected service field, got %v", entry["service"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected time field in JSON output")
	}
}

func TestConsoleFormatOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, LevelInfo, FormatConsole)

	logger.Info("test message", "key1", "value1")

	output := buf.String()
	for _, want := range []string{"test message", "key1", "value1", "INFO"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got: %s", want, output)
		}
	}
}

func TestWithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, LevelInfo, FormatJSON).With("request_id", "abc")

	logger.Info("hello")

	entry := decodeLine(t, &buf)
	if entry["request_id"] != "abc" {
		t.Errorf("expected request_id field, got %v", entry["request_id"])
	}
}

func TestWithErrorDeskError(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, LevelInfo, FormatJSON)

	err := errors.Wrap(errors.ErrCodeRequestFailed, "profile failed", fmt.Errorf("boom")).
		WithResponse(502, "/auth/profile", nil)
	logger.WithError(err).Error("request failed")

	entry := decodeLine(t, &buf)
	if entry["error_code"] != "API-001" {
		t.Errorf("expected error_code API-001, got %v", entry["error_code"])
	}
	if entry["status"] != float64(502) {
		t.Errorf("expected status 502, got %v", entry["status"])
	}
	if entry["cause"] != "boom" {
		t.Errorf("expected cause boom, got %v", entry["cause"])
	}
}

func TestWithErrorPlainAndNil(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, LevelInfo, FormatJSON)

	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}

	logger.LogError("failed", fmt.Errorf("plain"))
	entry := decodeLine(t, &buf)
	if entry["error"] != "plain" {
		t.Errorf("expected error field, got %v", entry["error"])
	}

	buf.Reset()
	logger.LogError("ignored", nil)
	if buf.Len() != 0 {
		t.Errorf("LogError(nil) should not log, got %s", buf.String())
	}
}

func TestEnabled(t *testing.T) {
	logger := New(Config{Level: LevelWarn, Output: NewOutput(&bytes.Buffer{})})
	ctx := context.Background()

	if logger.Enabled(ctx, LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !logger.Enabled(ctx, LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestRedaction(t *testing.T) {
	if got := RedactToken("eyJhbGciOi.payload.sig"); got != "[REDACTED_TOKEN]" {
		t.Errorf("RedactToken = %q", got)
	}
	if got := RedactToken(""); got != "" {
		t.Errorf("RedactToken(empty) = %q", got)
	}

	tests := map[string]string{
		"dana@clinic.example": "da***@clinic.example",
		"a@b.c":               "a***@b.c",
		"not-an-email":        "***",
	}
	for in, want := range tests {
		if got := RedactEmail(in); got != want {
			t.Errorf("RedactEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
