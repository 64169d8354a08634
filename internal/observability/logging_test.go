package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func newBufLogger(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLogger(LogConfig{Level: level, Format: "json", Output: &buf}), &buf
}

func TestLoggerRedactsCredentialValues(t *testing.T) {
	logger, buf := newBufLogger("info")
	logger.Info(context.Background(), "provider configured",
		"provider", "anthropic",
		"detail", "api_key=sk-ant-REDACTED",
	)

	out := buf.String()
	if strings.Contains(out, "sk-ant-") {
		t.Fatalf("api key leaked into log: %s", out)
	}
	if !strings.Contains(out, redactedMarker) {
		t.Fatalf("expected redaction marker in: %s", out)
	}
	if !strings.Contains(out, "anthropic") {
		t.Fatalf("non-secret value lost: %s", out)
	}
}

func TestLoggerRedactsBearerTokens(t *testing.T) {
	logger, buf := newBufLogger("info")
	logger.Warn(context.Background(), "request failed",
		"header", "Bearer abcdefghijklmnopqrstuvwxyz123456")

	if strings.Contains(buf.String(), "abcdefghijklmnop") {
		t.Fatalf("bearer token leaked: %s", buf.String())
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	logger, buf := newBufLogger("warn")
	logger.Info(context.Background(), "quiet")
	logger.Warn(context.Background(), "loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("info record emitted at warn level: %s", out)
	}
	if !strings.Contains(out, "loud") {
		t.Fatalf("warn record missing: %s", out)
	}
}

func TestLoggerJSONFormat(t *testing.T) {
	logger, buf := newBufLogger("info")
	logger.Info(context.Background(), "hello", "channel", "slack")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if record["channel"] != "slack" {
		t.Fatalf("attribute lost: %v", record)
	}
}

func TestWithFieldsAttachesToEveryRecord(t *testing.T) {
	logger, buf := newBufLogger("info")
	child := logger.WithFields("component", "watchdog")
	child.Info(context.Background(), "tick")

	if !strings.Contains(buf.String(), "watchdog") {
		t.Fatalf("attached field missing: %s", buf.String())
	}
}

func TestLogLevelFromString(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := LogLevelFromString(in); got != want {
			t.Errorf("LogLevelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}
