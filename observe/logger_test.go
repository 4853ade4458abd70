package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func parseEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLogger_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "scrape complete", F("sites", 3), F("emails", 12))

	entries := parseEntries(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e["level"] != "info" {
		t.Errorf("level = %v, want info", e["level"])
	}
	if e["msg"] != "scrape complete" {
		t.Errorf("msg = %v", e["msg"])
	}
	if e["sites"] != float64(3) || e["emails"] != float64(12) {
		t.Errorf("fields = %v", e)
	}
	if e["timestamp"] == nil {
		t.Error("timestamp missing")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("warn", &buf)
	ctx := context.Background()

	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	logger.Warn(ctx, "warn message")
	logger.Error(ctx, "error message")

	entries := parseEntries(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0]["level"] != "warn" || entries[1]["level"] != "error" {
		t.Errorf("levels = %v, %v", entries[0]["level"], entries[1]["level"])
	}
}

func TestLogger_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "smtp configured",
		F("host", "smtp.acme.com"),
		F("password", "hunter2"),
		F("smtp_password", "hunter2"),
		F("api_key", "sk-123"),
	)

	raw := buf.String()
	if strings.Contains(raw, "hunter2") || strings.Contains(raw, "sk-123") {
		t.Fatalf("credentials leaked into log output: %s", raw)
	}

	e := parseEntries(t, &buf)[0]
	if e["password"] != "[REDACTED]" || e["api_key"] != "[REDACTED]" {
		t.Errorf("redacted fields = %v", e)
	}
	if e["host"] != "smtp.acme.com" {
		t.Errorf("host = %v, want pass-through", e["host"])
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf).With(F("op", "scrape"))

	logger.Info(context.Background(), "first")
	logger.With(F("run_id", "r-1")).Info(context.Background(), "second")

	entries := parseEntries(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0]["op"] != "scrape" {
		t.Errorf("entries[0] missing base field: %v", entries[0])
	}
	if entries[1]["op"] != "scrape" || entries[1]["run_id"] != "r-1" {
		t.Errorf("entries[1] missing chained fields: %v", entries[1])
	}
	if entries[0]["run_id"] != nil {
		t.Error("run_id leaked into the parent logger")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	// Must not panic and With must keep returning a usable logger.
	logger.With(F("k", "v")).Info(context.Background(), "dropped")
}
