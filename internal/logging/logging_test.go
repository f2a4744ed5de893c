package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "json", "warn"))

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["msg"] != "shown" || entry["k"] != "v" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNew_RotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")
	logger, closer := New(Options{Level: "info", Format: "json", File: path, MaxSizeMB: 1})

	logger.Info("written to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestNew_NoFile(t *testing.T) {
	_, closer := New(Options{})
	if closer == nil {
		t.Fatal("closer must not be nil")
	}
	if err := closer.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"postgres with password", "postgres://app:s3cret@db:5432/voicescript", "postgres://app@db:5432/voicescript"},
		{"redis password only", "redis://:s3cret@cache:6379/0", "redis://redacted@cache:6379/0"},
		{"no credentials", "redis://cache:6379/0", "redis://cache:6379/0"},
		{"password query", "postgres://db/app?password=s3cret", "postgres://db/app?password=redacted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactURL(tt.in); got != tt.want {
				t.Errorf("RedactURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeError(t *testing.T) {
	dsn := "postgres://app:s3cret@db:5432/voicescript"
	err := errors.New("failed to connect to " + dsn + " (password=s3cret)")

	got := SanitizeError(err, dsn)
	if strings.Contains(got, "s3cret") {
		t.Errorf("secret leaked: %q", got)
	}
	if !strings.Contains(got, "postgres://app@db:5432/voicescript") {
		t.Errorf("redacted URL missing: %q", got)
	}
	if SanitizeError(nil) != "" {
		t.Error("nil error should sanitize to empty string")
	}
}
