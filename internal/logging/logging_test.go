package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerTo(t *testing.T) {
	var buf bytes.Buffer
	logger := WithJobID(WithComponent(NewLoggerTo(&buf, "warn"), "render"), "job-1")

	logger.Info("dropped")
	logger.Warn("render failed", "exit_code", 1)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("got %d records, want 1:\n%s", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal(lines[0], &rec); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if rec["msg"] != "render failed" || rec["component"] != "render" || rec["job_id"] != "job-1" {
		t.Errorf("record = %v", rec)
	}
	if _, ok := rec["source"]; ok {
		t.Error("source should only be added at debug level")
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := map[string]string{
		"":                 "****",
		"short":            "****",
		"12345678":         "****",
		"0123456789abcdef": "0123...cdef",
	}
	for in, want := range tests {
		if got := SanitizeToken(in); got != want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		t.Skip("no home directory")
	}

	if got := SanitizePath(filepath.Join(home, "media", "a.mp4")); got != "~"+string(os.PathSeparator)+filepath.Join("media", "a.mp4") {
		t.Errorf("SanitizePath(home/media/a.mp4) = %q", got)
	}
	if got := SanitizePath(home + "other"); got != home+"other" {
		t.Errorf("sibling of home was rewritten: %q", got)
	}
	if got := SanitizePath("/tmp/a.mp4"); got != "/tmp/a.mp4" {
		t.Errorf("SanitizePath(/tmp/a.mp4) = %q", got)
	}
}
