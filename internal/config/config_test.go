package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.BindAddr() != "127.0.0.1" {
		t.Errorf("BindAddr() = %q, want 127.0.0.1", cfg.BindAddr())
	}
	if cfg.MaxConcurrentRenders() != 2 {
		t.Errorf("MaxConcurrentRenders() = %d, want 2", cfg.MaxConcurrentRenders())
	}
	if cfg.PreviewRetention() != 15*time.Minute {
		t.Errorf("PreviewRetention() = %v, want 15m", cfg.PreviewRetention())
	}
	if cfg.ThumbnailRetention() != 5*time.Minute {
		t.Errorf("ThumbnailRetention() = %v, want 5m", cfg.ThumbnailRetention())
	}
	if cfg.JobRetention() != 24*time.Hour {
		t.Errorf("JobRetention() = %v, want 24h", cfg.JobRetention())
	}
	if !cfg.Headless() {
		t.Error("Headless() should default to true")
	}
	if cfg.CancelSuperseded() {
		t.Error("CancelSuperseded() should default to false")
	}
	if cfg.RescanInterval() != time.Minute {
		t.Errorf("RescanInterval() = %v, want 1m", cfg.RescanInterval())
	}
}

func TestNew_DerivedDirs(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HEIMDEX_DATA_DIR", dir)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := cfg.MediaDir(), filepath.Join(dir, UploadsDir); got != want {
		t.Errorf("MediaDir() = %q, want %q", got, want)
	}
	if got, want := cfg.ProcessedDir(), filepath.Join(dir, ProcessedDir); got != want {
		t.Errorf("ProcessedDir() = %q, want %q", got, want)
	}
	if got, want := cfg.DBPath(), filepath.Join(dir, DBFilename); got != want {
		t.Errorf("DBPath() = %q, want %q", got, want)
	}
}

func TestNew_FromEnv(t *testing.T) {
	t.Setenv("HEIMDEX_PORT", "9000")
	t.Setenv("HEIMDEX_MEDIA_DIR", "/srv/media")
	t.Setenv("HEIMDEX_MAX_CONCURRENT_RENDERS", "0")
	t.Setenv("HEIMDEX_CANCEL_SUPERSEDED", "true")
	t.Setenv("HEIMDEX_SWEEP_INTERVAL", "30s")
	t.Setenv("HEIMDEX_RESCAN_INTERVAL", "0s")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9000 {
		t.Errorf("Port() = %d, want 9000", cfg.Port())
	}
	if cfg.MediaDir() != "/srv/media" {
		t.Errorf("MediaDir() = %q, want /srv/media", cfg.MediaDir())
	}
	if cfg.MaxConcurrentRenders() != 0 {
		t.Errorf("MaxConcurrentRenders() = %d, want 0", cfg.MaxConcurrentRenders())
	}
	if !cfg.CancelSuperseded() {
		t.Error("CancelSuperseded() = false, want true")
	}
	if cfg.SweepInterval() != 30*time.Second {
		t.Errorf("SweepInterval() = %v, want 30s", cfg.SweepInterval())
	}
	if cfg.RescanInterval() != 0 {
		t.Errorf("RescanInterval() = %v, want 0 (disabled)", cfg.RescanInterval())
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"port out of range", "HEIMDEX_PORT", "70000"},
		{"port not a number", "HEIMDEX_PORT", "abc"},
		{"unknown log level", "HEIMDEX_LOG_LEVEL", "verbose"},
		{"negative concurrency", "HEIMDEX_MAX_CONCURRENT_RENDERS", "-1"},
		{"zero retention", "HEIMDEX_PREVIEW_RETENTION", "0s"},
		{"negative rescan", "HEIMDEX_RESCAN_INTERVAL", "-1m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := New(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
