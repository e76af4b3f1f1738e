package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestTake(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.mp4"), "12345")
	writeFile(t, filepath.Join(dir, "sub", "b.wav"), "123")
	writeFile(t, filepath.Join(dir, ".proxies", "a.mp4"), "ignored")
	writeFile(t, filepath.Join(dir, ".DS_Store"), "ignored")

	fp, err := Take(dir)
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if fp.Files != 2 || fp.Bytes != 8 {
		t.Errorf("Take() = %+v, want 2 files / 8 bytes", fp)
	}
	if fp.NewestNs == 0 {
		t.Error("NewestNs not recorded")
	}
}

func TestTake_MissingDir(t *testing.T) {
	if _, err := Take(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Take() on a missing dir should fail")
	}
}

func TestPoller_Check(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.mp4"), "12345")

	calls := 0
	p := NewPoller(dir, time.Minute, func(ctx context.Context) { calls++ }, nil)
	ctx := context.Background()

	if p.Check(ctx) {
		t.Error("first check should only record a baseline")
	}
	if p.Check(ctx) {
		t.Error("unchanged tree reported a change")
	}

	writeFile(t, filepath.Join(dir, "b.mp4"), "1")
	if !p.Check(ctx) {
		t.Error("added file was not noticed")
	}
	if calls != 1 {
		t.Errorf("onChange calls = %d, want 1", calls)
	}

	if err := os.Remove(filepath.Join(dir, "a.mp4")); err != nil {
		t.Fatal(err)
	}
	if !p.Check(ctx) {
		t.Error("removed file was not noticed")
	}

	writeFile(t, filepath.Join(dir, ".proxies", "b.mp4"), "proxy")
	if p.Check(ctx) {
		t.Error("dot directory change should be ignored")
	}
	if calls != 2 {
		t.Errorf("onChange calls = %d, want 2", calls)
	}
}

func TestPoller_RunDisabled(t *testing.T) {
	done := make(chan struct{})
	go func() {
		NewPoller(t.TempDir(), 0, nil, nil).Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with a zero interval should return immediately")
	}
}
