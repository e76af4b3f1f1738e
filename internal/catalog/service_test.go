package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/heimdex/heimdex-render/internal/db"
	"github.com/heimdex/heimdex-render/internal/engine"
	"github.com/heimdex/heimdex-render/internal/timeline"
)

func setupTestDB(t *testing.T) (*db.DB, Repository) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return database, NewRepository(database.Conn())
}

type fakeProber struct {
	calls int
	err   error
}

func (f *fakeProber) Probe(ctx context.Context, path string) (*engine.MediaInfo, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &engine.MediaInfo{Duration: 12.5, Width: 1920, Height: 1080, HasVideo: true, HasAudio: true}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestService_Scan(t *testing.T) {
	_, repo := setupTestDB(t)
	media := t.TempDir()
	prober := &fakeProber{}
	svc := NewService(repo, media, prober, nil)
	ctx := context.Background()

	writeFile(t, filepath.Join(media, "a.mp4"), "video")
	writeFile(t, filepath.Join(media, "sub", "b.wav"), "audio")
	writeFile(t, filepath.Join(media, "logo.png"), "image")
	writeFile(t, filepath.Join(media, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(media, ".hidden", "c.mp4"), "hidden")
	writeFile(t, filepath.Join(media, ".proxies", "a.mp4"), "proxy")

	result, err := svc.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if result.Found != 3 {
		t.Errorf("Found = %d, want 3", result.Found)
	}
	if result.Probed != 2 {
		t.Errorf("Probed = %d, want 2 (images are not probed)", result.Probed)
	}

	files, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	want := []string{"a.mp4", "logo.png", "sub/b.wav"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %s, want %s", i, names[i], want[i])
		}
	}

	a := files[0]
	if a.Kind != KindVideo || a.Duration != 12.5 || a.Width != 1920 || !a.HasAudio {
		t.Errorf("a.mp4 = %+v, want probed video", a)
	}
	if !a.HasProxy || a.ProxyPath != filepath.Join(media, ".proxies", "a.mp4") {
		t.Errorf("a.mp4 proxy = %q, want the .proxies file", a.ProxyPath)
	}
	if files[2].HasProxy {
		t.Error("sub/b.wav should have no proxy")
	}
}

func TestService_Scan_SkipsUnchangedFiles(t *testing.T) {
	_, repo := setupTestDB(t)
	media := t.TempDir()
	prober := &fakeProber{}
	svc := NewService(repo, media, prober, nil)
	ctx := context.Background()

	writeFile(t, filepath.Join(media, "a.mp4"), "video")

	if _, err := svc.Scan(ctx); err != nil {
		t.Fatalf("first Scan() error = %v", err)
	}
	first, _ := repo.GetMediaByName(ctx, "a.mp4")

	result, err := svc.Scan(ctx)
	if err != nil {
		t.Fatalf("second Scan() error = %v", err)
	}
	if prober.calls != 1 {
		t.Errorf("prober calls = %d, want 1", prober.calls)
	}
	if result.Probed != 0 {
		t.Errorf("Probed = %d, want 0", result.Probed)
	}

	second, _ := repo.GetMediaByName(ctx, "a.mp4")
	if second.ID != first.ID {
		t.Errorf("row id changed across scans: %s -> %s", first.ID, second.ID)
	}
	if second.Duration != 12.5 {
		t.Errorf("Duration = %v, want the probed value kept", second.Duration)
	}
}

func TestService_Scan_MarksMissing(t *testing.T) {
	_, repo := setupTestDB(t)
	media := t.TempDir()
	svc := NewService(repo, media, nil, nil)
	ctx := context.Background()

	path := filepath.Join(media, "gone.mp4")
	writeFile(t, path, "video")
	if _, err := svc.Scan(ctx); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	os.Remove(path)
	result, err := svc.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if result.Missing != 1 {
		t.Errorf("Missing = %d, want 1", result.Missing)
	}

	row, _ := repo.GetMediaByName(ctx, "gone.mp4")
	if row == nil || row.Present {
		t.Errorf("row = %+v, want present=false", row)
	}
	if n, _ := svc.Count(ctx); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}

	writeFile(t, path, "back")
	if _, err := svc.Scan(ctx); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	row, _ = repo.GetMediaByName(ctx, "gone.mp4")
	if !row.Present {
		t.Error("reappearing file should be present again")
	}
}

func TestService_Scan_ProbeUnavailable(t *testing.T) {
	_, repo := setupTestDB(t)
	media := t.TempDir()
	svc := NewService(repo, media, &fakeProber{err: engine.ErrProbeUnavailable}, nil)

	writeFile(t, filepath.Join(media, "a.mp4"), "video")
	result, err := svc.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if result.Found != 1 || result.Probed != 0 {
		t.Errorf("result = %+v, want found=1 probed=0", result)
	}
}

func TestService_Scan_MissingDir(t *testing.T) {
	_, repo := setupTestDB(t)
	svc := NewService(repo, filepath.Join(t.TempDir(), "nope"), nil, nil)

	if _, err := svc.Scan(context.Background()); err == nil {
		t.Error("Scan() should fail for a missing media directory")
	}
}

func TestService_Resolve(t *testing.T) {
	_, repo := setupTestDB(t)
	media := t.TempDir()
	svc := NewService(repo, media, nil, nil)

	writeFile(t, filepath.Join(media, "a.mp4"), "video")
	writeFile(t, filepath.Join(media, ".proxies", "a.mp4"), "proxy")
	if _, err := svc.Scan(context.Background()); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	tests := []struct {
		name  string
		src   string
		proxy bool
		want  string
	}{
		{"indexed", "a.mp4", false, filepath.Join(media, "a.mp4")},
		{"uploads prefix", "/uploads/a.mp4", false, filepath.Join(media, "a.mp4")},
		{"proxy", "a.mp4", true, filepath.Join(media, ".proxies", "a.mp4")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Resolve(tt.src, tt.proxy)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %s, want %s", got, tt.want)
			}
		})
	}

	// Arrived after the scan.
	writeFile(t, filepath.Join(media, "late.mp4"), "video")
	got, err := svc.Resolve("late.mp4", false)
	if err != nil || got != filepath.Join(media, "late.mp4") {
		t.Errorf("Resolve(late.mp4) = %s, %v", got, err)
	}

	for _, src := range []string{"missing.mp4", "../escape.mp4", ""} {
		if _, err := svc.Resolve(src, false); !errors.Is(err, timeline.ErrUnresolvedMedia) {
			t.Errorf("Resolve(%q) error = %v, want ErrUnresolvedMedia", src, err)
		}
	}
}

func TestService_Resolve_SatisfiesCompiler(t *testing.T) {
	var _ timeline.MediaResolver = (*Service)(nil)
}

func TestService_EnsureAuthToken(t *testing.T) {
	_, repo := setupTestDB(t)
	svc := NewService(repo, t.TempDir(), nil, nil)
	ctx := context.Background()

	if token, _ := svc.AuthToken(ctx); token != "" {
		t.Fatalf("AuthToken() = %q before generation", token)
	}

	token, err := svc.EnsureAuthToken(ctx)
	if err != nil {
		t.Fatalf("EnsureAuthToken() error = %v", err)
	}
	if len(token) != 64 {
		t.Errorf("token length = %d, want 64", len(token))
	}

	again, _ := svc.EnsureAuthToken(ctx)
	if again != token {
		t.Error("EnsureAuthToken() should return the stored token")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		filename string
		want     MediaKind
		ok       bool
	}{
		{"video.mp4", KindVideo, true},
		{"video.MOV", KindVideo, true},
		{"clip.webm", KindVideo, true},
		{"song.mp3", KindAudio, true},
		{"still.JPG", KindImage, true},
		{"document.pdf", "", false},
		{"noextension", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, ok := KindOf(tt.filename)
			if got != tt.want || ok != tt.ok {
				t.Errorf("KindOf(%s) = %v, %v, want %v, %v", tt.filename, got, ok, tt.want, tt.ok)
			}
			if IsMediaFile(tt.filename) != tt.ok {
				t.Errorf("IsMediaFile(%s) = %v", tt.filename, !tt.ok)
			}
		})
	}
}
