package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/heimdex/heimdex-render/internal/graph"
)

func TestRunResult_IsSuccess(t *testing.T) {
	tests := []struct {
		exitCode int
		want     bool
	}{
		{0, true},
		{1, false},
		{-1, false},
		{234, false},
	}
	for _, tt := range tests {
		r := RunResult{ExitCode: tt.exitCode}
		if got := r.IsSuccess(); got != tt.want {
			t.Errorf("RunResult{ExitCode: %d}.IsSuccess() = %v, want %v", tt.exitCode, got, tt.want)
		}
	}
}

func TestRunError_IsEngineFailure(t *testing.T) {
	var err error = &RunError{ExitCode: 1, StderrTail: "frame=1\nInvalid argument\n"}
	if !errors.Is(err, ErrEngineFailure) {
		t.Fatal("RunError should match ErrEngineFailure")
	}
	if got, want := err.Error(), "ffmpeg exited 1: Invalid argument"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if got, want := (&RunError{ExitCode: 2}).Error(), "ffmpeg exited 2"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("after short write got %q, want %q", buf.String(), "hello")
	}

	lw.Write([]byte(" world of test data"))
	if got, want := buf.String(), " test data"; got != want {
		t.Errorf("after overflow got %q, want %q", got, want)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is longer than ten", 10, "...r than ten"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"00:00:01.500000", 1.5, true},
		{"01:02:03", 3723, true},
		{"N/A", 0, false},
		{"00:xx:01", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseClock(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseClock(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestProgressParser(t *testing.T) {
	var got []float64
	p := newProgressParser(4, func(pct float64) { got = append(got, pct) })

	input := strings.Join([]string{
		"frame=10",
		"out_time_us=1000000",
		"progress=continue",
		"out_time=00:00:03.000000",
		"progress=continue",
		"out_time_ms=9000000",
		"progress=continue",
		"progress=continue",
		"progress=end",
	}, "\n")
	p.consume(strings.NewReader(input))

	want := []float64{25, 75, 100, 100}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("progress = %v, want %v", got, want)
	}
}

func TestProgressParser_NoTotal(t *testing.T) {
	var got []float64
	p := newProgressParser(0, func(pct float64) { got = append(got, pct) })
	p.consume(strings.NewReader("out_time_us=1000000\nprogress=continue\nprogress=end\n"))

	if !reflect.DeepEqual(got, []float64{100}) {
		t.Errorf("progress = %v, want only the end report", got)
	}
}

func testGraph(t *testing.T, withAudio bool) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder()
	in := b.Input("/media/a.mp4")
	base := b.Filter("base", "color", nil, graph.KV("c", "black@0"), graph.KV("s", "640x360"), graph.KV("d", "2"))
	out := b.Filter("out_v", "format", []string{base}, graph.KV("pix_fmts", "yuv420p"))
	b.Output(graph.OutputVideo, out)
	if withAudio {
		mix := b.Filter("amix", "amix", []string{graph.StreamPad(in, graph.StreamAudio)}, graph.KV("inputs", "1"))
		b.Output(graph.OutputAudio, mix)
	}
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func TestBuildArgs_WithAudio(t *testing.T) {
	args, err := BuildArgs(Invocation{
		Graph:      testGraph(t, true),
		OutputPath: "/tmp/out.mp4",
		Encoding:   PreviewEncoding,
		Duration:   2,
	})
	if err != nil {
		t.Fatalf("BuildArgs: %v", err)
	}

	joined := strings.Join(args, " ")
	for _, want := range []string{
		"-progress pipe:1",
		"-i /media/a.mp4",
		"-map [out_v] -c:v libx264",
		"-map [amix] -c:a aac",
		"-t 2 /tmp/out.mp4",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if args[len(args)-1] != "/tmp/out.mp4" {
		t.Errorf("last arg = %q, want output path", args[len(args)-1])
	}
}

func TestBuildArgs_NoAudio(t *testing.T) {
	tests := []struct {
		name     string
		audio    bool
		encoding Encoding
	}{
		{"graph without audio", false, ExportEncoding},
		{"encoding drops audio", true, ThumbnailEncoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := BuildArgs(Invocation{Graph: testGraph(t, tt.audio), OutputPath: "/tmp/o.mp4", Encoding: tt.encoding})
			if err != nil {
				t.Fatalf("BuildArgs: %v", err)
			}
			joined := strings.Join(args, " ")
			if !strings.Contains(joined, "-an") {
				t.Errorf("args %q should disable audio", joined)
			}
			if strings.Contains(joined, "[amix]") {
				t.Errorf("args %q should not map audio", joined)
			}
		})
	}
}

func TestBuildArgs_Invalid(t *testing.T) {
	if _, err := BuildArgs(Invocation{OutputPath: "/tmp/o.mp4"}); !errors.Is(err, graph.ErrInvalidGraph) {
		t.Errorf("nil graph: err = %v, want ErrInvalidGraph", err)
	}
	if _, err := BuildArgs(Invocation{Graph: testGraph(t, false)}); err == nil {
		t.Error("expected error for missing output path")
	}
}

func TestParseProbe(t *testing.T) {
	data := []byte(`{
		"streams": [
			{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "30000/1001"},
			{"codec_type": "audio", "codec_name": "aac"}
		],
		"format": {"duration": "12.500000", "bit_rate": "4000000"}
	}`)
	info, err := parseProbe(data)
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if info.Duration != 12.5 {
		t.Errorf("Duration = %v, want 12.5", info.Duration)
	}
	if !info.HasVideo || !info.HasAudio {
		t.Errorf("HasVideo=%v HasAudio=%v, want both", info.HasVideo, info.HasAudio)
	}
	if info.Width != 1920 || info.Height != 1080 {
		t.Errorf("size = %dx%d, want 1920x1080", info.Width, info.Height)
	}
	if info.FrameRate < 29.97 || info.FrameRate > 29.98 {
		t.Errorf("FrameRate = %v, want ~29.97", info.FrameRate)
	}
	if info.Bitrate != 4000000 {
		t.Errorf("Bitrate = %d, want 4000000", info.Bitrate)
	}

	if _, err := parseProbe([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"25", 25},
		{"50/2", 25},
		{"0/0", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseFrameRate(tt.in); got != tt.want {
			t.Errorf("parseFrameRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseCapabilities(t *testing.T) {
	version := []byte("ffmpeg version 6.1.1 Copyright (c) 2000-2023 the FFmpeg developers\nbuilt with gcc\n")
	var filters strings.Builder
	filters.WriteString("Filters:\n  T.. = Timeline support\n ------\n")
	for _, name := range RequiredFilters {
		if name == "lut3d" {
			continue
		}
		filters.WriteString(" TSC " + name + "            V->V       Something.\n")
	}

	caps := parseCapabilities(version, []byte(filters.String()))
	if caps.Version != "6.1.1" {
		t.Errorf("Version = %q, want 6.1.1", caps.Version)
	}
	if caps.Filters != len(RequiredFilters)-1 {
		t.Errorf("Filters = %d, want %d", caps.Filters, len(RequiredFilters)-1)
	}
	if !reflect.DeepEqual(caps.MissingFilters, []string{"lut3d"}) {
		t.Errorf("MissingFilters = %v, want [lut3d]", caps.MissingFilters)
	}
	if caps.Ready() {
		t.Error("Ready() = true with a missing filter")
	}
}

func TestCachedDoctor_TTL(t *testing.T) {
	calls := 0
	fake := &fakeDoctor{
		fn: func(ctx context.Context) (*Capabilities, error) {
			calls++
			return &Capabilities{Version: "6.1", ProbedAt: time.Now()}, nil
		},
	}

	doc := NewCachedDoctor(fake, nil)
	doc.ttl = 100 * time.Millisecond
	ctx := context.Background()

	caps1, err := doc.Get(ctx)
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}

	caps2, err := doc.Get(ctx)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if caps2 != caps1 {
		t.Error("expected cached result on second call")
	}

	time.Sleep(150 * time.Millisecond)

	if _, err := doc.Get(ctx); err != nil {
		t.Fatalf("third Get (after TTL): %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls after TTL expiry, got %d", calls)
	}
}

func TestCachedDoctor_StaleOnError(t *testing.T) {
	fail := false
	fake := &fakeDoctor{
		fn: func(ctx context.Context) (*Capabilities, error) {
			if fail {
				return nil, errors.New("ffmpeg vanished")
			}
			return &Capabilities{Version: "6.1", ProbedAt: time.Now()}, nil
		},
	}
	doc := NewCachedDoctor(fake, nil)
	ctx := context.Background()

	if _, err := doc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	fail = true
	caps, err := doc.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh with stale cache: %v", err)
	}
	if caps.Version != "6.1" {
		t.Errorf("Version = %q, want stale 6.1", caps.Version)
	}

	doc.Invalidate()
	if doc.Peek() != nil {
		t.Error("Peek() after Invalidate should be nil")
	}
	if _, err := doc.Refresh(ctx); err == nil {
		t.Error("expected error with no cache to fall back on")
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExecute_ReportsProgress(t *testing.T) {
	script := writeScript(t, "echo out_time_us=1000000\necho progress=continue\necho progress=end\nexit 0\n")
	ff, err := NewFFmpeg(Config{FFmpegPath: script})
	if err != nil {
		t.Fatalf("NewFFmpeg: %v", err)
	}

	var got []float64
	out := filepath.Join(t.TempDir(), "nested", "out.mp4")
	res, err := ff.Execute(context.Background(), Invocation{
		Graph:      testGraph(t, false),
		OutputPath: out,
		Encoding:   PreviewEncoding,
		Duration:   2,
		Progress:   func(p float64) { got = append(got, p) },
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsSuccess() {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if !reflect.DeepEqual(got, []float64{50, 100}) {
		t.Errorf("progress = %v, want [50 100]", got)
	}
	if _, err := os.Stat(filepath.Dir(out)); err != nil {
		t.Errorf("output directory not created: %v", err)
	}
}

func TestExecute_NonZeroExit(t *testing.T) {
	script := writeScript(t, "echo 'Error initializing filter' >&2\nexit 3\n")
	ff, err := NewFFmpeg(Config{FFmpegPath: script})
	if err != nil {
		t.Fatalf("NewFFmpeg: %v", err)
	}

	res, err := ff.Execute(context.Background(), Invocation{
		Graph:      testGraph(t, false),
		OutputPath: filepath.Join(t.TempDir(), "out.mp4"),
		Encoding:   ExportEncoding,
	})
	if !errors.Is(err, ErrEngineFailure) {
		t.Fatalf("err = %v, want ErrEngineFailure", err)
	}
	var runErr *RunError
	if !errors.As(err, &runErr) || runErr.ExitCode != 3 {
		t.Errorf("RunError = %+v, want exit code 3", runErr)
	}
	if !strings.Contains(res.StderrTail, "Error initializing filter") {
		t.Errorf("StderrTail = %q", res.StderrTail)
	}
}

func TestNewFFmpeg_PreferredNotFound(t *testing.T) {
	if _, err := NewFFmpeg(Config{FFmpegPath: "/nonexistent/ffmpeg"}); err == nil {
		t.Fatal("expected error for nonexistent ffmpeg")
	}
}

func TestSafePath_DebugMode(t *testing.T) {
	f := &FFmpeg{cfg: Config{DebugPaths: true}}
	path := "/Users/test/secret/out.mp4"
	if got := f.safePath(path); got != path {
		t.Errorf("debug mode: safePath(%q) = %q, want full path", path, got)
	}
}

type fakeDoctor struct {
	fn func(ctx context.Context) (*Capabilities, error)
}

func (f *fakeDoctor) RunDoctor(ctx context.Context) (*Capabilities, error) {
	return f.fn(ctx)
}
